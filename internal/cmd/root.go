package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/serialwatch/internal/config"
	"github.com/Iron-Ham/serialwatch/internal/console/observe"
	"github.com/Iron-Ham/serialwatch/internal/console/report"
	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
	"github.com/Iron-Ham/serialwatch/internal/logging"
	"github.com/Iron-Ham/serialwatch/internal/serialport"
	"github.com/Iron-Ham/serialwatch/internal/session"
)

// env holds everything the commands reach outside the process.
// Tests substitute fakes.
type env struct {
	v       *viper.Viper
	open    serialport.Opener
	list    serialport.Lister
	clock   observe.Clock
	lockDir string
}

func defaultEnv() *env {
	return &env{
		v:       viper.GetViper(),
		open:    serialport.Open,
		list:    serialport.ListPorts,
		clock:   observe.SystemClock{},
		lockDir: session.DefaultLockDir(),
	}
}

// exitError carries the exit code of a run whose outcome was already
// reported to the operator.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the run.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd(defaultEnv()))
}

func execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	return 1
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serialwatch",
		Short: "Watch a device's serial console until its test suite finishes",
		Long: `serialwatch opens a serial port, optionally sends a startup parameter to
the device, and echoes everything the device prints until a completion
marker appears, the timeout expires, or you press Ctrl+C.

Progress lines ("Case N/M") are summarized on stderr, and a status line is
printed while the device is silent. The exit code is 0 only when the
completion marker was seen.`,
		Example: `  serialwatch -p /dev/ttyUSB0 -b 115200
  serialwatch -p /dev/ttyACM0 -u ws://192.168.1.10:9001 -t 600`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runWatch(cmd)
		},
	}

	defaults := config.Default()
	flags := rootCmd.Flags()
	flags.StringP("port", "p", defaults.Port, "serial device")
	flags.IntP("baud", "b", defaults.Baud, "baud rate")
	flags.IntP("timeout", "t", defaults.TimeoutSeconds, "seconds to wait for the completion marker")
	flags.StringP("completion-pattern", "c", defaults.CompletionPattern, "regular expression that marks a finished test suite")
	flags.StringP("uri", "u", "", "startup parameter to send to the device after it boots")

	persistent := rootCmd.PersistentFlags()
	persistent.String("config", "", "config file (default is $XDG_CONFIG_HOME/serialwatch/config.yaml)")
	persistent.String("log-file", "", "write JSON debug logs to this file")
	persistent.String("log-level", defaults.Logging.Level, "log level (debug, info, warn, error)")

	_ = e.v.BindPFlag("port", flags.Lookup("port"))
	_ = e.v.BindPFlag("baud", flags.Lookup("baud"))
	_ = e.v.BindPFlag("timeout_seconds", flags.Lookup("timeout"))
	_ = e.v.BindPFlag("completion_pattern", flags.Lookup("completion-pattern"))
	_ = e.v.BindPFlag("inject", flags.Lookup("uri"))
	_ = e.v.BindPFlag("config", persistent.Lookup("config"))
	_ = e.v.BindPFlag("logging.file", persistent.Lookup("log-file"))
	_ = e.v.BindPFlag("logging.level", persistent.Lookup("log-level"))

	rootCmd.AddCommand(
		newPortsCmd(e),
		newConfigCmd(e),
		newLogsCmd(e),
		newVersionCmd(),
	)
	return rootCmd
}

func (e *env) initConfig() error {
	// Defaults first so they apply even without a config file
	config.SetDefaultsOn(e.v)

	if cfgFile := e.v.GetString("config"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		e.v.SetConfigFile(cfgFile)
	} else {
		e.v.SetConfigName("config")
		e.v.SetConfigType("yaml")
		e.v.AddConfigPath(config.ConfigDir())
	}

	// Nested keys map to underscores, e.g. SERIALWATCH_MONITOR_POLL_INTERVAL_MS
	e.v.SetEnvPrefix("SERIALWATCH")
	e.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	e.v.AutomaticEnv()

	if err := e.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func (e *env) runWatch(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(e.v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	out, err := session.Run(cmd.Context(), cfg, session.Deps{
		Open:    e.open,
		Clock:   e.clock,
		Echo:    cmd.OutOrStdout(),
		Printer: report.New(cmd.ErrOrStderr(), report.WithDeviceName(cfg.DeviceName)),
		Logger:  logger,
		LockDir: e.lockDir,
	})
	if apperrors.IsConfigError(err) {
		return err
	}
	if code := session.ExitCode(out, err); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// newLogger opens the debug log. Without a log file nothing is logged,
// since stderr belongs to the operator-facing report.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if cfg.Logging.File == "" {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewFileLogger(cfg.Logging.File, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}
