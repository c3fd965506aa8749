package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/serialwatch/internal/config"
)

func newConfigCmd(e *env) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or create serialwatch configuration",
		Long: `View or create serialwatch configuration.

Without arguments, displays the effective configuration: defaults, the
config file, SERIALWATCH_* environment variables and flags combined.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runConfigShow(cmd)
		},
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runConfigShow(cmd)
		},
	}

	var force bool
	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default config file",
		Long:  `Create a commented config file at $XDG_CONFIG_HOME/serialwatch/config.yaml with every available option.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, force)
		},
	}
	configInitCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runConfigPath(cmd)
		},
	}

	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	return configCmd
}

func (e *env) runConfigShow(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(e.v)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if used := e.v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(w, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil && !force {
		return fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to change serialwatch's defaults.")
	return nil
}

func (e *env) runConfigPath(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	if used := e.v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(w, "Default path: %s (not created)\n", config.ConfigFile())
	}
	fmt.Fprintln(w, "\nEnvironment variables: SERIALWATCH_* (e.g., SERIALWATCH_PORT, SERIALWATCH_MONITOR_POLL_INTERVAL_MS)")
	return nil
}

const configTemplate = `# serialwatch configuration
# Flags and SERIALWATCH_* environment variables override these values.

# Serial device and line speed
port: /dev/ttyUSB0
baud: 115200

# Seconds to wait for the completion marker before giving up
timeout_seconds: 2400

# Regular expression that marks a finished test suite
completion_pattern: 'All tests completed\.'

# Regular expression with two capture groups: current and total test case
progress_pattern: 'Case (\d+)/(\d+)'

# Startup parameter written to the device after it boots (empty: none)
inject: ""

# How guidance messages refer to the device
device_name: device

monitor:
  # Silence window after start during which status lines are frequent
  grace_period_seconds: 10
  status_interval_seconds: 10
  # Status cadence once the grace period is over
  idle_status_interval_seconds: 30
  poll_interval_ms: 100
  # How long trailing output is still echoed after the completion marker
  success_flush_seconds: 5

serial:
  read_timeout_ms: 100
  # Wait between opening the port and sending the startup parameter
  settle_delay_seconds: 5

logging:
  # JSON debug log; nothing is logged when empty
  file: ""
  level: info
  max_size_mb: 10
  max_backups: 3
  compress: false
`
