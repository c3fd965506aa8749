package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/serialwatch/internal/logging"
)

// logsOptions are the filters for the logs command.
type logsOptions struct {
	tail   int
	follow bool
	level  string
	since  string
	grep   string
}

func newLogsCmd(e *env) *cobra.Command {
	var opts logsOptions
	cmd := &cobra.Command{
		Use:   "logs [file]",
		Short: "View the JSON debug log",
		Long: `View and filter the debug log written when logging.file (or --log-file)
is set. Pass a path to read a different log.

Examples:
  # Show the last 50 entries
  serialwatch logs

  # Only warnings and errors from the last hour
  serialwatch logs --level warn --since 1h

  # Follow a run in progress
  serialwatch logs -f --grep "progress|status"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.v.GetString("logging.file")
			if len(args) == 1 {
				path = args[0]
			}
			return runLogs(cmd, e, path, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.tail, "tail", "n", 50, "number of entries to show (0 for all)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "follow log output (like tail -f)")
	cmd.Flags().StringVar(&opts.level, "level", "", "minimum level (debug/info/warn/error)")
	cmd.Flags().StringVar(&opts.since, "since", "", "only entries newer than this duration (e.g., 1h, 30m)")
	cmd.Flags().StringVar(&opts.grep, "grep", "", "only entries matching this regular expression")
	return cmd
}

// logEntry is one parsed JSON log line.
type logEntry struct {
	Time  time.Time      `json:"time"`
	Level string         `json:"level"`
	Msg   string         `json:"msg"`
	Port  string         `json:"port,omitempty"`
	Phase string         `json:"phase,omitempty"`
	Extra map[string]any `json:"-"`
}

// UnmarshalJSON captures fields beyond the known ones in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "port", "phase"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter decides which entries are shown.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
}

func newLogFilter(opts logsOptions, now time.Time) (logFilter, error) {
	f := logFilter{minLevel: -1}
	if opts.level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(opts.level))
	}
	if opts.since != "" {
		d, err := time.ParseDuration(opts.since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = now.Add(-d)
	}
	if opts.grep != "" {
		re, err := regexp.Compile(opts.grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// passes reports whether entry clears every filter. The grep pattern is
// matched against the message and all extra values.
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.grep != nil {
		text := entry.Msg
		for _, v := range entry.Extra {
			text += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(text) {
			return false
		}
	}
	return true
}

func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// logStyles colors entries. The renderer drops colors when the output is
// not a terminal.
type logStyles struct {
	time   lipgloss.Style
	field  lipgloss.Style
	levels map[string]lipgloss.Style
}

func newLogStyles(w io.Writer) logStyles {
	r := lipgloss.NewRenderer(w)
	return logStyles{
		time:  r.NewStyle().Faint(true),
		field: r.NewStyle().Foreground(lipgloss.Color("6")),
		levels: map[string]lipgloss.Style{
			logging.LevelDebug: r.NewStyle().Faint(true),
			logging.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("4")),
			logging.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			logging.LevelError: r.NewStyle().Foreground(lipgloss.Color("1")),
		},
	}
}

func (s logStyles) format(entry *logEntry) string {
	level := strings.ToUpper(entry.Level)
	parts := []string{
		s.time.Render("[" + entry.Time.Format("15:04:05.000") + "]"),
		s.levels[level].Render("[" + level + "]"),
		entry.Msg,
	}
	if entry.Port != "" {
		parts = append(parts, s.field.Render("port=")+entry.Port)
	}
	if entry.Phase != "" {
		parts = append(parts, s.field.Render("phase=")+entry.Phase)
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, s.field.Render(k+"=")+fmt.Sprintf("%v", entry.Extra[k]))
	}
	return strings.Join(parts, " ")
}

func runLogs(cmd *cobra.Command, e *env, path string, opts logsOptions) error {
	w := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintln(w, "No log file configured. Set logging.file or pass --log-file to a run.")
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "No log found at %s\n", path)
		return nil
	}

	filter, err := newLogFilter(opts, e.clock.Now())
	if err != nil {
		return err
	}
	styles := newLogStyles(w)

	if opts.follow {
		return followLogs(cmd.Context(), e, w, path, filter, styles)
	}
	return displayLogs(w, path, opts.tail, filter, styles)
}

// render formats a raw log line, or returns false if it is filtered out.
// Lines that are not JSON are shown as they are.
func render(line string, filter logFilter, styles logStyles) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, true
	}
	if !filter.passes(&entry) {
		return "", false
	}
	return styles.format(&entry), true
}

func displayLogs(w io.Writer, path string, tail int, filter logFilter, styles logStyles) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if out, ok := render(line, filter, styles); ok {
			entries = append(entries, out)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(w, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}
	return nil
}

// followLogs prints entries appended after the current end of the file
// until ctx is cancelled.
func followLogs(ctx context.Context, e *env, w io.Writer, path string, filter logFilter, styles logStyles) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	fmt.Fprint(w, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		partial += chunk
		if err == io.EOF {
			if e.clock.Sleep(ctx, 100*time.Millisecond) != nil {
				return nil
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line := strings.TrimSpace(partial)
		partial = ""
		if line == "" {
			continue
		}
		if out, ok := render(line, filter, styles); ok {
			fmt.Fprintln(w, out)
		}
	}
}
