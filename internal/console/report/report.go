// Package report renders operator-facing messages: connection banners,
// progress and status lines, the no-output hint, and the final verdict.
// Everything here goes to the diagnostic stream; raw device output never
// passes through this package.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/Iron-Ham/serialwatch/internal/console/deadline"
	"github.com/Iron-Ham/serialwatch/internal/console/detect"
	"github.com/Iron-Ham/serialwatch/internal/console/observe"
)

// Option configures a Printer.
type Option func(*Printer)

// WithColor forces styled output on or off. By default styling is enabled
// only when the writer is a terminal.
func WithColor(enabled bool) Option {
	return func(p *Printer) { p.color = &enabled }
}

// WithDeviceName sets how the device is referred to in guidance text.
func WithDeviceName(name string) Option {
	return func(p *Printer) {
		if name != "" {
			p.device = name
		}
	}
}

type styles struct {
	info     lipgloss.Style
	progress lipgloss.Style
	status   lipgloss.Style
	warning  lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
}

// Printer writes operator messages to a single writer. It is safe for
// concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	device string
	color  *bool
	st     styles
}

// New returns a Printer writing to w.
func New(w io.Writer, opts ...Option) *Printer {
	p := &Printer{w: w, device: "device"}
	for _, opt := range opts {
		opt(p)
	}

	r := lipgloss.NewRenderer(w)
	if !p.colorEnabled() {
		r.SetColorProfile(termenv.Ascii)
	}
	p.st = styles{
		info:     r.NewStyle(),
		progress: r.NewStyle().Foreground(lipgloss.Color("#00BCD4")),
		status:   r.NewStyle().Faint(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("#FFB300")),
		success:  r.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		failure:  r.NewStyle().Foreground(lipgloss.Color("#F44336")).Bold(true),
	}
	return p
}

func (p *Printer) colorEnabled() bool {
	if p.color != nil {
		return *p.color
	}
	f, ok := p.w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// lines writes each line through style. Lines are rendered one at a time
// so the renderer never pads them to a common width.
func (p *Printer) lines(style lipgloss.Style, lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		if line == "" {
			fmt.Fprintln(p.w)
			continue
		}
		fmt.Fprintln(p.w, style.Render(line))
	}
}

// Opening announces the port about to be opened.
func (p *Printer) Opening(port string, baud int) {
	p.lines(p.st.info, fmt.Sprintf("Opening serial port: %s at %d baud", port, baud))
}

// Opened confirms the port is open.
func (p *Printer) Opened() {
	p.lines(p.st.info, "Serial port opened successfully")
}

// OpenFailed reports a port that could not be opened.
func (p *Printer) OpenFailed(err error) {
	p.lines(p.st.failure, fmt.Sprintf("Error opening serial port: %v", err))
}

// Injecting announces the startup parameter and the settle wait.
func (p *Printer) Injecting(value string) {
	p.lines(p.st.info,
		fmt.Sprintf("Sending startup parameter: %s", value),
		fmt.Sprintf("Waiting for %s to be ready...", p.device),
	)
}

// InjectFailed reports a parameter that could not be written.
func (p *Printer) InjectFailed(err error) {
	p.lines(p.st.failure, fmt.Sprintf("Error sending parameter: %v", err))
}

// Injected confirms the parameter was written.
func (p *Printer) Injected() {
	p.lines(p.st.info,
		"Parameter sent successfully",
		"Note: If the firmware is not built to read its configuration from the console,",
		"      it will use its built-in default instead.",
	)
}

// Waiting prints the startup guidance shown before observation begins.
func (p *Printer) Waiting() {
	p.lines(p.st.info,
		"",
		fmt.Sprintf("--- Waiting for %s output (tests should start shortly) ---", p.device),
		"",
		fmt.Sprintf("If no output appears, the %s may be:", p.device),
		"  - Still booting (wait a few more seconds)",
		"  - Connecting to the network",
		"  - Not configured to read its startup parameter from the console",
		"",
	)
}

// Progress implements observe.Reporter.
func (p *Printer) Progress(pr detect.Progress) {
	p.lines(p.st.progress, "",
		fmt.Sprintf("[Progress: Test case %d/%d (%d%%)]", pr.Current, pr.Total, pr.Percent()))
}

// Status implements observe.Reporter.
func (p *Printer) Status(s deadline.Status) {
	p.lines(p.st.status, "", FormatStatus(s))
}

// FormatStatus renders a status line. Inside the grace period only seconds
// are shown; afterwards minutes and seconds.
func FormatStatus(s deadline.Status) string {
	secs := int(s.Elapsed / time.Second)
	if s.InGrace {
		return fmt.Sprintf("[Status: Waiting for initial output... (%ds elapsed)]", secs)
	}
	return fmt.Sprintf("[Status: Waiting for output... (%dm %ds elapsed)]", secs/60, secs%60)
}

// Hint implements observe.Reporter.
func (p *Printer) Hint() {
	p.lines(p.st.warning,
		"",
		"[Warning: No output received yet. Possible issues:]",
		"  - Firmware not configured to read its startup parameter from the console",
		"  - Network not connected (check credentials)",
		"  - Wrong serial port or baud rate (run 'serialwatch ports' to list ports)",
		"  - Firmware not flashed correctly",
		"",
		fmt.Sprintf("  Try: Press the RESET button on the %s or check the serial connection", p.device),
	)
}

// Outcome prints the final verdict for a run with the given timeout.
func (p *Printer) Outcome(o observe.Outcome, timeout time.Duration) {
	switch o.State {
	case observe.StateSuccess:
		p.lines(p.st.success, "", "✓ Test suite completed successfully!")
	case observe.StateTimeout:
		p.lines(p.st.warning, "",
			fmt.Sprintf("⚠ Timeout after %ds - tests may still be running", int(timeout/time.Second)))
	case observe.StateInterrupted:
		p.lines(p.st.warning, "", "Interrupted by user")
	case observe.StateLinkLost:
		p.lines(p.st.failure, "", fmt.Sprintf("✗ Serial link lost: %v", o.Err))
	}
}

var _ observe.Reporter = (*Printer)(nil)
