package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/serialwatch/internal/serialport"
)

// maxProductWidth keeps long USB product strings from widening the table
// past a normal terminal.
const maxProductWidth = 40

func newPortsCmd(e *env) *cobra.Command {
	var (
		asJSON  bool
		usbOnly bool
	)
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Long: `List the serial ports the operating system reports, with USB vendor and
product IDs where available. Use this when a run prints no output and you
suspect the wrong port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := e.list()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}
			if usbOnly {
				ports = filterUSB(ports)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ports)
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), portsTable(ports))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&usbOnly, "usb", false, "only show USB devices")
	return cmd
}

func filterUSB(ports []serialport.PortInfo) []serialport.PortInfo {
	usb := make([]serialport.PortInfo, 0, len(ports))
	for _, p := range ports {
		if p.USB {
			usb = append(usb, p)
		}
	}
	return usb
}

func portsTable(ports []serialport.PortInfo) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PORT", "VID:PID", "SERIAL", "PRODUCT")
	for _, p := range ports {
		ids := "-"
		if p.USB {
			ids = p.VID + ":" + p.PID
		}
		t.Row(p.Name, ids, orDash(p.SerialNumber), orDash(ansi.Truncate(p.Product, maxProductWidth, "...")))
	}
	return t.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
