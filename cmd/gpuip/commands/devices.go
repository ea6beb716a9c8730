package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FFF00"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute devices",
	Long: `List every CUDA device with its multiprocessor count, clock rate and
memory. Devices are scored by multiprocessors x clock rate; the device
marked with * is the one a pipeline run binds.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	drv, err := newDriver()
	if err != nil {
		return fmt.Errorf("device driver not available: %w", err)
	}
	devices, err := drv.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return gpu.ErrNoDevice
	}

	selected := cfg.Device.Ordinal
	if selected < 0 {
		best, err := gpu.SelectBest(devices)
		if err != nil {
			return err
		}
		selected = best.Ordinal
	}

	printDevices(cmd.OutOrStdout(), devices, selected, useColor())
	return nil
}

func printDevices(w io.Writer, devices []gpu.DeviceInfo, selected int, color bool) {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	header := fmt.Sprintf("  %-3s %-32s %5s %9s %12s %10s", "#", "NAME", "SMS", "CLOCK", "SCORE", "MEMORY")
	fmt.Fprintln(w, style(headerStyle, header))

	for _, d := range devices {
		mark := " "
		if d.Ordinal == selected {
			mark = "*"
		}
		line := fmt.Sprintf("%s %-3d %-32s %5d %5d MHz %12d %10s",
			mark, d.Ordinal, truncate(d.Name, 32), d.MultiProcessors, d.ClockRateKHz/1000, d.Score(), FormatBytes(d.TotalMemory))
		if d.Ordinal == selected {
			line = style(selectedStyle, line)
		} else {
			line = style(dimStyle, line)
		}
		fmt.Fprintln(w, line)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
