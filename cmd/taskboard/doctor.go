package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
)

var statusStyles = map[health.Status]lipgloss.Style{
	health.StatusOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("#7ec699")),
	health.StatusWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#d4a054")),
	health.StatusError:    lipgloss.NewStyle().Foreground(lipgloss.Color("#d48a8a")),
	health.StatusDisabled: lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e")),
}

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration",
		Long: `Check the configuration for missing tokens, keys and settings.

Examples:
  taskboard doctor           # Run all checks
  taskboard doctor --verbose # Show how to fix problems`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "%s %v\n\n", statusStyles[health.StatusError].Render(health.StatusError.Symbol()), err)
				cfg = config.DefaultConfig()
			}

			report := health.RunChecks(cfg)
			printReport(out, report, verbose)
			if report.HasErrors() || err != nil {
				return errors.New("configuration has errors")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show fixes for each problem")
	return cmd
}

func printReport(w io.Writer, report *health.Report, verbose bool) {
	fmt.Fprintln(w, "Taskboard Health Check")
	fmt.Fprintln(w, "======================")
	for _, c := range report.Checks {
		symbol := statusStyles[c.Status].Render(c.Status.Symbol())
		fmt.Fprintf(w, "  %s %-10s %s\n", symbol, c.Name, c.Message)
		if verbose && c.Fix != "" {
			fmt.Fprintf(w, "               → %s\n", c.Fix)
		}
	}
}
