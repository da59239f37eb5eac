package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Startup prints the startup header for a long-running command: version,
// mode, the config checks in a compact grid and the listen lines.
func Startup(w io.Writer, version, mode string, cfg *config.Config, listen ...string) {
	report := health.RunChecks(cfg)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "TASKBOARD v%s │ %s\n", version, mode)
	fmt.Fprintln(w, rule)

	const cols, colWidth = 3, 14
	for i, c := range report.Checks {
		name := c.Name
		if c.Status == health.StatusWarning || c.Status == health.StatusError {
			name += "*"
		}
		fmt.Fprintf(w, "%s %-*s", c.Status.Symbol(), colWidth-2, name)
		if (i+1)%cols == 0 || i == len(report.Checks)-1 {
			fmt.Fprintln(w)
		}
	}

	var notes []string
	for _, c := range report.Checks {
		if c.Status == health.StatusWarning || c.Status == health.StatusError {
			notes = append(notes, fmt.Sprintf("  * %s: %s", c.Name, c.Message))
		}
	}
	if len(notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(notes, "\n"))
	}

	if len(listen) > 0 {
		fmt.Fprintln(w)
		for _, l := range listen {
			fmt.Fprintln(w, l)
		}
	}
	fmt.Fprintln(w, "Listening... (Ctrl+C to stop)")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
