package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/logging"
)

const columnWidth = 32

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d4450")). // slate
			Padding(0, 1).
			Width(columnWidth)

	clientStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")) // mid gray

	dueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a054")) // amber

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")).
			Italic(true)
)

var priorityColors = map[board.Priority]lipgloss.Color{
	board.PriorityHigh:   lipgloss.Color("#d48a8a"), // dusty rose
	board.PriorityMedium: lipgloss.Color("#d4a054"), // amber
	board.PriorityLow:    lipgloss.Color("#7ec699"), // sage green
}

func newBoardCmd() *cobra.Command {
	var client string

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the board",
		Long: `Print every stage as a column with its tasks.

Examples:
  taskboard board
  taskboard board --client "Acme Corp"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Discard()

			loc, err := cfg.Reminders.Location()
			if err != nil {
				return err
			}
			store, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stages, err := store.ListStages(ctx)
			if err != nil {
				return fmt.Errorf("failed to list stages: %w", err)
			}
			tasks, err := store.ListTasks(ctx, board.Filter{Client: client})
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBoard(stages, tasks, loc))
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "only show tasks for this client")
	return cmd
}

// renderBoard lays stages out side by side in stage order.
func renderBoard(stages []board.Stage, tasks []board.Task, loc *time.Location) string {
	if len(stages) == 0 {
		return "No stages found."
	}
	byStage := make(map[string][]board.Task, len(stages))
	for _, t := range tasks {
		byStage[t.StageID] = append(byStage[t.StageID], t)
	}

	columns := make([]string, 0, len(stages))
	for _, s := range stages {
		columns = append(columns, renderColumn(s, byStage[s.ID], loc))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func renderColumn(s board.Stage, tasks []board.Task, loc *time.Location) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(s.Color)).
		Render(fmt.Sprintf("%s (%d)", s.Name, len(tasks)))

	lines := []string{header, ""}
	if len(tasks) == 0 {
		lines = append(lines, emptyStyle.Render("empty"))
	}
	for _, t := range tasks {
		lines = append(lines, renderCard(t, loc))
	}
	return columnStyle.Render(strings.Join(lines, "\n"))
}

func renderCard(t board.Task, loc *time.Location) string {
	marker := lipgloss.NewStyle().Foreground(priorityColors[t.Priority]).Render("●")
	card := marker + " " + t.Title
	if n := len(t.Checklist); n > 0 {
		done := 0
		for _, item := range t.Checklist {
			if item.Completed {
				done++
			}
		}
		card += fmt.Sprintf(" [%d/%d]", done, n)
	}
	if t.Client != "" {
		card += "\n  " + clientStyle.Render(t.Client)
	}
	if t.DueDate != nil {
		due := t.DueDate.In(loc)
		label := due.Format("Jan 2 3:04 PM")
		if due.Hour() == 23 && due.Minute() == 59 {
			label = due.Format("Jan 2")
		}
		card += "\n  " + dueStyle.Render("due "+label)
	}
	return card
}
