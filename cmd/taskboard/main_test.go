package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alekspetrov/taskboard/internal/adapters/slack"
	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/bot"
	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
	"github.com/alekspetrov/taskboard/internal/interpreter"
	"github.com/alekspetrov/taskboard/internal/reminders"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.String(), "taskboard v"+version+"\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRootHasCommands(t *testing.T) {
	cmd := newRootCmd()
	want := []string{"serve", "bot", "remind", "board", "doctor", "version"}
	for _, name := range want {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{"sqlite", config.StoreConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "a.db")}, false},
		{"file", config.StoreConfig{Driver: config.DriverFile, Path: filepath.Join(dir, "board.json")}, false},
		{"remote", config.StoreConfig{Driver: config.DriverRemote, URL: "http://127.0.0.1:1", Timeout: time.Second}, false},
		{"unknown", config.StoreConfig{Driver: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				_ = store.Close()
			}
		})
	}
}

func TestPrintCandidates(t *testing.T) {
	var out bytes.Buffer
	printCandidates(&out, nil, time.UTC)
	if got := out.String(); got != "No reminders due.\n" {
		t.Errorf("empty output = %q", got)
	}

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	due := now.Add(90 * time.Minute)
	task := board.Task{ID: "t1", Title: "Send invoice", DueDate: &due}
	out.Reset()
	printCandidates(&out, []reminders.Candidate{reminders.NewCandidate(task, now)}, time.UTC)

	got := out.String()
	for _, want := range []string{"t1", "Send invoice", "  -  ", "due in 1h 30m at 10:30 AM", "1 reminder(s) due"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderBoard(t *testing.T) {
	if got := renderBoard(nil, nil, time.UTC); got != "No stages found." {
		t.Errorf("renderBoard(nil) = %q", got)
	}

	stages := []board.Stage{
		{ID: "todo", Name: "To Do", Color: "#6B7280", Order: 0},
		{ID: "done", Name: "Done", Color: "#10B981", Order: 1},
	}
	due := time.Date(2026, 4, 3, 23, 59, 0, 0, time.UTC)
	tasks := []board.Task{{
		ID:       "t1",
		Title:    "Draft proposal",
		Client:   "Acme",
		Priority: board.PriorityHigh,
		StageID:  "todo",
		DueDate:  &due,
		Checklist: []board.ChecklistItem{
			{ID: "c1", Text: "outline", Completed: true},
			{ID: "c2", Text: "pricing"},
		},
	}}

	got := renderBoard(stages, tasks, time.UTC)
	for _, want := range []string{"To Do (1)", "Done (0)", "Draft proposal", "[1/2]", "Acme", "due Apr 3", "empty"} {
		if !strings.Contains(got, want) {
			t.Errorf("board missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "11:59 PM") {
		t.Errorf("end-of-day due date should omit the time:\n%s", got)
	}
}

func TestPrintReport(t *testing.T) {
	report := &health.Report{Checks: []health.Check{
		{Name: "store", Status: health.StatusOK, Message: "file ./board.json"},
		{Name: "slack", Status: health.StatusError, Message: "bot token missing", Fix: "export SLACK_BOT_TOKEN=xoxb-..."},
	}}

	var out bytes.Buffer
	printReport(&out, report, false)
	if strings.Contains(out.String(), "SLACK_BOT_TOKEN") {
		t.Errorf("fix shown without --verbose:\n%s", out.String())
	}

	out.Reset()
	printReport(&out, report, true)
	for _, want := range []string{"store", "file ./board.json", "bot token missing", "→ export SLACK_BOT_TOKEN=xoxb-..."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestMessageHandler(t *testing.T) {
	store, err := openStore(&config.StoreConfig{Driver: config.DriverFile, Path: filepath.Join(t.TempDir(), "board.json")})
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	handle := messageHandler(bot.New(store, interpreter.New(nil)))
	ctx := context.Background()

	reply := handle(ctx, &slack.Event{Kind: slack.EventSlashCommand, Command: "/task", UserID: "U1"})
	if !strings.HasPrefix(reply, "Please provide a task description.") {
		t.Errorf("empty slash command reply = %q", reply)
	}

	reply = handle(ctx, &slack.Event{Kind: slack.EventDirect, Text: "help", UserID: "U1", ChannelID: "D1"})
	if !strings.HasPrefix(reply, "Hi! I can help you manage tasks.") {
		t.Errorf("help reply = %q", reply)
	}
}

func TestStartRemindersDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reminders.Enabled = false

	sched, stop := startReminders(context.Background(), cfg, nil, time.UTC)
	if sched != nil || stop != nil {
		t.Error("startReminders returned a scheduler with reminders disabled")
	}
}
