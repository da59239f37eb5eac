package health

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alekspetrov/taskboard/internal/config"
)

type fakeClock struct{ t time.Time }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMonitorTransitions(t *testing.T) {
	clk := newClock()
	m := NewMonitor(2*time.Minute, WithClock(clk.now))

	if s := m.Snapshot(); s.State != StateStarting || s.Connected || s.LastPing != nil {
		t.Fatalf("initial snapshot = %+v, want starting", s)
	}

	m.MarkConnected()
	if s := m.Snapshot(); s.State != StateConnected || !s.Connected {
		t.Errorf("after connect = %+v", s)
	}

	m.MarkDegraded(errors.New("websocket read: EOF"))
	s := m.Snapshot()
	if s.State != StateDegraded || s.Connected || s.Error != "websocket read: EOF" {
		t.Errorf("after degrade = %+v", s)
	}

	m.MarkConnected()
	if s := m.Snapshot(); s.State != StateConnected || s.Error != "" {
		t.Errorf("reconnect should clear error, got %+v", s)
	}

	m.MarkStopped()
	if s := m.Snapshot(); s.State != StateStopped || s.Connected {
		t.Errorf("after stop = %+v", s)
	}
}

func TestMonitorStaleness(t *testing.T) {
	tests := []struct {
		name      string
		silence   time.Duration
		heartbeat bool
		wantState State
	}{
		{name: "fresh", silence: time.Minute, wantState: StateConnected},
		{name: "exactly at window", silence: 2 * time.Minute, wantState: StateConnected},
		{name: "stale", silence: 2*time.Minute + time.Second, wantState: StateDegraded},
		{name: "heartbeat keeps alive", silence: 3 * time.Minute, heartbeat: true, wantState: StateConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newClock()
			m := NewMonitor(2*time.Minute, WithClock(clk.now))
			m.MarkConnected()

			if tt.heartbeat {
				clk.advance(tt.silence / 2)
				m.Heartbeat()
				clk.advance(tt.silence / 2)
			} else {
				clk.advance(tt.silence)
			}

			s := m.Snapshot()
			if s.State != tt.wantState {
				t.Errorf("State = %q, want %q", s.State, tt.wantState)
			}
			if tt.wantState == StateDegraded {
				if s.Connected {
					t.Error("stale bot reported connected")
				}
				if s.Error != "Bot has not responded in over 2 minutes" {
					t.Errorf("Error = %q", s.Error)
				}
			}
		})
	}
}

func TestMonitorStatusFile(t *testing.T) {
	clk := newClock()
	path := filepath.Join(t.TempDir(), "bot", "status.json")
	m := NewMonitor(2*time.Minute, WithClock(clk.now), WithStatusFile(path))
	m.MarkConnected()

	src := &FileSource{Path: path, Staleness: 2 * time.Minute, Now: clk.now}
	if s := src.Snapshot(); s.State != StateConnected || !s.Connected {
		t.Fatalf("file snapshot = %+v, want connected", s)
	}

	clk.advance(5 * time.Minute)
	s := src.Snapshot()
	if s.State != StateDegraded || s.Connected {
		t.Errorf("stale file snapshot = %+v, want degraded", s)
	}

	m.MarkStopped()
	if s := src.Snapshot(); s.State != StateStopped {
		t.Errorf("State = %q, want stopped", s.State)
	}
}

func TestMonitorHeartbeatThrottlesWrites(t *testing.T) {
	clk := newClock()
	path := filepath.Join(t.TempDir(), "status.json")
	m := NewMonitor(2*time.Minute, WithClock(clk.now), WithStatusFile(path))
	m.MarkConnected()

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Second)
	m.Heartbeat()
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("heartbeat within the write interval should not rewrite the file")
	}

	clk.advance(heartbeatWriteInterval)
	m.Heartbeat()
	after, _ = os.ReadFile(path)
	if string(before) == string(after) {
		t.Error("heartbeat after the write interval should rewrite the file")
	}
}

func TestFileSourceMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := &FileSource{Path: filepath.Join(dir, "missing.json")}
	if s := missing.Snapshot(); s.Connected || s.Error == "" {
		t.Errorf("missing file snapshot = %+v", s)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if s := (&FileSource{Path: corrupt}).Snapshot(); s.Connected || s.Error != "Failed to read bot status" {
		t.Errorf("corrupt file snapshot = %+v", s)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Minute, "1 minute"},
		{2 * time.Minute, "2 minutes"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := humanDuration(tt.d); got != tt.want {
			t.Errorf("humanDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestStatusSymbol(t *testing.T) {
	tests := []struct {
		status Status
		symbol string
		name   string
	}{
		{StatusOK, "✓", "ok"},
		{StatusWarning, "○", "warning"},
		{StatusError, "✗", "error"},
		{StatusDisabled, "·", "disabled"},
		{Status(99), "?", "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.Symbol(); got != tt.symbol {
			t.Errorf("Status(%d).Symbol() = %q, want %q", tt.status, got, tt.symbol)
		}
		if got := tt.status.String(); got != tt.name {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.name)
		}
	}
}

func findCheck(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return Check{}
}

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		check      string
		wantStatus Status
	}{
		{name: "llm without key", mutate: func(c *config.Config) { c.LLM.APIKey = "" }, check: "llm", wantStatus: StatusWarning},
		{name: "llm ready", mutate: func(c *config.Config) { c.LLM.APIKey = "sk-test" }, check: "llm", wantStatus: StatusOK},
		{name: "llm disabled", mutate: func(c *config.Config) { c.LLM.Enabled = false }, check: "llm", wantStatus: StatusDisabled},
		{name: "slack disabled", mutate: func(c *config.Config) {}, check: "slack", wantStatus: StatusDisabled},
		{name: "slack without token", mutate: func(c *config.Config) { c.Slack.Enabled = true }, check: "slack", wantStatus: StatusError},
		{name: "slack without app token", mutate: func(c *config.Config) { c.Slack.Enabled = true; c.Slack.BotToken = "xoxb" }, check: "slack", wantStatus: StatusWarning},
		{name: "slack ready", mutate: func(c *config.Config) {
			c.Slack.Enabled = true
			c.Slack.BotToken = "xoxb"
			c.Slack.AppToken = "xapp"
		}, check: "slack", wantStatus: StatusOK},
		{name: "reminders without channel", mutate: func(c *config.Config) {}, check: "reminders", wantStatus: StatusWarning},
		{name: "reminders ready", mutate: func(c *config.Config) {
			c.Slack.Enabled = true
			c.Slack.BotToken = "xoxb"
			c.Slack.RemindersChannel = "C1"
		}, check: "reminders", wantStatus: StatusOK},
		{name: "redis off", mutate: func(c *config.Config) {}, check: "redis", wantStatus: StatusDisabled},
		{name: "redis on", mutate: func(c *config.Config) { c.Redis.URL = "redis://localhost:6379" }, check: "redis", wantStatus: StatusOK},
		{name: "remote store", mutate: func(c *config.Config) { c.Store.Driver = config.DriverRemote }, check: "store", wantStatus: StatusOK},
		{name: "unknown store", mutate: func(c *config.Config) { c.Store.Driver = "mongo" }, check: "store", wantStatus: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Store.Path = filepath.Join(t.TempDir(), "taskboard.db")
			tt.mutate(cfg)

			report := RunChecks(cfg)
			c := findCheck(t, report, tt.check)
			if c.Status != tt.wantStatus {
				t.Errorf("%s status = %s (%s), want %s", tt.check, c.Status, c.Message, tt.wantStatus)
			}
			if (tt.wantStatus == StatusError) != report.HasErrors() {
				t.Errorf("HasErrors() = %v", report.HasErrors())
			}
		})
	}
}
