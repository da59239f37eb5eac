package health

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/alekspetrov/taskboard/internal/logging"
)

// DefaultStaleness is how long the bot may stay silent before it is reported
// as degraded.
const DefaultStaleness = 2 * time.Minute

// heartbeatWriteInterval throttles status file writes caused by heartbeats.
const heartbeatWriteInterval = 30 * time.Second

// State is the bot connection lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StateConnected State = "connected"
	StateDegraded  State = "degraded"
	StateStopped   State = "stopped"
)

// Snapshot is the externally visible bot status.
type Snapshot struct {
	State     State      `json:"state"`
	Connected bool       `json:"connected"`
	LastPing  *time.Time `json:"lastPing"`
	Error     string     `json:"error,omitempty"`
}

// StatusSource reports the current bot status.
type StatusSource interface {
	Snapshot() Snapshot
}

// Monitor tracks the chat connection: starting, connected, degraded, stopped.
// Silence longer than the staleness window reads as degraded even if no
// disconnect was observed.
type Monitor struct {
	mu        sync.Mutex
	state     State
	lastPing  time.Time
	err       string
	lastWrite time.Time

	staleness  time.Duration
	statusFile string
	now        func() time.Time
	log        *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStatusFile persists every transition to path so another process (the
// API server) can report on a separately running bot.
func WithStatusFile(path string) Option {
	return func(m *Monitor) {
		m.statusFile = path
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a monitor in the starting state.
func NewMonitor(staleness time.Duration, opts ...Option) *Monitor {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	m := &Monitor{
		state:     StateStarting,
		staleness: staleness,
		now:       time.Now,
		log:       logging.WithComponent("health"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MarkConnected records a live connection.
func (m *Monitor) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		m.log.Info("bot connected")
	}
	m.state = StateConnected
	m.lastPing = m.now()
	m.err = ""
	m.persistLocked()
}

// MarkDegraded records a lost or failing connection.
func (m *Monitor) MarkDegraded(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateDegraded
	m.err = "connection lost"
	if err != nil {
		m.err = err.Error()
	}
	m.log.Warn("bot degraded", slog.String("error", m.err))
	m.persistLocked()
}

// Heartbeat records proof of life without changing state.
func (m *Monitor) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPing = m.now()
	if m.lastPing.Sub(m.lastWrite) >= heartbeatWriteInterval {
		m.persistLocked()
	}
}

// MarkStopped records a clean shutdown.
func (m *Monitor) MarkStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateStopped
	m.err = ""
	m.persistLocked()
}

// Snapshot returns the status as of now, applying the staleness rule.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return applyStaleness(m.snapshotLocked(), m.now(), m.staleness)
}

func (m *Monitor) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     m.state,
		Connected: m.state == StateConnected,
		Error:     m.err,
	}
	if !m.lastPing.IsZero() {
		ping := m.lastPing
		s.LastPing = &ping
	}
	return s
}

func (m *Monitor) persistLocked() {
	if m.statusFile == "" {
		return
	}
	m.lastWrite = m.now()
	if err := writeStatusFile(m.statusFile, m.snapshotLocked()); err != nil {
		m.log.Warn("failed to write status file", slog.Any("error", err))
	}
}

func applyStaleness(s Snapshot, now time.Time, staleness time.Duration) Snapshot {
	if s.State == StateStopped || s.LastPing == nil {
		return s
	}
	if now.Sub(*s.LastPing) > staleness {
		s.State = StateDegraded
		s.Connected = false
		s.Error = "Bot has not responded in over " + humanDuration(staleness)
	}
	return s
}

func humanDuration(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	if n := int(d / time.Minute); n != 1 {
		return fmt.Sprintf("%d minutes", n)
	}
	return "1 minute"
}

func writeStatusFile(path string, s Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(&s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp, path)
}

// FileSource reads the status a bot process persisted with WithStatusFile.
type FileSource struct {
	Path      string
	Staleness time.Duration
	Now       func() time.Time
}

// Snapshot reads the status file. A missing or unreadable file reports a
// disconnected bot.
func (f *FileSource) Snapshot() Snapshot {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	staleness := f.Staleness
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{State: StateStopped, Error: "Status file not found. Bot may not have started yet."}
	}
	if err != nil {
		return Snapshot{State: StateStopped, Error: "Failed to read bot status"}
	}

	var s Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &s); err != nil {
		return Snapshot{State: StateStopped, Error: "Failed to read bot status"}
	}
	return applyStaleness(s, now(), staleness)
}
