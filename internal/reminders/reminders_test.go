package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alekspetrov/taskboard/internal/board"
)

func intPtr(v int) *int { return &v }

// memStore is an in-memory ReminderStore.
type memStore struct {
	mu      sync.Mutex
	tasks   []board.Task
	listErr error
	markErr error
	block   bool
	marked  []string
}

func (m *memStore) ListTasksNeedingReminders(ctx context.Context) ([]board.Task, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []board.Task
	for _, t := range m.tasks {
		if !t.ReminderSent && t.DueDate != nil && t.RemindMeInMinutes != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].ReminderSent = true
			m.marked = append(m.marked, id)
			return nil
		}
	}
	return board.ErrNotFound
}

func (m *memStore) apply(id string, p board.TaskPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Apply(p)
		}
	}
}

type sent struct {
	target string
	n      *Notification
}

// fakeNotifier records notifications and fails for task IDs in failFor.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sent
	failFor map[string]bool
}

func (f *fakeNotifier) Notify(_ context.Context, target string, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[n.TaskID] {
		return errors.New("slack unavailable")
	}
	f.sent = append(f.sent, sent{target: target, n: n})
	return nil
}

func taskDue(id string, due time.Time, lead int) board.Task {
	return board.Task{ID: id, Title: "Task " + id, Priority: board.PriorityMedium, DueDate: &due, RemindMeInMinutes: intPtr(lead)}
}

func TestFormatRelative(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "now"},
		{-3, "now"},
		{1, "in 1 minute"},
		{45, "in 45 minutes"},
		{59, "in 59 minutes"},
		{60, "in 1 hour"},
		{120, "in 2 hours"},
		{90, "in 1h 30m"},
		{1441, "in 24h 1m"},
	}
	for _, tt := range tests {
		if got := FormatRelative(tt.minutes); got != tt.want {
			t.Errorf("FormatRelative(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatAbsolute(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name string
		due  time.Time
		loc  *time.Location
		want string
	}{
		{"afternoon", time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), time.UTC, " at 3:00 PM"},
		{"morning", time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC), time.UTC, " at 9:05 AM"},
		{"end of day", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), time.UTC, ""},
		{"end of day in zone", time.Date(2026, 3, 2, 4, 59, 0, 0, time.UTC), ny, ""},
		{"utc end of day elsewhere", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), ny, " at 6:59 PM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAbsolute(tt.due, tt.loc); got != tt.want {
				t.Errorf("FormatAbsolute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCandidateRounding(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		due       time.Time
		wantMins  int
		wantHours int
	}{
		{"rounds up", now.Add(29*time.Minute + 31*time.Second), 30, 0},
		{"rounds down", now.Add(29*time.Minute + 29*time.Second), 29, 0},
		{"hours floor", now.Add(150 * time.Minute), 150, 2},
		{"past due", now.Add(-2 * time.Hour), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCandidate(taskDue("a", tt.due, 30), now)
			if c.MinutesRemaining != tt.wantMins || c.HoursRemaining != tt.wantHours {
				t.Errorf("got %d min / %d h, want %d / %d", c.MinutesRemaining, c.HoursRemaining, tt.wantMins, tt.wantHours)
			}
		})
	}
}

func TestBuildNotification(t *testing.T) {
	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task := taskDue("abc", due, 30)
	task.Title = "Send invoice"
	c := NewCandidate(task, due.Add(-30*time.Minute))

	n := BuildNotification(c, "https://board.example.com/", time.UTC)
	if n.URL != "https://board.example.com/?task=abc" {
		t.Errorf("URL = %q", n.URL)
	}
	if n.ClientLabel() != "None" {
		t.Errorf("ClientLabel() = %q", n.ClientLabel())
	}
	want := `Reminder: "Send invoice" is due in 30 minutes at 3:00 PM`
	if n.Text() != want {
		t.Errorf("Text() = %q, want %q", n.Text(), want)
	}
}

func TestScanFiltersByThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{tasks: []board.Task{
		taskDue("future", now.Add(2*time.Hour), 30),
		taskDue("due-soon", now.Add(20*time.Minute), 30),
		taskDue("overdue", now.Add(-time.Hour), 15),
		taskDue("zero-lead", now, 0),
	}}

	got := NewScanner(store, time.Second).Scan(context.Background(), now)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.Task.ID)
	}
	if len(ids) != 3 || ids[0] != "due-soon" || ids[1] != "overdue" || ids[2] != "zero-lead" {
		t.Errorf("candidates = %v", ids)
	}
	if got[1].MinutesRemaining != 0 {
		t.Errorf("overdue minutes = %d, want 0", got[1].MinutesRemaining)
	}
}

func TestScanFailsSoft(t *testing.T) {
	now := time.Now()
	if got := NewScanner(&memStore{listErr: errors.New("db down")}, time.Second).Scan(context.Background(), now); len(got) != 0 {
		t.Errorf("store error should yield no candidates, got %d", len(got))
	}

	start := time.Now()
	got := NewScanner(&memStore{block: true}, 50*time.Millisecond).Scan(context.Background(), now)
	if len(got) != 0 {
		t.Errorf("timeout should yield no candidates, got %d", len(got))
	}
	if time.Since(start) > 5*time.Second {
		t.Error("scan did not honor its timeout")
	}
}

func TestDispatchMarksOnlyDelivered(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{tasks: []board.Task{
		taskDue("a", now.Add(10*time.Minute), 30),
		taskDue("b", now.Add(10*time.Minute), 30),
		taskDue("c", now.Add(10*time.Minute), 30),
	}}
	notifier := &fakeNotifier{failFor: map[string]bool{"b": true}}
	d := NewDispatcher(store, notifier, DispatcherConfig{Target: "C123", PublicURL: "http://localhost:3000", Location: time.UTC})

	candidates := NewScanner(store, time.Second).Scan(context.Background(), now)
	res, err := d.Dispatch(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(notifier.sent) != 2 || notifier.sent[0].n.TaskID != "a" || notifier.sent[1].n.TaskID != "c" {
		t.Errorf("delivery order wrong: %+v", notifier.sent)
	}
	if notifier.sent[0].target != "C123" {
		t.Errorf("target = %q", notifier.sent[0].target)
	}
	if len(store.marked) != 2 || store.marked[0] != "a" || store.marked[1] != "c" {
		t.Errorf("marked = %v", store.marked)
	}

	// The failed one is retried next cycle.
	again := NewScanner(store, time.Second).Scan(context.Background(), now)
	if len(again) != 1 || again[0].Task.ID != "b" {
		t.Errorf("next cycle candidates = %+v", again)
	}
}

func TestDispatchWithoutTarget(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(&memStore{}, notifier, DispatcherConfig{})
	_, err := d.Dispatch(context.Background(), []Candidate{{Task: board.Task{ID: "a"}}})
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("err = %v, want ErrNoTarget", err)
	}
	if len(notifier.sent) != 0 {
		t.Error("nothing should be sent without a target")
	}
}

func TestDispatchCountsMarkFailures(t *testing.T) {
	now := time.Now()
	store := &memStore{tasks: []board.Task{taskDue("a", now, 5)}, markErr: errors.New("locked")}
	d := NewDispatcher(store, &fakeNotifier{}, DispatcherConfig{Target: "C1"})
	res, _ := d.Dispatch(context.Background(), []Candidate{NewCandidate(store.tasks[0], now)})
	if res.Sent != 1 || res.MarkFailed != 1 {
		t.Errorf("result = %+v", res)
	}
}

// A task due at T with a 30 minute lead is reminded exactly once when polled
// every minute around the threshold.
func TestReminderFiresOnceAtThreshold(t *testing.T) {
	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	store := &memStore{tasks: []board.Task{taskDue("t", due, 30)}}
	notifier := &fakeNotifier{}

	clock := due.Add(-31 * time.Minute)
	p := &Pipeline{
		Scanner:    NewScanner(store, time.Second),
		Dispatcher: NewDispatcher(store, notifier, DispatcherConfig{Target: "C1", PublicURL: "http://x", Location: time.UTC}),
		Now:        func() time.Time { return clock },
	}

	for _, offset := range []time.Duration{-31 * time.Minute, -30 * time.Minute, -29 * time.Minute} {
		clock = due.Add(offset)
		if _, err := p.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce at %v: %v", offset, err)
		}
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d reminders, want 1", len(notifier.sent))
	}
	if got := notifier.sent[0].n.Text(); got != `Reminder: "Task t" is due in 30 minutes at 3:00 PM` {
		t.Errorf("Text() = %q", got)
	}
}

func newRedisDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, time.Hour), mr
}

func TestRedisDeduperClaimRelease(t *testing.T) {
	d, mr := newRedisDeduper(t)
	ctx := context.Background()

	first, err := d.Claim(ctx, "reminder:a:1:30")
	if err != nil || !first {
		t.Fatalf("first Claim = %v, %v", first, err)
	}
	if again, _ := d.Claim(ctx, "reminder:a:1:30"); again {
		t.Error("second Claim should report false")
	}
	if ttl := mr.TTL("reminder:a:1:30"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}
	if err := d.Release(ctx, "reminder:a:1:30"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := d.Claim(ctx, "reminder:a:1:30"); !ok {
		t.Error("Claim after Release should succeed")
	}
}

func TestDispatchWithDeduper(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dedupe, mr := newRedisDeduper(t)
	ctx := context.Background()

	ok := taskDue("ok", now, 10)
	dup := taskDue("dup", now, 10)
	bad := taskDue("bad", now, 10)
	store := &memStore{tasks: []board.Task{ok, dup, bad}}
	notifier := &fakeNotifier{failFor: map[string]bool{"bad": true}}

	// A previous process delivered "dup" but died before latching it.
	if _, err := dedupe.Claim(ctx, ClaimKey(dup)); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	d := NewDispatcher(store, notifier, DispatcherConfig{Target: "C1", Deduper: dedupe})
	res, err := d.Dispatch(ctx, NewScanner(store, time.Second).Scan(ctx, now))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Sent != 1 || res.Duplicates != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].n.TaskID != "ok" {
		t.Errorf("sent = %+v", notifier.sent)
	}
	if mr.Exists(ClaimKey(bad)) {
		t.Error("claim for failed delivery should be released")
	}
	if !mr.Exists(ClaimKey(ok)) {
		t.Error("claim for delivered reminder should remain")
	}
}

func TestClaimKeyChangesWhenReArmed(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := taskDue("x", due, 30)
	b := taskDue("x", due.Add(time.Hour), 30)
	c := taskDue("x", due, 60)
	if ClaimKey(a) == ClaimKey(b) || ClaimKey(a) == ClaimKey(c) {
		t.Error("claim key must change when due date or lead time changes")
	}

	moved := a
	moved.Apply(board.TaskPatch{DueDate: board.Some(due.Add(time.Hour))})
	moved.Apply(board.TaskPatch{DueDate: board.Some(due)})
	if ClaimKey(moved) == ClaimKey(a) {
		t.Error("claim key must change when the due date returns to an earlier value")
	}
}

func TestDispatchDeliversReArmedReminder(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := due.Add(-30 * time.Minute)
	ctx := context.Background()

	tests := []struct {
		name  string
		rearm func(*memStore)
	}{
		{"due date moved away and back", func(m *memStore) {
			m.apply("x", board.TaskPatch{DueDate: board.Some(due.Add(24 * time.Hour))})
			m.apply("x", board.TaskPatch{DueDate: board.Some(due)})
		}},
		{"reminder sent reset", func(m *memStore) {
			unsent := false
			m.apply("x", board.TaskPatch{ReminderSent: &unsent})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dedupe, _ := newRedisDeduper(t)
			store := &memStore{tasks: []board.Task{taskDue("x", due, 60)}}
			notifier := &fakeNotifier{}
			d := NewDispatcher(store, notifier, DispatcherConfig{Target: "C1", Deduper: dedupe})
			p := &Pipeline{Scanner: NewScanner(store, time.Second), Dispatcher: d, Now: func() time.Time { return now }}

			if res, err := p.RunOnce(ctx); err != nil || res.Sent != 1 {
				t.Fatalf("first cycle = %+v, %v", res, err)
			}
			tt.rearm(store)

			res, err := p.RunOnce(ctx)
			if err != nil {
				t.Fatalf("second cycle: %v", err)
			}
			if res.Sent != 1 || res.Duplicates != 0 {
				t.Errorf("second cycle = %+v, want one delivery", res)
			}
			if len(notifier.sent) != 2 {
				t.Errorf("notifications = %d, want 2", len(notifier.sent))
			}
		})
	}
}

func TestScanIsReadOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{tasks: []board.Task{
		taskDue("a", now.Add(10*time.Minute), 30),
		taskDue("b", now.Add(-5*time.Minute), 0),
		taskDue("later", now.Add(3*time.Hour), 30),
	}}
	s := NewScanner(store, time.Second)
	ctx := context.Background()

	ids := func(cs []Candidate) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Task.ID)
		}
		return out
	}
	first := ids(s.Scan(ctx, now))
	second := ids(s.Scan(ctx, now))

	if len(first) != 2 || len(first) != len(second) {
		t.Fatalf("scans = %v and %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("scan %d: %s != %s", i, first[i], second[i])
		}
	}
	if len(store.marked) != 0 {
		t.Errorf("Scan marked tasks: %v", store.marked)
	}
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
	ran   chan struct{}
}

func (r *countingRunner) RunOnce(context.Context) (Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	select {
	case r.ran <- struct{}{}:
	default:
	}
	return Result{Sent: 1}, nil
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &countingRunner{ran: make(chan struct{}, 1)}
	s := NewScheduler(runner, time.Hour)
	s.Start(context.Background())

	select {
	case <-runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run on start")
	}
	s.Stop()

	st := s.Status()
	if st.Running {
		t.Error("Status().Running after Stop")
	}
	if st.Runs != 1 || st.LastResult.Sent != 1 || st.Interval != time.Hour {
		t.Errorf("status = %+v", st)
	}
}
