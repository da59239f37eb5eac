package interpreter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/llm"
)

type stubModel struct {
	reply  string
	err    error
	system string
	user   string
	block  bool
}

func (s *stubModel) Complete(ctx context.Context, system, user string) (string, error) {
	s.system, s.user = system, user
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

var fixedNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestInterpreter(m Model) *Interpreter {
	if m == nil {
		return New(nil, WithLocation(time.UTC), WithClock(func() time.Time { return fixedNow }))
	}
	return New(m, WithLocation(time.UTC), WithClock(func() time.Time { return fixedNow }), WithTimeout(100*time.Millisecond))
}

func TestFallback(t *testing.T) {
	long := strings.Repeat("a", 150)
	tests := []struct {
		name         string
		message      string
		wantTitle    string
		wantPriority board.Priority
	}{
		{"urgent", "URGENT: fix login", "URGENT: fix login", board.PriorityHigh},
		{"asap", "call bank asap", "call bank asap", board.PriorityHigh},
		{"high priority", "review contract, high priority", "review contract, high priority", board.PriorityHigh},
		{"low", "tidy docs when you can", "tidy docs when you can", board.PriorityLow},
		{"plain", "  buy milk  ", "buy milk", board.PriorityMedium},
		{"empty", "   ", "New Task", board.PriorityMedium},
		{"long", long, strings.Repeat("a", 100), board.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Fallback(tt.message)
			if d.Title != tt.wantTitle || d.Priority != tt.wantPriority {
				t.Errorf("Fallback(%q) = %q/%s, want %q/%s", tt.message, d.Title, d.Priority, tt.wantTitle, tt.wantPriority)
			}
			if d.Client != "" || d.DueDate != nil || d.RemindMeInMinutes != nil || len(d.Checklist) != 0 {
				t.Errorf("fallback set extra fields: %+v", d)
			}
		})
	}
}

func TestInterpretUsesModel(t *testing.T) {
	model := &stubModel{reply: "```json\n" + `{
		"title": " Create proposal ",
		"client": "Acme Corp",
		"priority": "HIGH",
		"dueDate": "2026-01-16",
		"checklist": ["  draft outline ", {"text": "pricing"}, "", null, {"text": "   "}]
	}` + "\n```"}
	i := newTestInterpreter(model)

	d := i.Interpret(context.Background(), "Create a proposal for acme, high priority, due tomorrow", []string{"Acme Corp", "Globex"})

	if d.Title != "Create proposal" || d.Client != "Acme Corp" || d.Priority != board.PriorityHigh {
		t.Errorf("draft = %+v", d)
	}
	wantDue := time.Date(2026, 1, 16, 23, 59, 0, 0, time.UTC)
	if d.DueDate == nil || !d.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", d.DueDate, wantDue)
	}
	if len(d.Checklist) != 2 {
		t.Fatalf("checklist = %+v", d.Checklist)
	}
	for n, item := range d.Checklist {
		if item.ID != []string{"temp-0", "temp-1"}[n] || item.Completed {
			t.Errorf("item %d = %+v", n, item)
		}
	}
	if d.Checklist[0].Text != "draft outline" || d.Checklist[1].Text != "pricing" {
		t.Errorf("checklist text = %+v", d.Checklist)
	}

	if !strings.Contains(model.system, "Existing clients in the system: Acme Corp, Globex") {
		t.Error("system prompt missing client context")
	}
	if !strings.Contains(model.user, "Today's date is 2026-01-15") {
		t.Errorf("user prompt missing date: %q", model.user)
	}
}

func TestInterpretSanitizes(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		check func(t *testing.T, d board.TaskDraft)
	}{
		{
			name:  "missing title uses message",
			reply: `{"priority": "low"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Title != "remind me later" || d.Priority != board.PriorityLow {
					t.Errorf("draft = %+v", d)
				}
			},
		},
		{
			name:  "unknown priority coerced",
			reply: `{"title": "x", "priority": "critical"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Priority != board.PriorityMedium {
					t.Errorf("priority = %s", d.Priority)
				}
			},
		},
		{
			name:  "timestamp due with reminder",
			reply: `{"title": "call", "dueDate": "2026-01-16T15:00:00Z", "remindMeInMinutes": 30}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.DueDate == nil || d.DueDate.Hour() != 15 {
					t.Errorf("DueDate = %v", d.DueDate)
				}
				if d.RemindMeInMinutes == nil || *d.RemindMeInMinutes != 30 {
					t.Errorf("RemindMeInMinutes = %v", d.RemindMeInMinutes)
				}
			},
		},
		{
			name:  "reminder without due dropped",
			reply: `{"title": "x", "remindMeInMinutes": 15}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.RemindMeInMinutes != nil {
					t.Errorf("RemindMeInMinutes = %v", *d.RemindMeInMinutes)
				}
			},
		},
		{
			name:  "uppercase priority accepted",
			reply: `{"title": "x", "priority": "HIGH"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Priority != board.PriorityHigh {
					t.Errorf("priority = %s", d.Priority)
				}
			},
		},
		{
			name:  "numeric priority coerced",
			reply: `{"title": "Call Globex", "client": "Globex", "priority": 2, "checklist": ["agenda"]}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Title != "Call Globex" || d.Client != "Globex" || d.Priority != board.PriorityMedium {
					t.Errorf("draft = %+v", d)
				}
				if len(d.Checklist) != 1 || d.Checklist[0].Text != "agenda" {
					t.Errorf("Checklist = %+v", d.Checklist)
				}
			},
		},
		{
			name:  "string checklist emptied",
			reply: `{"title": "Prep meeting", "priority": "high", "checklist": "prep deck"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Title != "Prep meeting" || d.Priority != board.PriorityHigh {
					t.Errorf("draft = %+v", d)
				}
				if len(d.Checklist) != 0 {
					t.Errorf("Checklist = %+v, want empty", d.Checklist)
				}
			},
		},
		{
			name:  "numeric title uses message",
			reply: `{"title": 42, "client": "Acme"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.Title != "remind me later" || d.Client != "Acme" {
					t.Errorf("draft = %+v", d)
				}
			},
		},
		{
			name:  "negative reminder dropped",
			reply: `{"title": "x", "dueDate": "2026-01-16T15:00:00Z", "remindMeInMinutes": -5}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.DueDate == nil || d.RemindMeInMinutes != nil {
					t.Errorf("DueDate = %v, RemindMeInMinutes = %v", d.DueDate, d.RemindMeInMinutes)
				}
			},
		},
		{
			name:  "unparseable due ignored",
			reply: `{"title": "x", "dueDate": "next friday"}`,
			check: func(t *testing.T, d board.TaskDraft) {
				if d.DueDate != nil {
					t.Errorf("DueDate = %v", d.DueDate)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestInterpreter(&stubModel{reply: tt.reply}).Interpret(context.Background(), "remind me later", nil)
			tt.check(t, d)
		})
	}
}

func TestInterpretFallsBack(t *testing.T) {
	const msg = "urgent: renew domain"
	tests := []struct {
		name  string
		model Model
	}{
		{"no model", nil},
		{"rate limited", &stubModel{err: llm.ErrRateLimited}},
		{"transport error", &stubModel{err: errors.New("connection refused")}},
		{"timeout", &stubModel{block: true}},
		{"not json", &stubModel{reply: "Sure! Here is your task."}},
		{"array", &stubModel{reply: `["title"]`}},
		{"string", &stubModel{reply: `"renew domain"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var i *Interpreter
			if tt.model == nil {
				i = newTestInterpreter(nil)
			} else {
				i = newTestInterpreter(tt.model)
			}
			d := i.Interpret(context.Background(), msg, nil)
			if d.Title != msg || d.Priority != board.PriorityHigh {
				t.Errorf("draft = %+v, want fallback", d)
			}
		})
	}
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name        string
		in          any
		wantDropped []string
		wantErr     bool
	}{
		{"valid", map[string]any{"title": "x", "priority": "low"}, nil, false},
		{"numeric priority", map[string]any{"title": "x", "priority": float64(2)}, []string{"priority"}, false},
		{"string checklist", map[string]any{"title": "x", "checklist": "prep deck"}, []string{"checklist"}, false},
		{"bad checklist item kept for sanitize", map[string]any{"checklist": []any{float64(1), "ok"}}, nil, false},
		{"array", []any{"title"}, nil, true},
		{"string", "title", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, dropped, err := checkShape(tt.in)
			if tt.wantErr {
				var se *SchemaError
				if !errors.As(err, &se) {
					t.Fatalf("err = %v, want *SchemaError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("checkShape() error = %v", err)
			}
			if len(dropped) != len(tt.wantDropped) {
				t.Fatalf("dropped = %v, want %v", dropped, tt.wantDropped)
			}
			for i, name := range tt.wantDropped {
				if dropped[i] != name {
					t.Errorf("dropped[%d] = %q, want %q", i, dropped[i], name)
				}
				if _, ok := fields[name]; ok {
					t.Errorf("field %q still present", name)
				}
			}
			if _, ok := fields["title"]; !ok && tt.in.(map[string]any)["title"] != nil {
				t.Error("valid title removed")
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range tests {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	tasks := []board.Task{{Title: "Invoice", Priority: board.PriorityHigh, Client: "Acme"}, {Title: "Docs", Priority: board.PriorityLow}}

	if got := newTestInterpreter(nil).Summarize(context.Background(), tasks); got != summaryFallback {
		t.Errorf("no model: %q", got)
	}
	if got := newTestInterpreter(&stubModel{reply: "x"}).Summarize(context.Background(), nil); got != summaryEmpty {
		t.Errorf("no tasks: %q", got)
	}
	if got := newTestInterpreter(&stubModel{err: errors.New("boom")}).Summarize(context.Background(), tasks); got != summaryFallback {
		t.Errorf("model error: %q", got)
	}

	model := &stubModel{reply: " You have two tasks. "}
	if got := newTestInterpreter(model).Summarize(context.Background(), tasks); got != "You have two tasks." {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(model.user, "- Invoice (high priority, Acme)") || !strings.Contains(model.user, "- Docs (low priority, no client)") {
		t.Errorf("summary prompt = %q", model.user)
	}
}
