package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteSendsMessage(t *testing.T) {
	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"title\":\"x\"}"}]}`))
	}))
	defer server.Close()

	c := NewClient("sk-test", WithBaseURL(server.URL), WithModel("test-model"), WithMaxTokens(42))
	text, err := c.Complete(context.Background(), "be terse", "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"title":"x"}` {
		t.Errorf("text = %q", text)
	}
	if got.Model != "test-model" || got.MaxTokens != 42 || got.System != "be terse" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{"server error", http.StatusInternalServerError, `overloaded`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == 500 && se.Body == "overloaded"
		}},
		{"empty content", http.StatusOK, `{"content":[]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"non-text block", http.StatusOK, `{"content":[{"type":"tool_use"}]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"bad json", http.StatusOK, `not json`, func(err error) bool { return err != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient("k", WithBaseURL(server.URL)).Complete(context.Background(), "", "hi")
			if !tt.wantErr(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL), WithTimeout(50*time.Millisecond))
	if _, err := c.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected timeout error")
	}
}
