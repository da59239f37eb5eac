// Package remote implements board.Store against a running taskboard REST API,
// so the bot can run in a different process (or host) than the board.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alekspetrov/taskboard/internal/board"
)

// DefaultTimeout bounds every request to the board API.
const DefaultTimeout = 10 * time.Second

// Client talks to the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ board.Store = (*Client)(nil)

// NewClient creates a client for the API at baseURL (e.g. http://localhost:3000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the board API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board api: %d %s", e.Status, e.Message)
}

// Unwrap maps HTTP statuses back onto the board sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return board.ErrNotFound
	case e.Status == http.StatusBadRequest && strings.HasPrefix(e.Message, "Cannot delete stage with tasks"):
		return board.ErrStageNotEmpty
	case e.Status == http.StatusBadRequest:
		return board.ErrInvalid
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// ListTasks implements board.Store.
func (c *Client) ListTasks(ctx context.Context, f board.Filter) ([]board.Task, error) {
	q := url.Values{}
	if f.Client != "" {
		q.Set("client", f.Client)
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.StageID != "" {
		q.Set("stageId", f.StageID)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []board.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask implements board.Store.
func (c *Client) GetTask(ctx context.Context, id string) (board.Task, error) {
	var t board.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &t)
	return t, err
}

type taskEnvelope struct {
	Task board.Task `json:"task"`
}

// CreateTask implements board.Store.
func (c *Client) CreateTask(ctx context.Context, draft board.TaskDraft) (board.Task, error) {
	var resp taskEnvelope
	err := c.do(ctx, http.MethodPost, "/api/tasks", draft, &resp)
	return resp.Task, err
}

// UpdateTask implements board.Store.
func (c *Client) UpdateTask(ctx context.Context, id string, patch board.TaskPatch) (board.Task, error) {
	var resp taskEnvelope
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, &resp)
	return resp.Task, err
}

// DeleteTask implements board.Store.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

func checklistPath(taskID, itemID string) string {
	return "/api/tasks/" + url.PathEscape(taskID) + "/checklist/" + url.PathEscape(itemID)
}

// UpdateChecklistItem implements board.Store.
func (c *Client) UpdateChecklistItem(ctx context.Context, taskID, itemID string, patch board.ChecklistItemPatch) (board.ChecklistItem, error) {
	var resp struct {
		Item board.ChecklistItem `json:"item"`
	}
	err := c.do(ctx, http.MethodPatch, checklistPath(taskID, itemID), patch, &resp)
	return resp.Item, err
}

// DeleteChecklistItem implements board.Store.
func (c *Client) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	return c.do(ctx, http.MethodDelete, checklistPath(taskID, itemID), nil, nil)
}

// ListClientNames implements board.Store.
func (c *Client) ListClientNames(ctx context.Context) ([]string, error) {
	var clients []string
	if err := c.do(ctx, http.MethodGet, "/api/clients", nil, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// ListTasksNeedingReminders implements board.ReminderStore. The server applies
// the threshold with its own clock.
func (c *Client) ListTasksNeedingReminders(ctx context.Context) ([]board.Task, error) {
	var resp struct {
		Tasks []board.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/reminders/check", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// MarkReminderSent implements board.ReminderStore.
func (c *Client) MarkReminderSent(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/reminders/check", map[string]string{"taskId": taskID}, nil)
}

// RecordActivity implements board.BotStore. The server assigns ID and timestamp.
func (c *Client) RecordActivity(ctx context.Context, a board.Activity) error {
	body := map[string]any{
		"userRequest": a.UserRequest,
		"botAction":   a.BotAction,
		"success":     a.Success,
	}
	if a.Error != "" {
		body["error"] = a.Error
	}
	return c.do(ctx, http.MethodPost, "/api/bot/activity", body, nil)
}

// ListActivity implements board.Store.
func (c *Client) ListActivity(ctx context.Context, limit, offset int) (board.ActivityPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var page board.ActivityPage
	err := c.do(ctx, http.MethodGet, "/api/bot/activity?"+q.Encode(), nil, &page)
	return page, err
}

// ListStages implements board.Store.
func (c *Client) ListStages(ctx context.Context) ([]board.Stage, error) {
	var stages []board.Stage
	if err := c.do(ctx, http.MethodGet, "/api/stages", nil, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// GetStage implements board.Store.
func (c *Client) GetStage(ctx context.Context, id string) (board.Stage, error) {
	var st board.Stage
	err := c.do(ctx, http.MethodGet, "/api/stages/"+url.PathEscape(id), nil, &st)
	return st, err
}

type stageEnvelope struct {
	Stage board.Stage `json:"stage"`
}

// CreateStage implements board.Store.
func (c *Client) CreateStage(ctx context.Context, name, color string) (board.Stage, error) {
	var resp stageEnvelope
	err := c.do(ctx, http.MethodPost, "/api/stages", map[string]string{"name": name, "color": color}, &resp)
	return resp.Stage, err
}

// UpdateStage implements board.Store.
func (c *Client) UpdateStage(ctx context.Context, id string, patch board.StagePatch) (board.Stage, error) {
	var resp stageEnvelope
	err := c.do(ctx, http.MethodPatch, "/api/stages/"+url.PathEscape(id), patch, &resp)
	return resp.Stage, err
}

// ReorderStages implements board.Store.
func (c *Client) ReorderStages(ctx context.Context, ids []string) ([]board.Stage, error) {
	var resp struct {
		Stages []board.Stage `json:"stages"`
	}
	err := c.do(ctx, http.MethodPut, "/api/stages/reorder", map[string][]string{"stageIds": ids}, &resp)
	return resp.Stages, err
}

// DeleteStage implements board.Store.
func (c *Client) DeleteStage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/stages/"+url.PathEscape(id), nil, nil)
}
