package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/health"
	"github.com/alekspetrov/taskboard/internal/reminders"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type taskResponse struct {
	Success bool       `json:"success"`
	Task    board.Task `json:"task"`
}

type stageResponse struct {
	Success bool        `json:"success"`
	Stage   board.Stage `json:"stage"`
}

type stagesResponse struct {
	Success bool          `json:"success"`
	Stages  []board.Stage `json:"stages"`
}

type itemResponse struct {
	Success bool                `json:"success"`
	Item    board.ChecklistItem `json:"item"`
}

// reminderTask is a task due for a reminder plus the time left until it is due.
type reminderTask struct {
	board.Task
	MinutesRemaining int `json:"minutesRemaining"`
	HoursRemaining   int `json:"hoursRemaining"`
}

type remindersResponse struct {
	Success bool           `json:"success"`
	Tasks   []reminderTask `json:"tasks"`
	Count   int            `json:"count"`
}

func (s *Server) register(e *echo.Echo) {
	e.GET("/healthz", s.healthz)

	e.GET("/api/tasks", s.listTasks)
	e.POST("/api/tasks", s.createTask)
	e.GET("/api/tasks/:id", s.getTask)
	e.PATCH("/api/tasks/:id", s.updateTask)
	e.DELETE("/api/tasks/:id", s.deleteTask)
	e.PATCH("/api/tasks/:id/checklist/:itemId", s.updateChecklistItem)
	e.DELETE("/api/tasks/:id/checklist/:itemId", s.deleteChecklistItem)

	e.GET("/api/stages", s.listStages)
	e.POST("/api/stages", s.createStage)
	e.PUT("/api/stages/reorder", s.reorderStages)
	e.GET("/api/stages/:id", s.getStage)
	e.PATCH("/api/stages/:id", s.updateStage)
	e.DELETE("/api/stages/:id", s.deleteStage)

	e.GET("/api/clients", s.listClients)

	e.GET("/api/reminders/check", s.checkReminders)
	e.POST("/api/reminders/check", s.markReminderSent)
	e.GET("/api/reminders/status", s.reminderStatus)

	e.GET("/api/bot/activity", s.listActivity)
	e.POST("/api/bot/activity", s.recordActivity)
	e.GET("/api/bot/status", s.botStatus)
}

// storeError maps board sentinels onto HTTP statuses.
func (s *Server) storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, board.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, board.ErrStageNotEmpty):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Cannot delete stage with tasks. Move or delete tasks first."})
	case errors.Is(err, board.ErrInvalid):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error("store call failed",
			slog.String("path", c.Path()),
			slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTasks(c echo.Context) error {
	f := board.Filter{
		Client:   strings.TrimSpace(c.QueryParam("client")),
		Priority: board.Priority(strings.ToLower(strings.TrimSpace(c.QueryParam("priority")))),
		StageID:  c.QueryParam("stageId"),
		Search:   strings.TrimSpace(c.QueryParam("search")),
	}
	tasks, err := s.store.ListTasks(c.Request().Context(), f)
	if err != nil {
		return s.storeError(c, err)
	}
	if tasks == nil {
		tasks = []board.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c echo.Context) error {
	var draft board.TaskDraft
	if err := decodeBody(c, &draft); err != nil {
		return badRequest(c, "Invalid request body")
	}
	task, err := s.store.CreateTask(c.Request().Context(), draft)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusCreated, taskResponse{Success: true, Task: task})
}

func (s *Server) getTask(c echo.Context) error {
	task, err := s.store.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) updateTask(c echo.Context) error {
	var patch board.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := patch.Validate(); err != nil {
		return s.storeError(c, err)
	}
	task, err := s.store.UpdateTask(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, taskResponse{Success: true, Task: task})
}

func (s *Server) deleteTask(c echo.Context) error {
	if err := s.store.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) updateChecklistItem(c echo.Context) error {
	var patch board.ChecklistItemPatch
	if err := decodeBody(c, &patch); err != nil {
		return badRequest(c, "Invalid request body")
	}
	item, err := s.store.UpdateChecklistItem(c.Request().Context(), c.Param("id"), c.Param("itemId"), patch)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, itemResponse{Success: true, Item: item})
}

func (s *Server) deleteChecklistItem(c echo.Context) error {
	if err := s.store.DeleteChecklistItem(c.Request().Context(), c.Param("id"), c.Param("itemId")); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) listStages(c echo.Context) error {
	stages, err := s.store.ListStages(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if stages == nil {
		stages = []board.Stage{}
	}
	return c.JSON(http.StatusOK, stages)
}

func (s *Server) createStage(c echo.Context) error {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	stage, err := s.store.CreateStage(c.Request().Context(), req.Name, req.Color)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusCreated, stageResponse{Success: true, Stage: stage})
}

func (s *Server) reorderStages(c echo.Context) error {
	var req struct {
		StageIDs []string `json:"stageIds"`
	}
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.StageIDs) == 0 {
		return badRequest(c, "stageIds is required")
	}
	stages, err := s.store.ReorderStages(c.Request().Context(), req.StageIDs)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, stagesResponse{Success: true, Stages: stages})
}

func (s *Server) getStage(c echo.Context) error {
	stage, err := s.store.GetStage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, stage)
}

func (s *Server) updateStage(c echo.Context) error {
	var patch board.StagePatch
	if err := decodeBody(c, &patch); err != nil {
		return badRequest(c, "Invalid request body")
	}
	stage, err := s.store.UpdateStage(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, stageResponse{Success: true, Stage: stage})
}

func (s *Server) deleteStage(c echo.Context) error {
	if err := s.store.DeleteStage(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) listClients(c echo.Context) error {
	clients, err := s.store.ListClientNames(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if clients == nil {
		clients = []string{}
	}
	return c.JSON(http.StatusOK, clients)
}

// checkReminders lists tasks whose reminder threshold has passed and which
// have not been reminded yet.
func (s *Server) checkReminders(c echo.Context) error {
	candidates, err := s.store.ListTasksNeedingReminders(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}

	now := s.now()
	tasks := make([]reminderTask, 0, len(candidates))
	for i := range candidates {
		if !candidates[i].NeedsReminder(now) {
			continue
		}
		rc := reminders.NewCandidate(candidates[i], now)
		tasks = append(tasks, reminderTask{
			Task:             rc.Task,
			MinutesRemaining: rc.MinutesRemaining,
			HoursRemaining:   rc.HoursRemaining,
		})
	}
	return c.JSON(http.StatusOK, remindersResponse{Success: true, Tasks: tasks, Count: len(tasks)})
}

func (s *Server) markReminderSent(c echo.Context) error {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.TaskID == "" {
		return badRequest(c, "taskId is required")
	}
	if err := s.store.MarkReminderSent(c.Request().Context(), req.TaskID); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) listActivity(c echo.Context) error {
	limit, err := intParam(c, "limit", defaultActivityLimit)
	if err != nil {
		return badRequest(c, err.Error())
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}
	limit = min(limit, maxActivityLimit)

	page, err := s.store.ListActivity(c.Request().Context(), limit, offset)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) recordActivity(c echo.Context) error {
	var req struct {
		UserRequest string `json:"userRequest"`
		BotAction   string `json:"botAction"`
		Success     *bool  `json:"success"`
		Error       string `json:"error"`
	}
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.BotAction == "" {
		return badRequest(c, "botAction is required")
	}

	var failure error
	if req.Success != nil && !*req.Success {
		failure = errors.New(req.Error)
	}
	a := board.NewActivity(req.UserRequest, req.BotAction, failure, s.now())
	if err := s.store.RecordActivity(c.Request().Context(), a); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "activity": a})
}

func (s *Server) botStatus(c echo.Context) error {
	if s.status == nil {
		return c.JSON(http.StatusOK, health.Snapshot{
			State: health.StateStopped,
			Error: "Bot is not running in this process",
		})
	}
	return c.JSON(http.StatusOK, s.status.Snapshot())
}

// reminderStatus reports a stopped scheduler when none runs in this process.
func (s *Server) reminderStatus(c echo.Context) error {
	if s.sched == nil {
		return c.JSON(http.StatusOK, reminders.Status{})
	}
	return c.JSON(http.StatusOK, s.sched.Status())
}
