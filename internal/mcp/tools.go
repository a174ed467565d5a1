package mcp

import (
	"context"
	"strconv"

	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/stats"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool definitions ---

var toolGetAssignmentProgress = mcp.NewTool("get_assignment_progress",
	mcp.WithDescription("Inspect a client's progress through an assigned program: current cursor position (week and session), finished flag, and the program's overall shape."),
	mcp.WithString("assignment_id", mcp.Required(), mcp.Description("Assignment UUID")),
)

var toolGetPerformanceLog = mcp.NewTool("get_performance_log",
	mcp.WithDescription("Retrieve a client's completed-session log, oldest first. Each entry carries the logged sets (reps, load, RPE, notes) per exercise."),
	mcp.WithString("client_id", mcp.Required(), mcp.Description("Client ID")),
	mcp.WithString("session", mcp.Description("Filter by session name (exact match)")),
)

var toolGetSessionStats = mcp.NewTool("get_session_stats",
	mcp.WithDescription("Week-over-week statistics for one session of a client's program: completed sets, total reps, tonnage, average load, and percentage changes against the prior week. Changes within ±0.5% read as maintained."),
	mcp.WithString("client_id", mcp.Required(), mcp.Description("Client ID")),
	mcp.WithString("program", mcp.Required(), mcp.Description("Program name")),
	mcp.WithString("session", mcp.Required(), mcp.Description("Session name (e.g. 'Full Body A')")),
	mcp.WithString("week", mcp.Required(), mcp.Description("Week number to analyze")),
)

var toolListNotifications = mcp.NewTool("list_notifications",
	mcp.WithDescription("List the coach's most recent notifications (session completions and other client events), newest first."),
	mcp.WithString("limit", mcp.Description("Maximum entries to return. Defaults to 50.")),
)

// --- Tool handlers ---

func (h *handlers) getAssignmentProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("assignment_id")
	if err != nil {
		return mcp.NewToolResultError("assignment_id parameter is required"), nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid assignment_id: " + err.Error()), nil
	}

	a, err := h.ds.GetAssignment(ctx, id)
	if err != nil {
		h.log.Error("mcp get_assignment_progress", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	p, err := h.ds.GetProgramTemplate(ctx, a.ProgramID)
	if err != nil {
		h.log.Error("mcp get_assignment_progress", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	totalSessions := 0
	completedSessions := 0
	for _, w := range p.Weeks {
		totalSessions += len(w.Sessions)
		for _, s := range w.Sessions {
			if a.Cursor.Finished ||
				w.Number < a.Cursor.Week ||
				(w.Number == a.Cursor.Week && s.Order < a.Cursor.SessionIndex) {
				completedSessions++
			}
		}
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"assignment":         a,
		"program_weeks":      p.TotalWeeks(),
		"total_sessions":     totalSessions,
		"completed_sessions": completedSessions,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getPerformanceLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, err := requireInt64(req, "client_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := h.ds.QueryPerformanceLog(ctx, clientID)
	if err != nil {
		h.log.Error("mcp get_performance_log", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	if session := req.GetString("session", ""); session != "" {
		var filtered []models.PerformanceLogEntry
		for _, e := range entries {
			if e.SessionName == session {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	result, err := mcp.NewToolResultJSON(entries)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessionStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, err := requireInt64(req, "client_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	program, err := req.RequireString("program")
	if err != nil {
		return mcp.NewToolResultError("program parameter is required"), nil
	}
	session, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session parameter is required"), nil
	}
	weekStr, err := req.RequireString("week")
	if err != nil {
		return mcp.NewToolResultError("week parameter is required"), nil
	}
	week, err := strconv.Atoi(weekStr)
	if err != nil || week < 1 {
		return mcp.NewToolResultError("week must be a positive number"), nil
	}

	history, err := h.ds.QueryPerformanceLog(ctx, clientID)
	if err != nil {
		h.log.Error("mcp get_session_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	comparison := stats.CompareWeeks(history, program, session, week)
	if comparison == nil {
		return mcp.NewToolResultError("no completed session found for that program, session and week"), nil
	}

	result, err := mcp.NewToolResultJSON(comparison)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 50
	if limitStr := req.GetString("limit", ""); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			return mcp.NewToolResultError("limit must be a positive number"), nil
		}
		limit = n
	}

	coachID := CoachIDFromContext(ctx)
	notifications, err := h.ds.QueryNotifications(ctx, coachID, limit)
	if err != nil {
		h.log.Error("mcp list_notifications", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(notifications)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// requireInt64 reads a required numeric string argument.
func requireInt64(req mcp.CallToolRequest, key string) (int64, error) {
	s, err := req.RequireString(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
