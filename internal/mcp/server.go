// Package mcp exposes coach-facing tools over the Model Context Protocol:
// assignment progress, performance logs, week-over-week session statistics
// and the notification inbox.
package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const coachIDKey contextKey = iota

// CoachIDFromContext extracts the coach ID injected by the transport layer.
func CoachIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(coachIDKey).(int64); ok {
		return id
	}
	return 1
}

// WithCoachID returns a context with the given coach ID.
func WithCoachID(ctx context.Context, coachID int64) context.Context {
	return context.WithValue(ctx, coachIDKey, coachID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepCycle", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepCycle coaching server. Inspect client program progress, completed session logs, week-over-week statistics, and your notification inbox. All data is scoped to the authenticated coach."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetAssignmentProgress, Handler: h.getAssignmentProgress},
		server.ServerTool{Tool: toolGetPerformanceLog, Handler: h.getPerformanceLog},
		server.ServerTool{Tool: toolGetSessionStats, Handler: h.getSessionStats},
		server.ServerTool{Tool: toolListNotifications, Handler: h.listNotifications},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resInbox, Handler: h.inbox},
		server.ServerResource{Resource: resRecentCompletions, Handler: h.recentCompletions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resInbox = mcp.NewResource(
	"repcycle://inbox",
	"Notification Inbox",
	mcp.WithResourceDescription("The coach's most recent notifications, newest first"),
	mcp.WithMIMEType("application/json"),
)

var resRecentCompletions = mcp.NewResource(
	"repcycle://recent_completions",
	"Recent Completions",
	mcp.WithResourceDescription("Recently completed client sessions, derived from the notification stream"),
	mcp.WithMIMEType("application/json"),
)
