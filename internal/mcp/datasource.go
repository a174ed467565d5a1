package mcp

import (
	"context"

	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetAssignment(ctx context.Context, id uuid.UUID) (*models.ProgramAssignment, error)
	GetProgramTemplate(ctx context.Context, programID uuid.UUID) (*models.ProgramTemplate, error)
	QueryPerformanceLog(ctx context.Context, clientID int64) ([]models.PerformanceLogEntry, error)
	QueryNotifications(ctx context.Context, coachID int64, limit int) ([]storage.Notification, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
