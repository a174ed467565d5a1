package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) inbox(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	coachID := CoachIDFromContext(ctx)

	notifications, err := h.ds.QueryNotifications(ctx, coachID, 50)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(notifications)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) recentCompletions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	coachID := CoachIDFromContext(ctx)

	notifications, err := h.ds.QueryNotifications(ctx, coachID, 100)
	if err != nil {
		return nil, err
	}

	completions := make([]json.RawMessage, 0, len(notifications))
	for _, n := range notifications {
		if n.Event == "sessionCompleted" && len(n.Payload) > 0 {
			completions = append(completions, n.Payload)
		}
	}

	data, err := json.Marshal(completions)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
