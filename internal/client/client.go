// Package client is the HTTP client for the repcycle server API. It
// implements the store interfaces the completion engine depends on, so the
// client binary can run the full completion protocol against a remote
// server.
package client

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

	"github.com/claude/repcycle/internal/engine"
	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
)

// Client talks to the repcycle server over HTTP. Mutating endpoints carry
// the API key in the X-API-Key header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time checks: Client satisfies the engine's store interfaces.
var (
	_ engine.TemplateStore    = (*Client)(nil)
	_ engine.SessionStore     = (*Client)(nil)
	_ engine.ProgressionStore = (*Client)(nil)
	_ engine.Notifier         = (*Client)(nil)
)

// New creates a Client targeting the given base URL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in any) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// getJSON issues a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("client: GET %s returned %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

// postJSON issues a request with a JSON body and optionally decodes the
// response. Accepts 200 and 201.
func (c *Client) postJSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.do(ctx, method, path, nil, in)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("client: %s %s returned %d: %s", method, path, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode %s: %w", path, err)
		}
	}
	return nil
}

// GetAssignment fetches one program assignment with its cursor.
func (c *Client) GetAssignment(ctx context.Context, id uuid.UUID) (*models.ProgramAssignment, error) {
	var a models.ProgramAssignment
	if err := c.getJSON(ctx, "/api/v1/assignments/"+id.String(), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetProgramInstanceID resolves the program instance owning an assignment's
// session history.
func (c *Client) GetProgramInstanceID(ctx context.Context, assignmentID uuid.UUID) (uuid.UUID, error) {
	a, err := c.GetAssignment(ctx, assignmentID)
	if err != nil {
		return uuid.Nil, err
	}
	if a.ProgramInstanceID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("client: assignment %s has no program instance", assignmentID)
	}
	return a.ProgramInstanceID, nil
}

// GetProgramTemplate fetches a full program shape, weeks and exercises
// included.
func (c *Client) GetProgramTemplate(ctx context.Context, programID uuid.UUID) (*models.ProgramTemplate, error) {
	var p models.ProgramTemplate
	if err := c.getJSON(ctx, "/api/v1/programs/"+programID.String(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HasQueuedAssignment reports whether the client has an unfinished
// assignment other than the excluded one.
func (c *Client) HasQueuedAssignment(ctx context.Context, clientID int64, exclude uuid.UUID) (bool, error) {
	params := url.Values{}
	params.Set("exclude", exclude.String())
	var resp struct {
		Queued bool `json:"queued"`
	}
	path := "/api/v1/clients/" + strconv.FormatInt(clientID, 10) + "/assignments/queued"
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return false, err
	}
	return resp.Queued, nil
}

// FindSessionInstance looks up the instance for (program instance, week,
// order). A 404 means none exists yet and is not an error.
func (c *Client) FindSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int) (*models.SessionInstance, error) {
	params := url.Values{}
	params.Set("program_instance", programInstanceID.String())
	params.Set("week", strconv.Itoa(week))
	params.Set("order", strconv.Itoa(order))

	resp, err := c.do(ctx, http.MethodGet, "/api/v1/sessions", params, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("client: session lookup returned %d: %s", resp.StatusCode, body)
	}
	var si models.SessionInstance
	if err := json.NewDecoder(resp.Body).Decode(&si); err != nil {
		return nil, fmt.Errorf("client: decode session instance: %w", err)
	}
	return &si, nil
}

// CreateSessionInstance creates (or, on a server-side conflict, returns the
// existing) session instance for the triple.
func (c *Client) CreateSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int, name string) (uuid.UUID, error) {
	req := map[string]any{
		"program_instance_id": programInstanceID,
		"week":                week,
		"session_order":       order,
		"name":                name,
	}
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.postJSON(ctx, http.MethodPost, "/api/v1/sessions", req, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// CreateExerciseInstance snapshots one exercise template under a session
// instance.
func (c *Client) CreateExerciseInstance(ctx context.Context, sessionInstanceID uuid.UUID, ex models.ExerciseTemplate) (uuid.UUID, error) {
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	path := "/api/v1/sessions/" + sessionInstanceID.String() + "/exercises"
	if err := c.postJSON(ctx, http.MethodPost, path, ex, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// SubmitPerformanceAtomic sends all logged sets in one request; the server
// persists them and completes the instance in a single transaction.
func (c *Client) SubmitPerformanceAtomic(ctx context.Context, sessionInstanceID uuid.UUID, logs []models.ExerciseLog) error {
	req := map[string]any{"exercise_logs": logs}
	path := "/api/v1/sessions/" + sessionInstanceID.String() + "/performance"
	return c.postJSON(ctx, http.MethodPost, path, req, nil)
}

// UpdateCursor advances the server-side cursor. The server applies it
// monotonically, so a duplicate delivery is harmless.
func (c *Client) UpdateCursor(ctx context.Context, assignmentID uuid.UUID, week, sessionIndex int) error {
	req := map[string]any{
		"week":          week,
		"session_index": sessionIndex,
	}
	path := "/api/v1/assignments/" + assignmentID.String() + "/cursor"
	return c.postJSON(ctx, http.MethodPut, path, req, nil)
}

// FinishAssignment marks the assignment's program as completed.
func (c *Client) FinishAssignment(ctx context.Context, assignmentID uuid.UUID) error {
	path := "/api/v1/assignments/" + assignmentID.String() + "/finish"
	return c.postJSON(ctx, http.MethodPost, path, struct{}{}, nil)
}

// Notify delivers a coach-facing event.
func (c *Client) Notify(ctx context.Context, coachID, clientID int64, event string, payload json.RawMessage) error {
	req := map[string]any{
		"coach_id":  coachID,
		"client_id": clientID,
		"event":     event,
		"payload":   payload,
	}
	return c.postJSON(ctx, http.MethodPost, "/api/v1/notifications", req, nil)
}

// History fetches the client's full completed-session log, oldest first.
func (c *Client) History(ctx context.Context, clientID int64) ([]models.PerformanceLogEntry, error) {
	var entries []models.PerformanceLogEntry
	path := "/api/v1/clients/" + strconv.FormatInt(clientID, 10) + "/history"
	if err := c.getJSON(ctx, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
