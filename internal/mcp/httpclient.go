package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/storage"
	"github.com/google/uuid"
)

// HTTPClient implements DataSource by calling the repcycle REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func (c *HTTPClient) GetAssignment(ctx context.Context, id uuid.UUID) (*models.ProgramAssignment, error) {
	body, err := c.get(ctx, "/api/v1/assignments/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var a models.ProgramAssignment
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("httpclient: decode assignment: %w", err)
	}
	return &a, nil
}

func (c *HTTPClient) GetProgramTemplate(ctx context.Context, programID uuid.UUID) (*models.ProgramTemplate, error) {
	body, err := c.get(ctx, "/api/v1/programs/"+programID.String(), nil)
	if err != nil {
		return nil, err
	}

	var p models.ProgramTemplate
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("httpclient: decode program: %w", err)
	}
	return &p, nil
}

func (c *HTTPClient) QueryPerformanceLog(ctx context.Context, clientID int64) ([]models.PerformanceLogEntry, error) {
	path := "/api/v1/clients/" + strconv.FormatInt(clientID, 10) + "/history"
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var entries []models.PerformanceLogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("httpclient: decode performance log: %w", err)
	}
	return entries, nil
}

func (c *HTTPClient) QueryNotifications(ctx context.Context, coachID int64, limit int) ([]storage.Notification, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/v1/coaches/" + strconv.FormatInt(coachID, 10) + "/notifications"
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var notifications []storage.Notification
	if err := json.Unmarshal(body, &notifications); err != nil {
		return nil, fmt.Errorf("httpclient: decode notifications: %w", err)
	}
	return notifications, nil
}
