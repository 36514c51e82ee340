package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cutroom/internal/api"
	"cutroom/internal/queue"
)

// ErrUnavailable reports that the daemon API could not be reached.
var ErrUnavailable = errors.New("daemon API unavailable")

// Client talks to the daemon's HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New constructs a client against bind, which may be a host:port pair or a
// full URL. An empty bind returns an error since there is nothing to reach.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address not configured")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches daemon health.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &status)
	return status, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, req api.CreateProjectRequest) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProject loads a project and its effects.
func (c *Client) GetProject(ctx context.Context, id string) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveTimeline replaces a project's effect set.
func (c *Client) SaveTimeline(ctx context.Context, id string, req api.SaveTimelineRequest) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.do(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(id)+"/timeline", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddEffect places one new effect on the project's timeline.
func (c *Client) AddEffect(ctx context.Context, id string, req api.AddEffectRequest) (*api.ProjectResponse, error) {
	var resp api.ProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(id)+"/effects", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartExport enqueues an export job for the project.
func (c *Client) StartExport(ctx context.Context, id string, req api.ExportRequest) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(id)+"/export", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs returns jobs, optionally filtered by user or statuses.
func (c *Client) ListJobs(ctx context.Context, user string, statuses ...queue.Status) (*api.JobListResponse, error) {
	values := url.Values{}
	if strings.TrimSpace(user) != "" {
		values.Set("user", user)
	}
	for _, status := range statuses {
		values.Add("status", string(status))
	}
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob stops a pending or running job.
func (c *Client) CancelJob(ctx context.Context, id string) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryJobs returns failed jobs to pending.
func (c *Client) RetryJobs(ctx context.Context, ids ...string) (*api.JobListResponse, error) {
	payload := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/retry", nil, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
