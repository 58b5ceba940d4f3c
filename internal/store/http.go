package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentfarm/internal/errors"
	"agentfarm/internal/httpclient"
	"agentfarm/internal/logging"
)

// HTTPStore talks to the external record-store API. Calls at this boundary
// are retried with backoff on transient failures; the caller still has to
// tolerate a final error without crashing the loop.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
	retry   errors.RetryConfig
	logger  logging.Logger
}

var _ Store = (*HTTPStore)(nil)

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTP creates a record-store client.
func NewHTTP(cfg HTTPConfig) (*HTTPStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("store base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL: base,
		token:   cfg.Token,
		client:  httpclient.New(timeout),
		retry:   errors.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		logger:  logging.NewComponentLogger("store-http"),
	}, nil
}

// doJSON issues one request and decodes the response into out (when non-nil).
// Failure statuses are classified for the retry layer.
func (s *HTTPStore) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Permanent(fmt.Errorf("encode %s %s: %w", method, path, err))
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return errors.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := httpclient.ReadAllWithLimit(resp.Body, 4096)
		err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		return errors.FromHTTPStatus(resp.StatusCode, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Permanent(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// call wraps doJSON with the store retry policy.
func (s *HTTPStore) call(ctx context.Context, method, path string, body, out any) error {
	return errors.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.doJSON(ctx, method, path, body, out)
	}, s.logger)
}

type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *HTTPStore) Config(ctx context.Context) (map[string]string, error) {
	var entries []configEntry
	if err := s.call(ctx, http.MethodGet, "/v1/config", nil, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Key != "" {
			out[e.Key] = e.Value
		}
	}
	return out, nil
}

func (s *HTTPStore) SetConfigValue(ctx context.Context, key, value string) error {
	path := "/v1/config/" + url.PathEscape(key)
	return s.call(ctx, http.MethodPut, path, configEntry{Key: key, Value: value}, nil)
}

func (s *HTTPStore) DeleteConfigValue(ctx context.Context, key string) error {
	path := "/v1/config/" + url.PathEscape(key)
	return s.call(ctx, http.MethodDelete, path, nil, nil)
}

func (s *HTTPStore) UpsertMachine(ctx context.Context, m Machine) error {
	path := "/v1/machines/" + url.PathEscape(m.Name)
	return s.call(ctx, http.MethodPut, path, m, nil)
}

func (s *HTTPStore) Agents(ctx context.Context, machine string) ([]Agent, error) {
	path := "/v1/agents"
	if machine != "" {
		path += "?machine=" + url.QueryEscape(machine)
	}
	var agents []Agent
	if err := s.call(ctx, http.MethodGet, path, nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *HTTPStore) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	path := "/v1/agents/" + url.PathEscape(id)
	return s.call(ctx, http.MethodPatch, path, map[string]any{"status": status}, nil)
}

func (s *HTTPStore) RecordAgentOutcome(ctx context.Context, id string, success bool) error {
	// The store applies the read-modify-write server side, keeping the
	// stats update atomic across concurrent executors.
	path := "/v1/agents/" + url.PathEscape(id) + "/outcome"
	return s.call(ctx, http.MethodPost, path, map[string]any{"success": success}, nil)
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *HTTPStore) CreateProject(ctx context.Context, p Project) (string, error) {
	var resp createResponse
	if err := s.call(ctx, http.MethodPost, "/v1/projects", p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *HTTPStore) Projects(ctx context.Context, status ProjectStatus) ([]Project, error) {
	path := "/v1/projects"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var projects []Project
	if err := s.call(ctx, http.MethodGet, path, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *HTTPStore) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus, reason string) error {
	path := "/v1/projects/" + url.PathEscape(id)
	body := map[string]any{"status": status, "last_activity": time.Now().UTC()}
	if reason != "" {
		body["archived_reason"] = reason
	}
	return s.call(ctx, http.MethodPatch, path, body, nil)
}

func (s *HTTPStore) UpdateProjectRevenue(ctx context.Context, id string, total, last30 float64) error {
	path := "/v1/projects/" + url.PathEscape(id)
	return s.call(ctx, http.MethodPatch, path, map[string]any{
		"revenue_total": total,
		"revenue_30d":   last30,
	}, nil)
}

func (s *HTTPStore) UpdateProjectViability(ctx context.Context, id string, score float64) error {
	path := "/v1/projects/" + url.PathEscape(id)
	return s.call(ctx, http.MethodPatch, path, map[string]any{"viability_score": score}, nil)
}

func (s *HTTPStore) CreateTask(ctx context.Context, t Task) (string, error) {
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var resp createResponse
	if err := s.call(ctx, http.MethodPost, "/v1/tasks", t, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *HTTPStore) Tasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Project != "" {
		q.Set("project", f.Project)
	}
	path := "/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var tasks []Task
	if err := s.call(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *HTTPStore) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	body := map[string]any{}
	if u.Status != "" {
		body["status"] = u.Status
		if u.Status == TaskDone || u.Status == TaskFailed {
			body["completed_at"] = time.Now().UTC()
		}
	}
	if u.Result != "" {
		body["result"] = u.Result
	}
	if u.Agent != "" {
		body["agent"] = u.Agent
	}
	if u.TokensUsed != 0 {
		body["tokens_used"] = u.TokensUsed
	}
	if u.CostUSD != 0 {
		body["cost_usd"] = u.CostUSD
	}
	path := "/v1/tasks/" + url.PathEscape(id)
	return s.call(ctx, http.MethodPatch, path, body, nil)
}

func (s *HTTPStore) LogRevenue(ctx context.Context, e RevenueEntry) error {
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}
	return s.call(ctx, http.MethodPost, "/v1/revenue", e, nil)
}

func (s *HTTPStore) RevenueSince(ctx context.Context, project string, since time.Time) (float64, error) {
	q := url.Values{}
	q.Set("project", project)
	q.Set("since", since.UTC().Format(time.RFC3339))
	var resp struct {
		Total float64 `json:"total"`
	}
	if err := s.call(ctx, http.MethodGet, "/v1/revenue/sum?"+q.Encode(), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

func (s *HTTPStore) LogActivity(ctx context.Context, e ActivityEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.call(ctx, http.MethodPost, "/v1/activity", e, nil)
}
