package goallinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal goalline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Suggestion is a fuzzy candidate attached to an unresolved reference.
type Suggestion struct {
	CandidateID string  `json:"candidate_id"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
	Pool        string  `json:"pool"`
}

// Reference is a staged pointer to another entity.
type Reference struct {
	State       string       `json:"state"`
	ID          string       `json:"id,omitempty"`
	Raw         string       `json:"raw"`
	Confidence  float64      `json:"confidence,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// StagedGoal represents a goal in the import session (partial).
type StagedGoal struct {
	LocalID     string      `json:"local_id"`
	Title       string      `json:"title"`
	TargetValue float64     `json:"target_value"`
	Measure     Reference   `json:"measure"`
	Values      []Reference `json:"values"`
	Status      string      `json:"status"`
}

// StagedAction represents an action in the import session (partial).
type StagedAction struct {
	LocalID string      `json:"local_id"`
	Title   string      `json:"title"`
	Goals   []Reference `json:"goals"`
	Status  string      `json:"status"`
}

// Issue is one validation error or warning.
type Issue struct {
	Kind    string `json:"kind"`
	LocalID string `json:"local_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Validation struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Session represents the import session (partial).
type Session struct {
	ID         string         `json:"id"`
	Step       int            `json:"step"`
	Status     string         `json:"status"`
	Dirty      bool           `json:"dirty"`
	Goals      []StagedGoal   `json:"goals"`
	Actions    []StagedAction `json:"actions"`
	Validation Validation     `json:"validation"`
}

type SessionResponse struct {
	Session Session `json:"session"`
	Created bool    `json:"created"`
}

// ParseError is a rejected input row.
type ParseError struct {
	Kind   string `json:"kind"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ResolveSummary struct {
	Resolved   int `json:"resolved"`
	Suggested  int `json:"suggested"`
	Unresolved int `json:"unresolved"`
	Changed    int `json:"changed"`
}

type StageResult struct {
	Kind    string         `json:"kind"`
	IDs     []string       `json:"ids"`
	Errors  []ParseError   `json:"errors"`
	Resolve ResolveSummary `json:"resolve"`
}

// Choice picks a suggestion or confirms create-new for one reference.
type Choice struct {
	Kind       string `json:"kind"`
	LocalID    string `json:"local_id"`
	Field      string `json:"field"`
	Index      int    `json:"index,omitempty"`
	Suggestion *int   `json:"suggestion,omitempty"`
	CreateNew  bool   `json:"create_new,omitempty"`
}

type CommitRecord struct {
	CommittedAt string            `json:"committed_at"`
	IDs         map[string]string `json:"ids"`
}

type Value struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Level    string `json:"level"`
	Priority int    `json:"priority"`
}

type Goal struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	TargetValue float64  `json:"target_value"`
	MeasureID   string   `json:"measure_id"`
	ValueIDs    []string `json:"value_ids"`
}

type UnitAmount struct {
	Unit   string  `json:"unit"`
	Amount float64 `json:"amount"`
}

type Action struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	OccurredAt string   `json:"occurred_at"`
	GoalIDs    []string `json:"goal_ids"`
}

type GoalProgress struct {
	GoalID   string  `json:"goal_id"`
	Title    string  `json:"title"`
	Unit     string  `json:"unit"`
	Target   float64 `json:"target"`
	Total    float64 `json:"total"`
	Percent  float64 `json:"percent"`
	Complete bool    `json:"complete"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type list[T any] struct {
	Items []T `json:"items"`
}

// StartImport starts or resumes the import session.
func (c *Client) StartImport(ctx context.Context) (SessionResponse, error) {
	var resp SessionResponse
	err := c.do(ctx, http.MethodPost, "imports", nil, &resp)
	return resp, err
}

// Session fetches the current import session.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var resp SessionResponse
	err := c.do(ctx, http.MethodGet, "imports/current", nil, &resp)
	return resp.Session, err
}

// Stage parses text as kind ("values", "measures", "goals", "actions").
func (c *Client) Stage(ctx context.Context, kind, text string) (StageResult, error) {
	var resp StageResult
	err := c.do(ctx, http.MethodPost, "imports/current/entities/"+url.PathEscape(kind), map[string]any{"text": text}, &resp)
	return resp, err
}

func (c *Client) Remove(ctx context.Context, kind, localID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("imports/current/entities/%s/%s", url.PathEscape(kind), url.PathEscape(localID)), nil, nil)
}

func (c *Client) Resolve(ctx context.Context) (ResolveSummary, error) {
	var resp ResolveSummary
	err := c.do(ctx, http.MethodPost, "imports/current/resolve", nil, &resp)
	return resp, err
}

func (c *Client) Choose(ctx context.Context, choice Choice) (Reference, error) {
	var resp Reference
	err := c.do(ctx, http.MethodPost, "imports/current/choices", choice, &resp)
	return resp, err
}

func (c *Client) Review(ctx context.Context) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodPost, "imports/current/review", nil, &resp)
	return resp, err
}

func (c *Client) Commit(ctx context.Context) (CommitRecord, error) {
	var resp CommitRecord
	err := c.do(ctx, http.MethodPost, "imports/current/commit", nil, &resp)
	return resp, err
}

func (c *Client) Discard(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "imports/current", nil, nil)
}

func (c *Client) ListValues(ctx context.Context) ([]Value, error) {
	var resp list[Value]
	err := c.do(ctx, http.MethodGet, "values", nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateValue(ctx context.Context, title, level string, priority int) (Value, error) {
	body := map[string]any{"title": title}
	if level != "" {
		body["level"] = level
	}
	if priority > 0 {
		body["priority"] = priority
	}
	var resp Value
	err := c.do(ctx, http.MethodPost, "values", body, &resp)
	return resp, err
}

func (c *Client) ListGoals(ctx context.Context) ([]Goal, error) {
	var resp list[Goal]
	err := c.do(ctx, http.MethodGet, "goals", nil, &resp)
	return resp.Items, err
}

// LogAction records an action against existing measures and goals by name.
func (c *Client) LogAction(ctx context.Context, title string, measurements []UnitAmount, goals []string) (Action, error) {
	body := map[string]any{"title": title}
	if len(measurements) > 0 {
		body["measurements"] = measurements
	}
	if len(goals) > 0 {
		body["goals"] = goals
	}
	var resp Action
	err := c.do(ctx, http.MethodPost, "actions", body, &resp)
	return resp, err
}

func (c *Client) GoalProgress(ctx context.Context, goalID string) (GoalProgress, error) {
	var resp GoalProgress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("goals/%s/progress", url.PathEscape(goalID)), nil, &resp)
	return resp, err
}

// Archive hides a record; kind is plural ("values", "goals", ...).
func (c *Client) Archive(ctx context.Context, kind, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%s", url.PathEscape(kind), url.PathEscape(id)), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
