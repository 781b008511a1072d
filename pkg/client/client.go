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
	"sync"
	"time"

	"github.com/wimarka/lakra/internal/models"
)

// Client is a Go SDK for the lakra API. It satisfies the question
// provider, scorer and registration finalizer used by the onboarding
// controller.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new lakra client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response from the API
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// ErrorCode returns the machine readable error code
func (e *APIError) ErrorCode() string {
	return e.Code
}

// Token returns the bearer token currently in use
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Health checks the liveness endpoint
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// QuestionsByLanguages fetches the active questions for a language set
func (c *Client) QuestionsByLanguages(ctx context.Context, languages []string) ([]models.ProficiencyQuestion, error) {
	var result struct {
		Questions []models.ProficiencyQuestion `json:"questions"`
		Total     int                          `json:"total"`
	}

	if err := c.do(ctx, http.MethodPost, "/api/v1/proficiency/questions", models.QuestionsRequest{Languages: languages}, &result); err != nil {
		return nil, err
	}

	return result.Questions, nil
}

// SubmitAnswers sends a finished test for scoring
func (c *Client) SubmitAnswers(ctx context.Context, req models.SubmitAnswersRequest) (*models.TestResult, error) {
	var result models.TestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/proficiency/submit", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register creates an account and keeps the returned token
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var result models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &result); err != nil {
		return nil, err
	}

	c.SetToken(result.AccessToken)
	return &result, nil
}

// Login authenticates by email or username and keeps the returned token
func (c *Client) Login(ctx context.Context, login, password string) (*models.AuthResponse, error) {
	var result models.AuthResponse
	req := models.LoginRequest{Login: login, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", req, &result); err != nil {
		return nil, err
	}

	c.SetToken(result.AccessToken)
	return &result, nil
}

// Me returns the signed-in user
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListQuestions lists the question bank (admin)
func (c *Client) ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]models.ProficiencyQuestion, error) {
	params := url.Values{}
	if filters.Language != "" {
		params.Set("language", filters.Language)
	}
	if filters.Type != "" {
		params.Set("type", string(filters.Type))
	}
	if filters.Difficulty != "" {
		params.Set("difficulty", string(filters.Difficulty))
	}
	if filters.ActiveOnly {
		params.Set("active_only", "true")
	}
	if filters.Limit > 0 {
		params.Set("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Offset > 0 {
		params.Set("offset", strconv.Itoa(filters.Offset))
	}

	path := "/api/v1/admin/questions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		Questions []models.ProficiencyQuestion `json:"questions"`
		Total     int                          `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Questions, nil
}

// CreateQuestion adds a question to the bank (admin)
func (c *Client) CreateQuestion(ctx context.Context, q models.ProficiencyQuestion) (*models.ProficiencyQuestion, error) {
	var created models.ProficiencyQuestion
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/questions", q, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateQuestion applies a partial edit (admin)
func (c *Client) UpdateQuestion(ctx context.Context, id int, update models.QuestionUpdate) (*models.ProficiencyQuestion, error) {
	var updated models.ProficiencyQuestion
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/admin/questions/%d", id), update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteQuestion removes a question (admin)
func (c *Client) DeleteQuestion(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/admin/questions/%d", id), nil, nil)
}

// MySessions lists the caller's proficiency test history, newest first
func (c *Client) MySessions(ctx context.Context) ([]models.TestSession, error) {
	var result struct {
		Sessions []models.TestSession `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/proficiency/sessions", nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// MyLanguages returns the caller's languages
func (c *Client) MyLanguages(ctx context.Context) ([]string, error) {
	var result models.LanguagesRequest
	if err := c.do(ctx, http.MethodGet, "/api/v1/me/languages", nil, &result); err != nil {
		return nil, err
	}
	return result.Languages, nil
}

// UpdateMyLanguages replaces the caller's languages
func (c *Client) UpdateMyLanguages(ctx context.Context, languages []string) ([]string, error) {
	var result models.LanguagesRequest
	if err := c.do(ctx, http.MethodPut, "/api/v1/me/languages", models.LanguagesRequest{Languages: languages}, &result); err != nil {
		return nil, err
	}
	return result.Languages, nil
}

// ListUsers pages through accounts (admin only)
func (c *Client) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	path := "/api/v1/admin/users"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

// ToggleEvaluator flips a user's evaluator role (admin only)
func (c *Client) ToggleEvaluator(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPut, "/api/v1/admin/users/"+url.PathEscape(userID)+"/toggle-evaluator", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends in as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	status, respBody, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		if status >= 400 {
			return &APIError{Status: status, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if status >= 400 || !result.Success {
		apiErr := &APIError{Status: status}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
			apiErr.Fields = result.Error.Fields
		}
		return apiErr
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
