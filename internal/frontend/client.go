package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
)

var (
	ErrUnauthorized = errors.New("session expired, please log in again")
	ErrUnavailable  = errors.New("the API is temporarily unavailable")
)

// APIError is an error response returned by the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Client calls the API on behalf of a browser session. Calls fail fast with
// ErrUnavailable while the circuit breaker is open; only transport errors
// and 5xx responses count as failures.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *middleware.CircuitBreaker
}

func NewClient(baseURL string, breaker *middleware.CircuitBreaker) *Client {
	if breaker == nil {
		breaker = middleware.NewCircuitBreaker(middleware.BreakerOptions{})
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// training runs inside the upload request
		http:    &http.Client{Timeout: 10 * time.Minute},
		breaker: breaker,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *middleware.CircuitBreaker { return c.breaker }

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.credentials(ctx, "/api/v1/auth/login", username, password)
}

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	return c.credentials(ctx, "/api/v1/auth/register", username, password)
}

func (c *Client) credentials(ctx context.Context, path, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, path, "", "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Logout revokes token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", token, "", nil, nil)
}

// Me returns the session's user.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/user/me", token, "", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Models lists the user's models, newest first.
func (c *Client) Models(ctx context.Context, token string) ([]models.ModelRecord, error) {
	var list []models.ModelRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/models", token, "", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UploadResult is the part of the upload response the UI shows.
type UploadResult struct {
	Message             string              `json:"message"`
	Model               *models.ModelRecord `json:"model"`
	ImportanceAvailable bool                `json:"importance_available"`
}

// Upload sends a CSV to be trained on.
func (c *Client) Upload(ctx context.Context, token, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var res UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/datasets", token, mw.FormDataContentType(), &buf, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Download opens one file of a model. The caller closes the response body.
func (c *Client) Download(ctx context.Context, token, modelID, file string) (*http.Response, error) {
	path := "/api/v1/models/" + url.PathEscape(modelID) + "/download?file=" + url.QueryEscape(file)
	resp, err := c.send(ctx, http.MethodGet, path, token, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// Latest report paths.
const (
	LatestPredictions = "/api/v1/predictions/latest"
	LatestImportance  = "/api/v1/feature-importance/latest"
)

// Latest opens the newest predictions or importance file of the session's
// user. The caller closes the response body.
func (c *Client) Latest(ctx context.Context, token, path string) (*http.Response, error) {
	resp, err := c.send(ctx, http.MethodGet, path, token, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token, contentType string, body io.Reader, out interface{}) error {
	resp, err := c.send(ctx, method, path, token, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, token, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if !c.breaker.Allow() {
		return nil, ErrUnavailable
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	var body struct {
		Error middleware.APIError `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		apiErr.Details = body.Error.Details
	}
	return apiErr
}
