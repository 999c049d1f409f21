// Package api is the HTTP client for the fastodo backend. It mirrors the
// service's wire envelopes exactly; deciding whether a decoded body means
// success is the reconciler's job, not the client's.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionCookie carries the signed access token issued at sign-in.
const SessionCookie = "_access_token"

// Client is a minimal fastodo HTTP API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Credentials is the sign-in/sign-up request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullname,omitempty"`
}

// Session is the account payload returned by signin and signup.
type Session struct {
	Email        string `json:"email"`
	UserID       string `json:"userId"`
	AccessToken  string `json:"_accessToken"`
	RefreshToken string `json:"_refreshToken"`
}

type sessionEnvelope struct {
	Response Session `json:"response"`
	Error    string  `json:"Error,omitempty"`
}

// SignIn authenticates and returns the session; success is any 2xx with a
// token in the body.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var resp sessionEnvelope
	err := c.do(ctx, http.MethodPost, "users/signin", Credentials{Email: email, Password: password}, &resp)
	if err != nil {
		return Session{}, err
	}
	if resp.Error != "" {
		return Session{}, fmt.Errorf("sign in: %s", resp.Error)
	}
	return resp.Response, nil
}

// SignUp registers an account and returns the session.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (Session, error) {
	var resp sessionEnvelope
	err := c.do(ctx, http.MethodPost, "users/signup", Credentials{Email: email, Password: password, FullName: fullName}, &resp)
	if err != nil {
		return Session{}, err
	}
	if resp.Error != "" {
		return Session{}, fmt.Errorf("sign up: %s", resp.Error)
	}
	return resp.Response, nil
}

// CreateWorkspaceResponse mirrors {"response":{"success","workspaceId"}}.
type CreateWorkspaceResponse struct {
	Response struct {
		Success     string `json:"success"`
		WorkspaceID string `json:"workspaceId"`
		Error       string `json:"Error,omitempty"`
	} `json:"response"`
}

func (c *Client) CreateWorkspace(ctx context.Context, workspaceName, userID string) (CreateWorkspaceResponse, error) {
	body := map[string]any{
		"workspaceName": workspaceName,
		"userId":        userID,
	}
	var resp CreateWorkspaceResponse
	err := c.do(ctx, http.MethodPost, "workspaces/create-workspace", body, &resp)
	return resp, err
}

// StringResponse mirrors {"response":"Success"} bodies.
type StringResponse struct {
	Response string `json:"response"`
}

func (c *Client) UpdateWorkspace(ctx context.Context, workspaceName, updatedWorkspaceName, userID string) (StringResponse, error) {
	body := map[string]any{
		"workspaceName":        workspaceName,
		"updatedWorkspaceName": updatedWorkspaceName,
		"userId":               userID,
	}
	var resp StringResponse
	err := c.do(ctx, http.MethodPut, "workspaces/update-workspace", body, &resp)
	return resp, err
}

func (c *Client) DeleteWorkspace(ctx context.Context, workspaceName, userID string) (StringResponse, error) {
	body := map[string]any{
		"workspaceName": workspaceName,
		"userId":        userID,
	}
	var resp StringResponse
	err := c.do(ctx, http.MethodDelete, "workspaces/delete-workspace", body, &resp)
	return resp, err
}

// RemoteWorkspace is the server's workspace listing shape.
type RemoteWorkspace struct {
	ID   string `json:"_id"`
	Name string `json:"workspaceName"`
}

// WorkspacesResponse mirrors the get-user-workspaces envelope. Success is
// the string "false" on failure.
type WorkspacesResponse struct {
	Success  string            `json:"Success"`
	Response []RemoteWorkspace `json:"response"`
	Error    string            `json:"Error,omitempty"`
}

func (c *Client) UserWorkspaces(ctx context.Context, userID string) (WorkspacesResponse, error) {
	endpoint := "workspaces/get-user-workspaces?userId=" + url.QueryEscape(userID)
	var resp WorkspacesResponse
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTodoResponse mirrors {"success":"true","response":{"_id":...}}.
type CreateTodoResponse struct {
	Success  string `json:"success"`
	Response struct {
		ID string `json:"_id"`
	} `json:"response"`
}

func (c *Client) CreateTodo(ctx context.Context, userID, workspaceID, task, priority string, done bool) (CreateTodoResponse, error) {
	endpoint := fmt.Sprintf("users/%s/create-todo/%s", url.PathEscape(userID), url.PathEscape(workspaceID))
	body := map[string]any{
		"task":        task,
		"priority":    priority,
		"userId":      userID,
		"workspaceId": workspaceID,
		"done":        done,
	}
	var resp CreateTodoResponse
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UpdateTodoResponse mirrors {"success":"true"}.
type UpdateTodoResponse struct {
	Success string `json:"success"`
}

func (c *Client) UpdateTodo(ctx context.Context, id, task, priority string) (UpdateTodoResponse, error) {
	body := map[string]any{
		"id":       id,
		"task":     task,
		"priority": priority,
	}
	var resp UpdateTodoResponse
	err := c.do(ctx, http.MethodPut, "todos/update-todo", body, &resp)
	return resp, err
}

// DeleteTodo succeeds on any 2xx; the body is not inspected.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	endpoint := "todos/delete-todo/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ToggleTodoResponse mirrors {"response":"true"}.
type ToggleTodoResponse struct {
	Response string `json:"response"`
}

func (c *Client) ToggleTodo(ctx context.Context, id string, toggle bool, userID string) (ToggleTodoResponse, error) {
	body := map[string]any{
		"id":     id,
		"toggle": toggle,
		"userId": userID,
	}
	var resp ToggleTodoResponse
	err := c.do(ctx, http.MethodPost, "todos/toggle-todo", body, &resp)
	return resp, err
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.Token})
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			// logged only; re-authentication is not attempted here
			c.logger().Warn("unauthorized response from backend", "endpoint", endpoint)
		}
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
