// Package client is the HTTP/WebSocket client for the chat daemon. It
// implements the session package's API and Dialer boundaries, so the TUI
// wires a Client straight into a session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agencykit/projectchat/internal/store"
)

// Identity is the sender identity attached to every request. Auth proper
// lives at the gateway; the daemon trusts these headers.
type Identity struct {
	ID   string
	Name string
	Role string
}

// Client talks to one chat daemon as one sender.
type Client struct {
	baseURL string
	id      Identity
	http    *http.Client
}

// New creates a client for the daemon at baseURL (e.g. http://127.0.0.1:8480).
func New(baseURL string, id Identity) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		id:      id,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is the daemon's error body.
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setIdentity(req.Header)
	return req, nil
}

func (c *Client) setIdentity(h http.Header) {
	h.Set("X-Sender-ID", c.id.ID)
	if c.id.Name != "" {
		h.Set("X-Sender-Name", c.id.Name)
	}
	if c.id.Role != "" {
		h.Set("X-Sender-Role", c.id.Role)
	}
}

// do sends the request and decodes a 2xx response into out. Non-2xx
// responses come back as *apiError when the daemon sent one.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateProject registers a project chat channel, idempotently.
func (c *Client) CreateProject(ctx context.Context, projectID, name string) (*store.Project, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/projects",
		map[string]string{"id": projectID, "name": name})
	if err != nil {
		return nil, err
	}
	var out struct {
		Project store.Project `json:"project"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// ListMessages pulls a history page, oldest to newest. before=0 means the
// newest window.
func (c *Client) ListMessages(ctx context.Context, projectID string, limit int, before int64) ([]store.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	path := "/projects/" + url.PathEscape(projectID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []store.Message `json:"messages"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage appends a message and returns the server-confirmed record.
func (c *Client) PostMessage(ctx context.Context, projectID, body string, ref *store.Attachment) (*store.Message, error) {
	kind := "TEXT"
	if ref != nil {
		kind = "FILE"
	}
	req, err := c.newRequest(ctx, http.MethodPost,
		"/projects/"+url.PathEscape(projectID)+"/messages",
		map[string]any{"content": body, "type": kind, "attachmentRef": ref})
	if err != nil {
		return nil, err
	}
	var out struct {
		Message store.Message `json:"message"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// PostTyping reports the sender's typing state. Best effort end to end.
func (c *Client) PostTyping(ctx context.Context, projectID string, isTyping bool) error {
	req, err := c.newRequest(ctx, http.MethodPost,
		"/projects/"+url.PathEscape(projectID)+"/typing",
		map[string]bool{"isTyping": isTyping})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
