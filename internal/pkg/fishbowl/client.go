package fishbowl

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the Fishbowl Advanced REST API. Login opens a session; all
// authenticated calls run against that session so concurrent webhook
// deliveries never share a bearer token.
type Client struct {
	BaseURL        string
	Username       string
	Password       string
	AppName        string
	AppDescription string
	AppID          int

	HTTPClient *http.Client
}

// NewClient creates a Fishbowl API client. Trailing slashes on baseURL are
// tolerated.
func NewClient(baseURL, username, password, appName, appDescription string, appID int) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Username:       username,
		Password:       password,
		AppName:        appName,
		AppDescription: appDescription,
		AppID:          appID,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Session is an authenticated Fishbowl session. Callers must release it with
// Logout on every exit path.
type Session struct {
	client *Client
	token  string
}

// Login authenticates against /api/login and returns a session holding the
// bearer token.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"appName":        c.AppName,
		"appDescription": c.AppDescription,
		"appId":          c.AppID,
		"username":       c.Username,
		"password":       c.Password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var out struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("fishbowl login returned non-JSON (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = string(body)
		}
		return nil, fmt.Errorf("fishbowl login failed (HTTP %d): %s", resp.StatusCode, msg)
	}
	if out.Token == "" {
		return nil, errors.New("fishbowl login returned an empty token")
	}

	return &Session{client: c, token: out.Token}, nil
}

// Logout invalidates the session token. Safe to call once per session.
func (s *Session) Logout(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.BaseURL+"/api/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	s.token = ""
	return nil
}

// RunImportCSV executes an Import with a text/csv body of one header row and
// one value row. Embedded delimiters and quotes round-trip per RFC 4180.
func (s *Session) RunImportCSV(ctx context.Context, importName string, headers, row []string) (map[string]interface{}, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return s.runImport(ctx, importName, "text/csv", buf.Bytes())
}

// RunImportJSON executes an Import with the structured row format:
// [ [headers...], [row...], ... ]. Server-side effect is equivalent to the
// CSV form.
func (s *Session) RunImportJSON(ctx context.Context, importName string, rows [][]string) (map[string]interface{}, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return s.runImport(ctx, importName, "application/json", payload)
}

func (s *Session) runImport(ctx context.Context, importName, contentType string, body []byte) (map[string]interface{}, error) {
	if s.token == "" {
		return nil, errors.New("fishbowl session is not logged in")
	}

	endpoint := s.client.BaseURL + "/api/import/" + url.PathEscape(importName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fishbowl import failed (HTTP %d): %s", resp.StatusCode, string(text))
	}

	// The API sometimes answers with an empty body or plain text.
	if len(bytes.TrimSpace(text)) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(text, &out); err != nil {
		return map[string]interface{}{"raw": string(text)}, nil
	}
	return out, nil
}
