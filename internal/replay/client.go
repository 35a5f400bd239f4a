// Package replay issues authenticated HTTP requests on behalf of generated
// tools, reusing the cookies and CSRF token captured during a recording.
package replay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/internal/sessionstore"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Client replays API calls with the recorded session identity. Cookies are
// resolved per request URL, and mutating verbs get the csrf token injected
// into their JSON body the way the target application expects it.
type Client struct {
	store      *sessionstore.Store
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a replay client over a session store.
func NewClient(store *sessionstore.Store, logger *zap.Logger) *Client {
	return &Client{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("replay"),
	}
}

// Do sends a request carrying the session's cookies for the URL's domain.
// The caller owns closing the response body.
func (c *Client) Do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	cookies, err := c.store.LookupCookies(url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session cookies: %w", err)
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("Replaying request.",
		zap.String("method", method), zap.String("url", url), zap.Int("cookies", len(cookies)))
	return c.httpClient.Do(req)
}

// DoJSON marshals payload as the request body. On POST/PUT/PATCH/DELETE the
// csrf token is injected under the "dsc" key unless the caller already set
// one. The decoded response body is returned.
func (c *Client) DoJSON(ctx context.Context, method, url string, payload map[string]interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil || isMutating(method) {
		if payload == nil {
			payload = map[string]interface{}{}
		}
		if isMutating(method) {
			if _, ok := payload["dsc"]; !ok {
				if token := c.store.CsrfToken(); token != "" {
					payload["dsc"] = token
				}
			}
		}
		encoded, err := jsonAPI.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	resp, err := c.Do(ctx, method, url, body, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed: status %d, body: %s", resp.StatusCode, truncate(respBody, 500))
	}
	return respBody, nil
}

// CsrfToken exposes the session's csrf token to generated tools that build
// non-JSON bodies themselves.
func (c *Client) CsrfToken() string {
	return c.store.CsrfToken()
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
