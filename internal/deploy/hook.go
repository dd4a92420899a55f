// Package deploy triggers site rebuilds through a deploy hook URL.
package deploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the deploy hook answers with a non-2xx status
type StatusError struct {
	StatusCode int
	StatusText string
}

func (e *StatusError) Error() string {
	return "Deploy hook failed: " + e.StatusText
}

// Hook is an external URL that starts a fresh build when POSTed to
type Hook struct {
	url        string
	httpClient *http.Client
}

// NewHook creates a hook for url. An empty url yields an unconfigured hook.
func NewHook(url string, httpClient *http.Client) *Hook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Hook{url: url, httpClient: httpClient}
}

// Configured reports whether a hook URL is set
func (h *Hook) Configured() bool {
	return h != nil && h.url != ""
}

// Trigger POSTs to the hook and waits for its answer
func (h *Hook) Trigger(ctx context.Context) error {
	if !h.Configured() {
		return fmt.Errorf("deploy hook not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, StatusText: reasonPhrase(resp)}
	}
	return nil
}

// reasonPhrase returns the reason the hook sent with its status line,
// falling back to the standard text when it sent none
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}
