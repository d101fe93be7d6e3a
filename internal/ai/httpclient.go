package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 90 * time.Second
	maxErrorBody          = 4 * 1024
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultRequestTimeout}
}

// streamingClient drops the whole-request timeout; ctx bounds a stream.
func streamingClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{}
	}
	cp := *c
	cp.Timeout = 0
	return &cp
}

// postJSON sends body as JSON and returns the response when the status is 2xx.
// Non-2xx bodies are folded into the returned error, prefixed with name.
func postJSON(ctx context.Context, client *http.Client, name, url string, body any, headers map[string]string) (*http.Response, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil", name)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: %s", name, msg)
	}
	return resp, nil
}
