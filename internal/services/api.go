// JSON over HTTP helpers shared by the provider clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/upbeat/internal/shared"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response body is kept in the error.
const maxErrorBody = 512

// apiRequest describes one call to a provider API.
type apiRequest struct {
	method string
	url    string
	token  string
	body   any
}

// defaultHTTPClient returns client, or a client with a request timeout when nil.
func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultTimeout}
}

// doJSON performs r and decodes a JSON response into result.
//
// Transport failures, non-2xx statuses and undecodable bodies are all reported as
// [shared.ErrExternalProvider].
func doJSON(ctx context.Context, client *http.Client, provider string, r apiRequest, result any) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", shared.ErrExternalProvider, provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrExternalProvider, provider, err)
	}
	return nil
}

// ProviderError is a non-2xx response from a provider API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap lets callers match [shared.ErrExternalProvider] with errors.Is.
func (e *ProviderError) Unwrap() error { return shared.ErrExternalProvider }
