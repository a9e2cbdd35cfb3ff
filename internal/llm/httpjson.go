package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/util"
)

// maxResponseBytes bounds a provider response body
const maxResponseBytes = 4 << 20

// jsonAPI posts JSON requests to a provider's HTTP endpoint
type jsonAPI struct {
	baseURL string
	headers map[string]string
	client  *http.Client

	// errorMessage extracts the provider's message from a non-200 body; "" means unstructured
	errorMessage func(body []byte) string
}

func newJSONAPI(cfg Config, defaultBaseURL string, defaultTimeout time.Duration, headers map[string]string, errorMessage func([]byte) string) *jsonAPI {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &jsonAPI{
		baseURL: strings.TrimSuffix(pick(cfg.BaseURL, defaultBaseURL), "/"),
		headers: headers,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)},
		},
		errorMessage: errorMessage,
	}
}

// post sends in as JSON to path and decodes a 200 answer into out
func (a *jsonAPI) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	status, data, err := a.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return a.statusError(status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// get fetches path and returns the status code
func (a *jsonAPI) get(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	status, _, err := a.do(req)
	return status, err
}

func (a *jsonAPI) do(req *http.Request) (int, []byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (a *jsonAPI) statusError(status int, body []byte) error {
	if a.errorMessage != nil {
		if msg := a.errorMessage(body); msg != "" {
			return fmt.Errorf("API error (%d): %s", status, msg)
		}
	}
	return fmt.Errorf("API error (%d): %s", status, strings.TrimSpace(string(body)))
}
