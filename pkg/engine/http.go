package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient sends each query as a JSON POST to <base>/query.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "engine").Str("transport", "http").Logger(),
	}
}

// SendQuery posts the request and decodes the engine's answer
func (c *HTTPClient) SendQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	body, err := c.makeRequest(ctx, http.MethodPost, "/query", req)
	if err != nil {
		return nil, err
	}

	var res QueryResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse engine response: %w", err)
	}
	return &res, nil
}

// makeRequest sends one JSON request and returns the raw response body
func (c *HTTPClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("engine request")

	if resp.StatusCode >= 400 {
		var engineErr EngineError
		if json.Unmarshal(respBody, &engineErr) == nil && engineErr.Message != "" {
			if engineErr.Code == 0 {
				engineErr.Code = resp.StatusCode
			}
			return nil, &engineErr
		}
		return nil, fmt.Errorf("engine request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
