package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/types"
)

// WebhookExecutor forwards action lists to an external execution service
// over HTTP. The receiving service owns signing and submission; a 2xx
// response acknowledges that the execution was accepted.
type WebhookExecutor struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// executeRequest is the webhook request body.
type executeRequest struct {
	ExecutionID string         `json:"execution_id"`
	Actions     []types.Action `json:"actions"`
}

// NewWebhookExecutor creates an executor posting to the given endpoint.
// A non-positive timeout falls back to 10 seconds.
func NewWebhookExecutor(url string, timeout time.Duration, logger zerolog.Logger) *WebhookExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &WebhookExecutor{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With().Str("component", "webhook_executor").Logger(),
	}
}

// Execute implements types.Executor.
func (w *WebhookExecutor) Execute(ctx context.Context, id types.ExecutionID, actions []types.Action) error {
	body, err := json.Marshal(executeRequest{
		ExecutionID: id.Hex(),
		Actions:     actions,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach execution service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("execution service returned %d: %s", resp.StatusCode, string(errBody))
	}

	w.logger.Debug().
		Str("execution_id", id.Hex()).
		Int("actions", len(actions)).
		Msg("execution accepted")

	return nil
}
