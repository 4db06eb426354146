// Package settlement adapts the external settlement network behind the
// TaskExecutor port. The gateway performs the actual on-chain call; this
// package only dispatches and interprets the response.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

const defaultGatewayTimeout = 120 * time.Second

// GatewayClient calls the settlement partner's HTTP execution endpoint.
//
// The request context is honored while the call is in flight, but callers of
// the gate already strip cancellation before dispatch: once the gateway has
// accepted a task the outcome must be observed, not abandoned.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewGatewayClient creates an executor against the configured gateway URL.
func NewGatewayClient(cfg *config.SettlementConfig, log logger.Logger) service.TaskExecutor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &GatewayClient{
		baseURL: cfg.GatewayURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("GatewayClient"),
	}
}

type executeRequest struct {
	TaskID    string                 `json:"task_id"`
	Action    string                 `json:"action"`
	Amount    int64                  `json:"amount"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Assertion string                 `json:"assertion"`
}

type executeResponse struct {
	Reference  string    `json:"reference"`
	ExecutedAt time.Time `json:"executed_at"`
	Error      string    `json:"error,omitempty"`
}

// Execute submits one task to the gateway and waits for its terminal result.
func (c *GatewayClient) Execute(ctx context.Context, req service.ExecutionRequest) (*service.ExecutionResult, error) {
	body, err := json.Marshal(executeRequest{
		TaskID:    req.TaskID,
		Action:    req.Action,
		Amount:    req.Amount,
		Payload:   req.Payload,
		Assertion: req.Assertion,
	})
	if err != nil {
		return nil, fmt.Errorf("encode execution request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build execution request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("settlement gateway call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "settlement gateway rejected task",
			logger.String("task_id", req.TaskID),
			logger.Int("status", resp.StatusCode),
			logger.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("settlement gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed executeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("settlement gateway error: %s", parsed.Error)
	}
	if parsed.Reference == "" {
		return nil, fmt.Errorf("settlement gateway returned no transaction reference")
	}

	executedAt := parsed.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}
	return &service.ExecutionResult{
		Reference:  parsed.Reference,
		ExecutedAt: executedAt,
	}, nil
}
