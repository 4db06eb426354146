package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// StubExecutor is a local TaskExecutor for development and tests. It accepts
// every task after a short simulated settlement delay and fabricates a
// transaction reference.
type StubExecutor struct {
	delay  time.Duration
	logger logger.Logger

	mu       sync.Mutex
	executed []service.ExecutionRequest
}

// NewStubExecutor creates a stub that resolves tasks after delay.
func NewStubExecutor(delay time.Duration, log logger.Logger) *StubExecutor {
	return &StubExecutor{
		delay:  delay,
		logger: log.WithComponent("StubExecutor"),
	}
}

// Execute fabricates a settlement result. The simulated delay is not
// cancellable, matching the real gateway's fire-then-observe contract.
func (s *StubExecutor) Execute(ctx context.Context, req service.ExecutionRequest) (*service.ExecutionResult, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.executed = append(s.executed, req)
	s.mu.Unlock()

	reference := fmt.Sprintf("0xstub%s", uuid.NewString()[:16])
	s.logger.Debug(ctx, "stub settlement executed",
		logger.String("task_id", req.TaskID),
		logger.String("action", req.Action),
		logger.Int64("amount", req.Amount),
		logger.String("reference", reference))

	return &service.ExecutionResult{
		Reference:  reference,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// Executed returns a copy of every request the stub has resolved.
func (s *StubExecutor) Executed() []service.ExecutionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.ExecutionRequest, len(s.executed))
	copy(out, s.executed)
	return out
}
