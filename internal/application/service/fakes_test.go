package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	domainService "github.com/bitizen-labs/sessiond/internal/domain/service"
)

// fakeKeyVault hands out deterministic keys and records destroyed handles.
type fakeKeyVault struct {
	mu        sync.Mutex
	generated int
	destroyed []string
	signErr   error
}

func (f *fakeKeyVault) GenerateKeypair(_ context.Context, sessionID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated++
	return "0xpub" + sessionID, "sessions/" + sessionID, nil
}

func (f *fakeKeyVault) SignAssertion(_ context.Context, handle string, _ map[string]interface{}) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "assertion-for-" + handle, nil
}

func (f *fakeKeyVault) Destroy(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, handle)
	return nil
}

func (f *fakeKeyVault) destroyedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.destroyed...)
}

// fakeExecutor counts dispatches and can fail or stall on demand.
type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, req domainService.ExecutionRequest) (*domainService.ExecutionResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domainService.ExecutionResult{
		Reference:  fmt.Sprintf("0xref%d-%s", n, req.TaskID),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// rendezvousExecutor blocks every call until the expected number of calls are
// in flight at the same time, so a test can prove callers reached it
// concurrently without timing the wall clock.
type rendezvousExecutor struct {
	mu     sync.Mutex
	calls  int
	expect int
	allIn  chan struct{}
}

func newRendezvousExecutor(expect int) *rendezvousExecutor {
	return &rendezvousExecutor{expect: expect, allIn: make(chan struct{})}
}

func (f *rendezvousExecutor) Execute(_ context.Context, req domainService.ExecutionRequest) (*domainService.ExecutionResult, error) {
	f.mu.Lock()
	f.calls++
	if f.calls == f.expect {
		close(f.allIn)
	}
	n := f.calls
	f.mu.Unlock()

	select {
	case <-f.allIn:
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("expected %d concurrent dispatches, saw %d", f.expect, n)
	}
	return &domainService.ExecutionResult{
		Reference:  fmt.Sprintf("0xref%d-%s", n, req.TaskID),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// faultyIncrementRepo delegates everything but fails usage recording, to
// drive the reconciliation fault path.
type faultyIncrementRepo struct {
	repository.SessionRepository
	incrementErr error
}

func (r *faultyIncrementRepo) IncrementUsage(ctx context.Context, id string, amount int64, now time.Time) (repository.IncrementOutcome, *models.Usage, error) {
	if r.incrementErr != nil {
		return repository.IncrementApplied, nil, r.incrementErr
	}
	return r.SessionRepository.IncrementUsage(ctx, id, amount, now)
}

// recordingAudit captures published events.
type recordingAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *recordingAudit) Publish(_ context.Context, event models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) byType(t models.AuditEventType) []models.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range a.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// recordingTaskLogs captures appended task log entries.
type recordingTaskLogs struct {
	mu      sync.Mutex
	entries []*models.TaskLog
}

func (l *recordingTaskLogs) Append(_ context.Context, entry *models.TaskLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *recordingTaskLogs) FindBySession(_ context.Context, sessionID string, _ int) ([]*models.TaskLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.TaskLog
	for _, e := range l.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *recordingTaskLogs) all() []*models.TaskLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.TaskLog(nil), l.entries...)
}
