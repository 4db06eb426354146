package service

import (
	"context"
	"time"

	"github.com/bitizen-labs/sessiond/internal/application/dto"
	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	domainService "github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
	"github.com/bitizen-labs/sessiond/pkg/utils"
)

// TaskAppService is the task executor gate: the single choke point every
// delegated action passes through before it reaches the settlement network.
type TaskAppService interface {
	Execute(ctx context.Context, req *dto.ExecuteTaskRequest) (*dto.ExecuteTaskResponse, error)
}

type taskAppServiceImpl struct {
	repo        repository.SessionRepository
	permissions domainService.PermissionService
	spendPolicy domainService.SpendPolicy
	keyVault    domainService.KeyVault
	executor    domainService.TaskExecutor
	revocations domainService.RevocationCache
	taskLogs    domainService.TaskLogStore
	audit       domainService.AuditPublisher
	metrics     domainService.MetricsService
	logger      logger.Logger

	// sessionLocks serializes the spend check, external execution and usage
	// recording per credential. The storage-level conditional increment is
	// the cross-process backstop; this lock guarantees that within a
	// process the loser of a concurrent race is turned away before the
	// settlement call is dispatched.
	sessionLocks *keyedMutex
}

// NewTaskAppService wires the executor gate. revocations, taskLogs and audit
// may be nil in embedded deployments.
func NewTaskAppService(
	repo repository.SessionRepository,
	permissions domainService.PermissionService,
	spendPolicy domainService.SpendPolicy,
	keyVault domainService.KeyVault,
	executor domainService.TaskExecutor,
	revocations domainService.RevocationCache,
	taskLogs domainService.TaskLogStore,
	audit domainService.AuditPublisher,
	metrics domainService.MetricsService,
	log logger.Logger,
) TaskAppService {
	if metrics == nil {
		metrics = domainService.NewNoopMetrics()
	}
	return &taskAppServiceImpl{
		repo:         repo,
		permissions:  permissions,
		spendPolicy:  spendPolicy,
		keyVault:     keyVault,
		executor:     executor,
		revocations:  revocations,
		taskLogs:     taskLogs,
		audit:        audit,
		metrics:      metrics,
		logger:       log.WithComponent("TaskAppService"),
		sessionLocks: newKeyedMutex(),
	}
}

func (s *taskAppServiceImpl) Execute(ctx context.Context, req *dto.ExecuteTaskRequest) (*dto.ExecuteTaskResponse, error) {
	start := time.Now()
	if req.SessionID == "" {
		return nil, errors.ErrInvalidRequest("session_id is required")
	}
	if req.Amount < 0 {
		return nil, errors.ErrInvalidRequest("amount must not be negative")
	}
	taskID := utils.NewTaskID()

	// Fast-path revocation check; the store remains the source of truth.
	if s.revocations != nil {
		if revoked, err := s.revocations.IsRevoked(ctx, req.SessionID); err == nil && revoked {
			denial := errors.ErrCredentialNotActive(req.SessionID, constants.SessionStatusRevoked)
			s.recordOutcome(ctx, taskID, req, nil, "", denial, start)
			return nil, denial
		}
	}

	// The whole validate-execute-record sequence is serialized per
	// credential so no two in-flight executions evaluate the spend check on
	// the same usage snapshot.
	unlock := s.sessionLocks.lock(req.SessionID)
	defer unlock()

	// Step 1: resolve the credential.
	session, err := s.repo.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.recordOutcome(ctx, taskID, req, nil, "", err, start)
			return nil, err
		}
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to load session")
	}

	// Step 2: effective status, with the lazy-expiry transition persisted.
	now := time.Now().UTC()
	if session.Status == constants.SessionStatusActive && session.IsExpired(now) {
		if uerr := s.repo.UpdateStatus(ctx, session.ID, constants.SessionStatusExpired); uerr != nil {
			s.logger.Warn(ctx, "failed to persist lazy expiry",
				logger.String("session_id", session.ID))
		}
		session.Status = constants.SessionStatusExpired
	}
	if session.Status != constants.SessionStatusActive {
		denial := errors.ErrCredentialNotActive(session.ID, session.Status)
		s.recordOutcome(ctx, taskID, req, session, "", denial, start)
		return nil, denial
	}

	// Step 3: permission model.
	if !s.permissions.IsAuthorized(session, req.Action) {
		denial := errors.ErrActionNotPermitted(req.Action)
		s.recordOutcome(ctx, taskID, req, session, "", denial, start)
		return nil, denial
	}

	// Step 4: spend admissibility on the current usage snapshot.
	switch s.spendPolicy.CanSpend(session, req.Amount) {
	case domainService.SpendExceedsPerTransaction:
		denial := errors.ErrExceedsPerTransaction(req.Amount, session.SpendLimits.PerTransactionMax)
		s.metrics.RecordSpendDenial("per_transaction")
		s.recordOutcome(ctx, taskID, req, session, "", denial, start)
		return nil, denial
	case domainService.SpendExceedsDaily:
		denial := errors.ErrExceedsDaily(req.Amount, session.Usage.CumulativeSpent, session.SpendLimits.DailyMax)
		s.metrics.RecordSpendDenial("daily")
		s.recordOutcome(ctx, taskID, req, session, "", denial, start)
		return nil, denial
	}

	// Step 5: dispatch to the settlement network, authorized by an
	// assertion minted from the session's vault-held key. Once dispatched
	// the call must resolve to success or failure before usage recording,
	// so caller cancellation is not propagated past this point.
	execCtx := context.WithoutCancel(ctx)
	assertion, err := s.keyVault.SignAssertion(execCtx, session.PrivateKeyHandle, map[string]interface{}{
		"session_id": session.ID,
		"task_id":    taskID,
		"action":     string(req.Action),
		"amount":     req.Amount,
	})
	if err != nil {
		signErr := errors.Wrap(err, constants.ErrCodeInternal, "failed to sign execution assertion")
		s.logger.Error(ctx, "failed to sign execution assertion", err,
			logger.String("session_id", session.ID))
		s.recordOutcome(ctx, taskID, req, session, "", signErr, start)
		return nil, signErr
	}

	result, err := s.executor.Execute(execCtx, domainService.ExecutionRequest{
		TaskID:    taskID,
		Action:    string(req.Action),
		Amount:    req.Amount,
		Payload:   req.Payload,
		Assertion: assertion,
	})
	if err != nil {
		// No usage is recorded for a failed execution: no partial charge.
		execErr := errors.ErrExecutionFailed(err)
		s.logger.Error(ctx, "settlement execution failed", err,
			logger.String("session_id", session.ID),
			logger.String("task_id", taskID))
		s.recordOutcome(ctx, taskID, req, session, "", execErr, start)
		return nil, execErr
	}

	// Step 6: atomically record usage. The conditional increment re-checks
	// the daily cap at the storage layer; with the per-credential lock held
	// a refusal here means another process charged the credential between
	// our check and our record, and the external action has already taken
	// effect: a reconciliation fault, not a retryable error.
	outcome, usage, err := s.repo.IncrementUsage(execCtx, session.ID, req.Amount, now)
	if err != nil || outcome != repository.IncrementApplied {
		fault := errors.ErrReconciliationFault(session.ID, req.Amount, result.Reference, err)
		s.raiseReconciliationFault(execCtx, session, req, taskID, result.Reference, outcome, err)
		s.recordOutcome(ctx, taskID, req, session, result.Reference, fault, start)
		return nil, fault
	}

	// Step 7: respond with the external reference and the usage snapshot.
	s.recordOutcome(ctx, taskID, req, session, result.Reference, nil, start)
	s.logger.Info(ctx, "delegated task executed",
		logger.String("session_id", session.ID),
		logger.String("task_id", taskID),
		logger.String("action", string(req.Action)),
		logger.Int64("amount", req.Amount),
		logger.String("reference", result.Reference))

	return &dto.ExecuteTaskResponse{
		TaskID:     taskID,
		SessionID:  session.ID,
		Action:     string(req.Action),
		Reference:  result.Reference,
		Usage:      dto.NewUsageView(*usage),
		ExecutedAt: result.ExecutedAt,
	}, nil
}

// raiseReconciliationFault makes the accounting divergence loud and durable:
// structured log, metric, and an audit event carrying everything an operator
// needs to reconcile by hand.
func (s *taskAppServiceImpl) raiseReconciliationFault(ctx context.Context, session *models.SessionCredential, req *dto.ExecuteTaskRequest, taskID, reference string, outcome repository.IncrementOutcome, cause error) {
	s.metrics.RecordReconciliationFault()
	s.logger.Error(ctx, "usage recording failed after successful execution", cause,
		logger.String("session_id", session.ID),
		logger.String("task_id", taskID),
		logger.Int64("amount", req.Amount),
		logger.String("external_reference", reference),
		logger.Int("increment_outcome", int(outcome)))
	if s.audit != nil {
		event := models.AuditEvent{
			Type:        models.AuditReconciliationFault,
			SessionID:   session.ID,
			PrincipalID: session.PrincipalID,
			Amount:      req.Amount,
			Reference:   reference,
			Detail: map[string]interface{}{
				"task_id": taskID,
				"action":  string(req.Action),
			},
			OccurredAt: time.Now().UTC(),
		}
		if err := s.audit.Publish(ctx, event); err != nil {
			// Last line of defense is the structured log above.
			s.logger.Error(ctx, "failed to publish reconciliation fault event", err,
				logger.String("session_id", session.ID),
				logger.String("task_id", taskID))
		}
	}
}

// recordOutcome appends the gate outcome to the task log and records metrics.
func (s *taskAppServiceImpl) recordOutcome(ctx context.Context, taskID string, req *dto.ExecuteTaskRequest, session *models.SessionCredential, reference string, outcome error, start time.Time) {
	status := "success"
	errorCode := ""
	if outcome != nil {
		status = "denied"
		errorCode = string(errors.CodeOf(outcome))
		if !errors.IsAuthzDenial(outcome) && !errors.IsNotFound(outcome) {
			status = "failed"
		}
	}
	s.metrics.RecordTaskExecution(string(req.Action), status, time.Since(start))

	if s.taskLogs == nil {
		return
	}
	entry := &models.TaskLog{
		TaskID:    taskID,
		SessionID: req.SessionID,
		Action:    string(req.Action),
		Amount:    req.Amount,
		Status:    status,
		Reference: reference,
		ErrorCode: errorCode,
		CreatedAt: time.Now().UTC(),
	}
	if session != nil {
		entry.PrincipalID = session.PrincipalID
	}
	if err := s.taskLogs.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn(ctx, "failed to append task log",
			logger.String("task_id", taskID),
			logger.String("session_id", req.SessionID))
	}
}
