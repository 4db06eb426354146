// Package service provides the application services that orchestrate domain
// services, repositories and external collaborators.
package service

import (
	"context"
	"fmt"
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

// SessionAppService is the session authority: it owns the credential
// lifecycle from issuance through revocation and lazy expiry.
type SessionAppService interface {
	// Issue mints a new session credential for a principal. The response is
	// the only read that ever includes private-key material.
	Issue(ctx context.Context, req *dto.IssueSessionRequest) (*dto.IssueSessionResponse, error)

	// Lookup returns the redacted credential, lazily persisting the expired
	// transition when the expiry instant has passed.
	Lookup(ctx context.Context, sessionID string) (*dto.SessionView, error)

	// ListForPrincipal returns all of a principal's credentials, newest
	// first, with effective statuses.
	ListForPrincipal(ctx context.Context, principalID string) ([]dto.SessionView, error)

	// Revoke transitions an active credential to revoked. Idempotent:
	// terminal credentials report their current terminal status.
	Revoke(ctx context.Context, sessionID string) (*dto.RevokeSessionResponse, error)

	// UpdateSpendLimits replaces the spend limits of an active credential.
	UpdateSpendLimits(ctx context.Context, sessionID string, req *dto.UpdateSpendLimitsRequest) (*dto.SessionView, error)
}

type sessionAppServiceImpl struct {
	repo        repository.SessionRepository
	permissions domainService.PermissionService
	keyVault    domainService.KeyVault
	cache       domainService.SessionCache
	revocations domainService.RevocationCache
	audit       domainService.AuditPublisher
	rateLimiter domainService.RateLimitService
	metrics     domainService.MetricsService
	logger      logger.Logger
}

// NewSessionAppService wires the session authority. cache, revocations,
// audit and rateLimiter may be nil in embedded deployments.
func NewSessionAppService(
	repo repository.SessionRepository,
	permissions domainService.PermissionService,
	keyVault domainService.KeyVault,
	cache domainService.SessionCache,
	revocations domainService.RevocationCache,
	audit domainService.AuditPublisher,
	rateLimiter domainService.RateLimitService,
	metrics domainService.MetricsService,
	log logger.Logger,
) SessionAppService {
	if metrics == nil {
		metrics = domainService.NewNoopMetrics()
	}
	return &sessionAppServiceImpl{
		repo:        repo,
		permissions: permissions,
		keyVault:    keyVault,
		cache:       cache,
		revocations: revocations,
		audit:       audit,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      log.WithComponent("SessionAppService"),
	}
}

func (s *sessionAppServiceImpl) Issue(ctx context.Context, req *dto.IssueSessionRequest) (*dto.IssueSessionResponse, error) {
	start := time.Now()

	// 1. Validate the permission grant against the closed vocabulary.
	if req.PrincipalID == "" {
		return nil, errors.ErrInvalidRequest("principal_id is required")
	}
	if err := s.permissions.ValidateGrant(req.Permissions); err != nil {
		s.metrics.RecordIssue(req.PrincipalID, "invalid_permissions", time.Since(start))
		return nil, err
	}

	// 2. Resolve and validate spend limits.
	limits, err := resolveSpendLimits(req)
	if err != nil {
		s.metrics.RecordIssue(req.PrincipalID, "invalid_limits", time.Since(start))
		return nil, err
	}

	// 3. Resolve the expiration horizon to an absolute instant.
	expiresAt, err := resolveExpiry(req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// 4. Throttle issuance per principal.
	if s.rateLimiter != nil {
		allowed, rlErr := s.rateLimiter.Allow(ctx, req.PrincipalID)
		if rlErr != nil {
			s.logger.Error(ctx, "rate limiter unavailable", rlErr,
				logger.String("principal_id", req.PrincipalID))
			return nil, errors.Wrap(rlErr, constants.ErrCodeInternal, "rate limiter unavailable")
		}
		if !allowed {
			s.logger.Warn(ctx, "issuance rate limit exceeded",
				logger.String("principal_id", req.PrincipalID))
			return nil, errors.ErrRateLimitExceeded(req.PrincipalID)
		}
	}

	// 5. Generate the session keypair inside the custody boundary.
	sessionID := utils.NewSessionID()
	publicKey, handle, err := s.keyVault.GenerateKeypair(ctx, sessionID)
	if err != nil {
		s.logger.Error(ctx, "keypair generation failed", err,
			logger.String("session_id", sessionID))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to generate session keypair")
	}

	// 6. Persist the credential with zeroed usage.
	session := models.NewSessionCredential(sessionID, req.PrincipalID, publicKey, handle, req.Permissions, expiresAt, limits)
	if err := s.repo.Save(ctx, session); err != nil {
		s.logger.Error(ctx, "failed to persist session credential", err,
			logger.String("session_id", sessionID),
			logger.String("principal_id", req.PrincipalID))
		// Orphaned key material is cleaned up best effort.
		_ = s.keyVault.Destroy(ctx, handle)
		s.metrics.RecordIssue(req.PrincipalID, "error", time.Since(start))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to persist session credential")
	}

	s.publishAudit(ctx, models.AuditEvent{
		Type:        models.AuditSessionIssued,
		SessionID:   sessionID,
		PrincipalID: req.PrincipalID,
		Detail: map[string]interface{}{
			"expires_at":  expiresAt,
			"permissions": req.Permissions,
		},
		OccurredAt: time.Now().UTC(),
	})

	s.logger.Info(ctx, "session credential issued",
		logger.String("session_id", sessionID),
		logger.String("principal_id", req.PrincipalID),
		logger.Time("expires_at", expiresAt),
		logger.Int("permission_count", len(req.Permissions)))
	s.metrics.RecordIssue(req.PrincipalID, "success", time.Since(start))

	// The handle leaves the trusted boundary exactly once, here.
	return &dto.IssueSessionResponse{
		SessionView:      dto.NewSessionView(session),
		PrivateKeyHandle: handle,
	}, nil
}

func (s *sessionAppServiceImpl) Lookup(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	// Cache serves only still-active reads; anything needing a lazy-expiry
	// transition falls through to the store so the transition persists.
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, sessionID); ok {
			if cached.EffectiveStatus(time.Now().UTC()) == cached.Status {
				view := dto.NewSessionView(cached)
				return &view, nil
			}
		}
	}

	session, err := s.loadWithLazyExpiry(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, session.Redacted())
	}
	view := dto.NewSessionView(session)
	return &view, nil
}

func (s *sessionAppServiceImpl) ListForPrincipal(ctx context.Context, principalID string) ([]dto.SessionView, error) {
	if principalID == "" {
		return nil, errors.ErrInvalidRequest("principal_id is required")
	}

	sessions, err := s.repo.FindByPrincipal(ctx, principalID)
	if err != nil {
		s.logger.Error(ctx, "failed to list sessions", err,
			logger.String("principal_id", principalID))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to list sessions")
	}

	now := time.Now().UTC()
	views := make([]dto.SessionView, 0, len(sessions))
	for _, session := range sessions {
		if session.Status == constants.SessionStatusActive && session.IsExpired(now) {
			s.persistExpiry(ctx, session)
		}
		views = append(views, dto.NewSessionView(session))
	}
	return views, nil
}

func (s *sessionAppServiceImpl) Revoke(ctx context.Context, sessionID string) (*dto.RevokeSessionResponse, error) {
	session, err := s.loadWithLazyExpiry(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Idempotent: terminal credentials report their current status.
	if session.Status.IsTerminal() {
		return &dto.RevokeSessionResponse{
			SessionID: sessionID,
			Status:    session.Status,
		}, nil
	}

	if err := s.repo.UpdateStatus(ctx, sessionID, constants.SessionStatusRevoked); err != nil {
		s.logger.Error(ctx, "failed to revoke session", err,
			logger.String("session_id", sessionID))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to revoke session")
	}

	now := time.Now().UTC()
	if s.revocations != nil {
		if err := s.revocations.MarkRevoked(ctx, sessionID, session.ExpiresAt); err != nil {
			s.logger.Warn(ctx, "failed to blacklist revoked session",
				logger.String("session_id", sessionID),
				logger.Any("error", err.Error()))
		}
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, sessionID)
	}
	// Terminal credential: drop its key material. Best effort.
	if err := s.keyVault.Destroy(ctx, session.PrivateKeyHandle); err != nil {
		s.logger.Warn(ctx, "failed to destroy session key material",
			logger.String("session_id", sessionID))
	}

	s.publishAudit(ctx, models.AuditEvent{
		Type:        models.AuditSessionRevoked,
		SessionID:   sessionID,
		PrincipalID: session.PrincipalID,
		OccurredAt:  now,
	})

	s.logger.Info(ctx, "session credential revoked",
		logger.String("session_id", sessionID),
		logger.String("principal_id", session.PrincipalID))
	s.metrics.RecordRevocation(session.PrincipalID)

	return &dto.RevokeSessionResponse{
		SessionID: sessionID,
		Status:    constants.SessionStatusRevoked,
		RevokedAt: &now,
	}, nil
}

func (s *sessionAppServiceImpl) UpdateSpendLimits(ctx context.Context, sessionID string, req *dto.UpdateSpendLimitsRequest) (*dto.SessionView, error) {
	limits := models.SpendLimits{
		PerTransactionMax: req.PerTransactionMax,
		DailyMax:          req.DailyMax,
		CurrencyUnit:      req.CurrencyUnit,
	}
	if limits.CurrencyUnit == "" {
		limits.CurrencyUnit = constants.DefaultCurrencyUnit
	}
	if !limits.Validate() {
		return nil, errors.ErrInvalidSpendLimits(
			fmt.Sprintf("require 0 <= per_transaction_max (%d) <= daily_max (%d)",
				limits.PerTransactionMax, limits.DailyMax))
	}

	session, err := s.loadWithLazyExpiry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != constants.SessionStatusActive {
		return nil, errors.ErrCredentialNotActive(sessionID, session.Status)
	}

	// A daily cap below what was already spent is allowed: it blocks further
	// spend without retroactively invalidating the credential.
	if err := s.repo.UpdateSpendLimits(ctx, sessionID, limits); err != nil {
		s.logger.Error(ctx, "failed to update spend limits", err,
			logger.String("session_id", sessionID))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to update spend limits")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, sessionID)
	}

	s.publishAudit(ctx, models.AuditEvent{
		Type:        models.AuditLimitsUpdated,
		SessionID:   sessionID,
		PrincipalID: session.PrincipalID,
		Detail: map[string]interface{}{
			"per_transaction_max": limits.PerTransactionMax,
			"daily_max":           limits.DailyMax,
		},
		OccurredAt: time.Now().UTC(),
	})

	session.SpendLimits = limits
	view := dto.NewSessionView(session)
	return &view, nil
}

// loadWithLazyExpiry reads a credential from the store and persists the
// active→expired transition when the expiry instant has passed. The
// transition is idempotent: a concurrent reader doing the same persists the
// same terminal state.
func (s *sessionAppServiceImpl) loadWithLazyExpiry(ctx context.Context, sessionID string) (*models.SessionCredential, error) {
	if sessionID == "" {
		return nil, errors.ErrInvalidRequest("session_id is required")
	}

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		s.logger.Error(ctx, "failed to load session", err,
			logger.String("session_id", sessionID))
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to load session")
	}

	if session.Status == constants.SessionStatusActive && session.IsExpired(time.Now().UTC()) {
		s.persistExpiry(ctx, session)
	}
	return session, nil
}

func (s *sessionAppServiceImpl) persistExpiry(ctx context.Context, session *models.SessionCredential) {
	if err := s.repo.UpdateStatus(ctx, session.ID, constants.SessionStatusExpired); err != nil {
		// The derived status still governs authorization; only the
		// persisted record is stale.
		s.logger.Warn(ctx, "failed to persist lazy expiry",
			logger.String("session_id", session.ID))
	} else {
		s.publishAudit(ctx, models.AuditEvent{
			Type:        models.AuditSessionExpired,
			SessionID:   session.ID,
			PrincipalID: session.PrincipalID,
			OccurredAt:  time.Now().UTC(),
		})
	}
	session.Status = constants.SessionStatusExpired
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, session.ID)
	}
}

func (s *sessionAppServiceImpl) publishAudit(ctx context.Context, event models.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.Warn(ctx, "failed to publish audit event",
			logger.String("event_type", string(event.Type)),
			logger.String("session_id", event.SessionID))
	}
}

func resolveSpendLimits(req *dto.IssueSessionRequest) (models.SpendLimits, error) {
	limits := models.SpendLimits{
		PerTransactionMax: constants.DefaultPerTransactionMax,
		DailyMax:          constants.DefaultDailyMax,
		CurrencyUnit:      constants.DefaultCurrencyUnit,
	}
	if req.PerTransactionMax != nil {
		limits.PerTransactionMax = *req.PerTransactionMax
	}
	if req.DailyMax != nil {
		limits.DailyMax = *req.DailyMax
	}
	if req.CurrencyUnit != "" {
		limits.CurrencyUnit = req.CurrencyUnit
	}
	if !limits.Validate() {
		return models.SpendLimits{}, errors.ErrInvalidSpendLimits(
			fmt.Sprintf("require 0 <= per_transaction_max (%d) <= daily_max (%d)",
				limits.PerTransactionMax, limits.DailyMax))
	}
	return limits, nil
}

func resolveExpiry(req *dto.IssueSessionRequest, now time.Time) (time.Time, error) {
	var ttl time.Duration
	switch {
	case req.ExpiresInSeconds != 0 && req.ExpirationBlocks != 0:
		return time.Time{}, errors.ErrInvalidRequest("specify either expires_in_seconds or expiration_blocks, not both")
	case req.ExpiresInSeconds != 0:
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	case req.ExpirationBlocks != 0:
		ttl = time.Duration(req.ExpirationBlocks) * constants.BlockInterval
	default:
		ttl = constants.SessionDefaultTTL
	}
	if ttl <= 0 {
		return time.Time{}, errors.ErrInvalidRequest("expiration horizon must resolve to a future instant")
	}
	if ttl > constants.SessionMaxTTL {
		return time.Time{}, errors.ErrInvalidRequest("expiration horizon exceeds the maximum session lifetime")
	}
	return now.Add(ttl), nil
}
