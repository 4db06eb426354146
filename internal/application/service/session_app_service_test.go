package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitizen-labs/sessiond/internal/application/dto"
	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	domainService "github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/persistence/memory"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

func newSessionService(repo repository.SessionRepository, vault *fakeKeyVault, audit domainService.AuditPublisher) SessionAppService {
	return NewSessionAppService(
		repo, domainService.NewPermissionService(), vault,
		nil, nil, audit, nil, nil, logger.NewNoop())
}

func issueRequest() *dto.IssueSessionRequest {
	return &dto.IssueSessionRequest{
		PrincipalID: "principal_1",
		Permissions: []constants.Permission{constants.PermissionExecuteTransfer},
	}
}

func TestIssueDefaults(t *testing.T) {
	repo := memory.NewSessionRepository()
	vault := &fakeKeyVault{}
	svc := newSessionService(repo, vault, nil)

	before := time.Now().UTC()
	resp, err := svc.Issue(context.Background(), issueRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.SessionID, "session_"))
	assert.Equal(t, "principal_1", resp.PrincipalID)
	assert.Equal(t, constants.SessionStatusActive, resp.Status)
	assert.Equal(t, constants.DefaultPerTransactionMax, resp.SpendLimits.PerTransactionMax)
	assert.Equal(t, constants.DefaultDailyMax, resp.SpendLimits.DailyMax)
	assert.Equal(t, constants.DefaultCurrencyUnit, resp.SpendLimits.CurrencyUnit)
	assert.Zero(t, resp.Usage.CumulativeSpent)
	assert.NotEmpty(t, resp.PublicKey)
	assert.NotEmpty(t, resp.PrivateKeyHandle)

	wantExpiry := before.Add(constants.SessionDefaultTTL)
	assert.WithinDuration(t, wantExpiry, resp.ExpiresAt, 5*time.Second)
}

func TestIssueValidation(t *testing.T) {
	repo := memory.NewSessionRepository()
	vault := &fakeKeyVault{}
	svc := newSessionService(repo, vault, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*dto.IssueSessionRequest)
		wantCode constants.ErrorCode
	}{
		{"missing principal", func(r *dto.IssueSessionRequest) { r.PrincipalID = "" }, constants.ErrCodeInvalidRequest},
		{"empty permissions", func(r *dto.IssueSessionRequest) { r.Permissions = nil }, constants.ErrCodeInvalidPermissionSet},
		{"unknown permission", func(r *dto.IssueSessionRequest) {
			r.Permissions = []constants.Permission{"execute-anything"}
		}, constants.ErrCodeInvalidPermissionSet},
		{"per-tx above daily", func(r *dto.IssueSessionRequest) {
			perTx, daily := int64(500), int64(100)
			r.PerTransactionMax, r.DailyMax = &perTx, &daily
		}, constants.ErrCodeInvalidSpendLimits},
		{"negative per-tx", func(r *dto.IssueSessionRequest) {
			perTx := int64(-1)
			r.PerTransactionMax = &perTx
		}, constants.ErrCodeInvalidSpendLimits},
		{"both horizons", func(r *dto.IssueSessionRequest) {
			r.ExpiresInSeconds, r.ExpirationBlocks = 60, 10
		}, constants.ErrCodeInvalidRequest},
		{"negative horizon", func(r *dto.IssueSessionRequest) { r.ExpiresInSeconds = -60 }, constants.ErrCodeInvalidRequest},
		{"horizon beyond max", func(r *dto.IssueSessionRequest) {
			r.ExpiresInSeconds = int64((constants.SessionMaxTTL + time.Hour) / time.Second)
		}, constants.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := issueRequest()
			tt.mutate(req)
			_, err := svc.Issue(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}

	// No keypair survives a failed issuance.
	assert.Zero(t, len(vault.destroyedHandles()))
}

func TestIssueBlockHorizon(t *testing.T) {
	repo := memory.NewSessionRepository()
	svc := newSessionService(repo, &fakeKeyVault{}, nil)

	req := issueRequest()
	req.ExpirationBlocks = 20
	before := time.Now().UTC()
	resp, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	// 20 blocks at the fixed block interval.
	wantExpiry := before.Add(20 * constants.BlockInterval)
	assert.WithinDuration(t, wantExpiry, resp.ExpiresAt, 5*time.Second)
}

func TestLookupRedactsAndLazilyExpires(t *testing.T) {
	repo := memory.NewSessionRepository()
	audit := &recordingAudit{}
	svc := newSessionService(repo, &fakeKeyVault{}, audit)
	ctx := context.Background()

	resp, err := svc.Issue(ctx, issueRequest())
	require.NoError(t, err)

	view, err := svc.Lookup(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusActive, view.Status)

	// Force the credential past its expiry and look it up again.
	expired := models.NewSessionCredential(
		"session_stale", "principal_1", "0xabc", "sessions/session_stale",
		[]constants.Permission{constants.PermissionExecuteTransfer},
		time.Now().UTC().Add(-time.Minute),
		models.SpendLimits{PerTransactionMax: 100, DailyMax: 1000, CurrencyUnit: "STRK"},
	)
	require.NoError(t, repo.Save(ctx, expired))

	view, err = svc.Lookup(ctx, "session_stale")
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusExpired, view.Status)

	// The transition persisted: the store now reports expired too.
	stored, err := repo.FindByID(ctx, "session_stale")
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusExpired, stored.Status)
	assert.Len(t, audit.byType(models.AuditSessionExpired), 1)
}

func TestLookupUnknown(t *testing.T) {
	svc := newSessionService(memory.NewSessionRepository(), &fakeKeyVault{}, nil)
	_, err := svc.Lookup(context.Background(), "session_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListForPrincipal(t *testing.T) {
	repo := memory.NewSessionRepository()
	svc := newSessionService(repo, &fakeKeyVault{}, nil)
	ctx := context.Background()

	first, err := svc.Issue(ctx, issueRequest())
	require.NoError(t, err)
	_, err = svc.Issue(ctx, issueRequest())
	require.NoError(t, err)

	views, err := svc.ListForPrincipal(ctx, "principal_1")
	require.NoError(t, err)
	assert.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, "principal_1", v.PrincipalID)
	}

	_, err = svc.Revoke(ctx, first.SessionID)
	require.NoError(t, err)
	views, err = svc.ListForPrincipal(ctx, "principal_1")
	require.NoError(t, err)
	statuses := map[constants.SessionStatus]int{}
	for _, v := range views {
		statuses[v.Status]++
	}
	assert.Equal(t, 1, statuses[constants.SessionStatusActive])
	assert.Equal(t, 1, statuses[constants.SessionStatusRevoked])
}

func TestRevokeIsIdempotent(t *testing.T) {
	repo := memory.NewSessionRepository()
	vault := &fakeKeyVault{}
	audit := &recordingAudit{}
	svc := newSessionService(repo, vault, audit)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, issueRequest())
	require.NoError(t, err)

	resp, err := svc.Revoke(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusRevoked, resp.Status)
	require.NotNil(t, resp.RevokedAt)
	assert.Contains(t, vault.destroyedHandles(), issued.PrivateKeyHandle)

	// Second revocation is a no-op reporting the terminal status.
	again, err := svc.Revoke(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusRevoked, again.Status)
	assert.Nil(t, again.RevokedAt)
	assert.Len(t, audit.byType(models.AuditSessionRevoked), 1)
}

func TestRevokeExpiredReportsExpired(t *testing.T) {
	repo := memory.NewSessionRepository()
	svc := newSessionService(repo, &fakeKeyVault{}, nil)
	ctx := context.Background()

	expired := models.NewSessionCredential(
		"session_exp", "principal_1", "0xabc", "sessions/session_exp",
		[]constants.Permission{constants.PermissionExecuteTransfer},
		time.Now().UTC().Add(-time.Minute),
		models.SpendLimits{PerTransactionMax: 100, DailyMax: 1000, CurrencyUnit: "STRK"},
	)
	require.NoError(t, repo.Save(ctx, expired))

	resp, err := svc.Revoke(ctx, "session_exp")
	require.NoError(t, err)
	// Expiry won the race; revocation does not rewrite the terminal state.
	assert.Equal(t, constants.SessionStatusExpired, resp.Status)
}

func TestUpdateSpendLimits(t *testing.T) {
	repo := memory.NewSessionRepository()
	svc := newSessionService(repo, &fakeKeyVault{}, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, issueRequest())
	require.NoError(t, err)

	view, err := svc.UpdateSpendLimits(ctx, issued.SessionID, &dto.UpdateSpendLimitsRequest{
		PerTransactionMax: 10,
		DailyMax:          50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), view.SpendLimits.PerTransactionMax)
	assert.Equal(t, int64(50), view.SpendLimits.DailyMax)
	assert.Equal(t, constants.DefaultCurrencyUnit, view.SpendLimits.CurrencyUnit)

	_, err = svc.UpdateSpendLimits(ctx, issued.SessionID, &dto.UpdateSpendLimitsRequest{
		PerTransactionMax: 100,
		DailyMax:          50,
	})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeInvalidSpendLimits, errors.CodeOf(err))

	_, err = svc.Revoke(ctx, issued.SessionID)
	require.NoError(t, err)
	_, err = svc.UpdateSpendLimits(ctx, issued.SessionID, &dto.UpdateSpendLimitsRequest{
		PerTransactionMax: 10,
		DailyMax:          50,
	})
	require.Error(t, err)
	assert.Equal(t, constants.ErrCodeCredentialNotActive, errors.CodeOf(err))
}

func TestUpdateSpendLimitsBelowSpentIsAllowed(t *testing.T) {
	repo := memory.NewSessionRepository()
	svc := newSessionService(repo, &fakeKeyVault{}, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, issueRequest())
	require.NoError(t, err)
	outcome, _, err := repo.IncrementUsage(ctx, issued.SessionID, 80, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, repository.IncrementApplied, outcome)

	// Lowering the daily cap below the 80 already spent blocks further spend
	// without invalidating the credential.
	view, err := svc.UpdateSpendLimits(ctx, issued.SessionID, &dto.UpdateSpendLimitsRequest{
		PerTransactionMax: 10,
		DailyMax:          50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), view.SpendLimits.DailyMax)
	assert.Equal(t, constants.SessionStatusActive, view.Status)
}
