package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// Schema (migrations live in deployments; kept here for reference):
//
//	CREATE TABLE agent_sessions (
//	    id                  TEXT PRIMARY KEY,
//	    principal_id        TEXT NOT NULL,
//	    public_key          TEXT NOT NULL,
//	    private_key_handle  TEXT NOT NULL,
//	    permissions         TEXT[] NOT NULL,
//	    expires_at          TIMESTAMPTZ NOT NULL,
//	    per_transaction_max BIGINT NOT NULL,
//	    daily_max           BIGINT NOT NULL,
//	    currency_unit       TEXT NOT NULL,
//	    cumulative_spent    BIGINT NOT NULL DEFAULT 0,
//	    transaction_count   BIGINT NOT NULL DEFAULT 0,
//	    last_used_at        TIMESTAMPTZ,
//	    status              TEXT NOT NULL,
//	    created_at          TIMESTAMPTZ NOT NULL,
//	    updated_at          TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_agent_sessions_principal ON agent_sessions (principal_id, created_at DESC);

// SessionRepositoryImpl implements repository.SessionRepository on PostgreSQL.
type SessionRepositoryImpl struct {
	db     *DBConnection
	logger logger.Logger
}

// NewSessionRepository creates the PostgreSQL session repository.
func NewSessionRepository(db *DBConnection, log logger.Logger) repository.SessionRepository {
	return &SessionRepositoryImpl{db: db, logger: log.WithComponent("SessionRepository")}
}

const sessionColumns = `
	id, principal_id, public_key, private_key_handle, permissions,
	expires_at, per_transaction_max, daily_max, currency_unit,
	cumulative_spent, transaction_count, last_used_at, status,
	created_at, updated_at`

func (r *SessionRepositoryImpl) Save(ctx context.Context, session *models.SessionCredential) error {
	query := `
		INSERT INTO agent_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	permissions := make([]string, len(session.Permissions))
	for i, p := range session.Permissions {
		permissions[i] = string(p)
	}

	_, err := r.db.Pool().Exec(ctx, query,
		session.ID,
		session.PrincipalID,
		session.PublicKey,
		session.PrivateKeyHandle,
		permissions,
		session.ExpiresAt,
		session.SpendLimits.PerTransactionMax,
		session.SpendLimits.DailyMax,
		session.SpendLimits.CurrencyUnit,
		session.Usage.CumulativeSpent,
		session.Usage.TransactionCount,
		session.Usage.LastUsedAt,
		session.Status,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		r.logger.Error(ctx, "failed to insert session", err,
			logger.String("session_id", session.ID))
		return err
	}
	return nil
}

func (r *SessionRepositoryImpl) FindByID(ctx context.Context, id string) (*models.SessionCredential, error) {
	query := `SELECT ` + sessionColumns + ` FROM agent_sessions WHERE id = $1`
	row := r.db.Pool().QueryRow(ctx, query, id)
	session, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrUnknownCredential(id)
		}
		r.logger.Error(ctx, "failed to query session", err,
			logger.String("session_id", id))
		return nil, err
	}
	return session, nil
}

func (r *SessionRepositoryImpl) FindByPrincipal(ctx context.Context, principalID string) ([]*models.SessionCredential, error) {
	query := `SELECT ` + sessionColumns + `
		FROM agent_sessions
		WHERE principal_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, principalID)
	if err != nil {
		r.logger.Error(ctx, "failed to query sessions by principal", err,
			logger.String("principal_id", principalID))
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.SessionCredential
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepositoryImpl) UpdateStatus(ctx context.Context, id string, status constants.SessionStatus) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE agent_sessions SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		r.logger.Error(ctx, "failed to update session status", err,
			logger.String("session_id", id),
			logger.String("status", string(status)))
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrUnknownCredential(id)
	}
	return nil
}

func (r *SessionRepositoryImpl) UpdateSpendLimits(ctx context.Context, id string, limits models.SpendLimits) error {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE agent_sessions
		SET per_transaction_max = $2, daily_max = $3, currency_unit = $4, updated_at = NOW()
		WHERE id = $1`,
		id, limits.PerTransactionMax, limits.DailyMax, limits.CurrencyUnit)
	if err != nil {
		r.logger.Error(ctx, "failed to update spend limits", err,
			logger.String("session_id", id))
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrUnknownCredential(id)
	}
	return nil
}

// IncrementUsage folds the daily-cap check and the usage record into one
// conditional UPDATE, so concurrent callers across processes cannot both
// charge past the cap on a stale read.
func (r *SessionRepositoryImpl) IncrementUsage(ctx context.Context, id string, amount int64, now time.Time) (repository.IncrementOutcome, *models.Usage, error) {
	query := `
		UPDATE agent_sessions
		SET cumulative_spent  = cumulative_spent + $2,
		    transaction_count = transaction_count + 1,
		    last_used_at      = $3,
		    updated_at        = NOW()
		WHERE id = $1
		  AND cumulative_spent + $2 <= daily_max
		RETURNING cumulative_spent, transaction_count, last_used_at`

	var usage models.Usage
	err := r.db.Pool().QueryRow(ctx, query, id, amount, now).
		Scan(&usage.CumulativeSpent, &usage.TransactionCount, &usage.LastUsedAt)
	if err == nil {
		return repository.IncrementApplied, &usage, nil
	}
	if err != pgx.ErrNoRows {
		r.logger.Error(ctx, "failed to increment usage", err,
			logger.String("session_id", id),
			logger.Int64("amount", amount))
		return repository.IncrementNotFound, nil, err
	}

	// No row matched: distinguish a missing credential from a cap refusal.
	var exists bool
	if err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_sessions WHERE id = $1)`, id).
		Scan(&exists); err != nil {
		return repository.IncrementNotFound, nil, err
	}
	if !exists {
		return repository.IncrementNotFound, nil, nil
	}
	return repository.IncrementExceedsDaily, nil, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.SessionCredential, error) {
	var (
		session     models.SessionCredential
		permissions []string
	)
	err := row.Scan(
		&session.ID,
		&session.PrincipalID,
		&session.PublicKey,
		&session.PrivateKeyHandle,
		&permissions,
		&session.ExpiresAt,
		&session.SpendLimits.PerTransactionMax,
		&session.SpendLimits.DailyMax,
		&session.SpendLimits.CurrencyUnit,
		&session.Usage.CumulativeSpent,
		&session.Usage.TransactionCount,
		&session.Usage.LastUsedAt,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Permissions = make([]constants.Permission, len(permissions))
	for i, p := range permissions {
		session.Permissions[i] = constants.Permission(p)
	}
	return &session, nil
}
