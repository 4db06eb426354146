// Package memory provides a mutex-guarded in-process SessionRepository for
// single-process deployments and tests. The check-and-record logic of
// IncrementUsage runs inside the critical section, so the daily-cap guarantee
// holds without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
)

type sessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionCredential
}

// NewSessionRepository returns an empty in-memory session store.
func NewSessionRepository() repository.SessionRepository {
	return &sessionRepo{sessions: make(map[string]*models.SessionCredential)}
}

func (r *sessionRepo) Save(_ context.Context, session *models.SessionCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := cloneSession(session)
	r.sessions[session.ID] = clone
	return nil
}

func (r *sessionRepo) FindByID(_ context.Context, id string) (*models.SessionCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrUnknownCredential(id)
	}
	return cloneSession(session), nil
}

func (r *sessionRepo) FindByPrincipal(_ context.Context, principalID string) ([]*models.SessionCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.SessionCredential
	for _, session := range r.sessions {
		if session.PrincipalID == principalID {
			result = append(result, cloneSession(session))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *sessionRepo) UpdateStatus(_ context.Context, id string, status constants.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return errors.ErrUnknownCredential(id)
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *sessionRepo) UpdateSpendLimits(_ context.Context, id string, limits models.SpendLimits) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return errors.ErrUnknownCredential(id)
	}
	session.SpendLimits = limits
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *sessionRepo) IncrementUsage(_ context.Context, id string, amount int64, now time.Time) (repository.IncrementOutcome, *models.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return repository.IncrementNotFound, nil, nil
	}
	// Check and record as one unit under the lock.
	if session.Usage.CumulativeSpent+amount > session.SpendLimits.DailyMax {
		return repository.IncrementExceedsDaily, nil, nil
	}
	session.Usage.CumulativeSpent += amount
	session.Usage.TransactionCount++
	usedAt := now
	session.Usage.LastUsedAt = &usedAt
	session.UpdatedAt = now
	snapshot := session.Usage
	return repository.IncrementApplied, &snapshot, nil
}

func cloneSession(s *models.SessionCredential) *models.SessionCredential {
	clone := *s
	clone.Permissions = append([]constants.Permission(nil), s.Permissions...)
	if s.Usage.LastUsedAt != nil {
		usedAt := *s.Usage.LastUsedAt
		clone.Usage.LastUsedAt = &usedAt
	}
	return &clone
}
