package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork implements the application layer's atomic-commit port for
// PostgreSQL. It runs the same write statements the repositories use,
// but inside a single transaction, so the aggregates touched by one
// command commit or roll back together.
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a new UnitOfWork on the shared connection pool.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// SaveAnswerOutcome commits one accepted answer: the charged quota
// counter, the updated progress, and the extended session answer log.
func (u *UnitOfWork) SaveAnswerOutcome(
	ctx context.Context,
	s *session.Session,
	progress *learner.Progress,
	counter *entitlement.QuotaCounter,
) error {
	return u.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := saveQuotaCounter(ctx, tx, counter); err != nil {
			return err
		}
		if err := saveProgress(ctx, tx, progress); err != nil {
			return err
		}
		return saveSession(ctx, tx, s)
	})
}

// SaveFinalization commits a finished session together with the folded
// progress and the session's additive sub-category deltas. Rolling back
// as one unit keeps the finish retryable: a failure leaves the session
// unfinished, so the next attempt folds again from scratch.
func (u *UnitOfWork) SaveFinalization(
	ctx context.Context,
	s *session.Session,
	progress *learner.Progress,
	stats []learner.SubCategoryStat,
) error {
	return u.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := saveSession(ctx, tx, s); err != nil {
			return err
		}
		if err := saveProgress(ctx, tx, progress); err != nil {
			return err
		}
		for _, stat := range stats {
			if err := addSubCategoryCounts(ctx, tx, stat); err != nil {
				return err
			}
		}
		return nil
	})
}
