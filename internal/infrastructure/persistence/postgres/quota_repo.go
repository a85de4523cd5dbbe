package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuotaRepository implements entitlement.QuotaRepository for PostgreSQL.
// A counter row exists only once the learner has consumed something on
// that day; GetOrCreate returns a zeroed in-memory counter for a missing
// row instead of inserting, so idle days leave no trace.
type QuotaRepository struct {
	conn *Connection
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(conn *Connection) *QuotaRepository {
	return &QuotaRepository{conn: conn}
}

// GetOrCreate returns the counter for a learner and day.
func (r *QuotaRepository) GetOrCreate(ctx context.Context, learnerID learner.ID, day entitlement.DayKey) (*entitlement.QuotaCounter, error) {
	query := `
		SELECT consumed, updated_at
		FROM quota_counters
		WHERE learner_id = $1 AND day = $2
	`

	counter := entitlement.NewQuotaCounter(learnerID, day)

	err := r.conn.QueryRow(ctx, query, learnerID.String(), string(day)).Scan(
		&counter.Consumed,
		&counter.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return counter, nil
		}
		return nil, fmt.Errorf("failed to get quota counter: %w", err)
	}

	return counter, nil
}

// Save upserts the counter after a successful consume.
func (r *QuotaRepository) Save(ctx context.Context, counter *entitlement.QuotaCounter) error {
	return saveQuotaCounter(ctx, r.conn, counter)
}

func saveQuotaCounter(ctx context.Context, db executor, counter *entitlement.QuotaCounter) error {
	query := `
		INSERT INTO quota_counters (learner_id, day, consumed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (learner_id, day) DO UPDATE SET
			consumed = EXCLUDED.consumed,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := counter.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := db.Exec(ctx, query,
		counter.LearnerID.String(),
		string(counter.Day),
		counter.Consumed,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save quota counter: %w", err)
	}

	return nil
}
