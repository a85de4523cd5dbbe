package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements learner.Repository and
// learner.StatsRepository for PostgreSQL. The aggregate spans two tables:
// learner_progress holds the root and category_states the per-category
// staircase state; Save writes both in one transaction.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// GetByID returns a learner's progress with all category states loaded.
func (r *ProgressRepository) GetByID(ctx context.Context, id learner.ID) (*learner.Progress, error) {
	query := `
		SELECT learner_id, timezone, total_answered, total_correct,
			   current_streak, highest_streak, qualifying_sessions,
			   unlock_state, created_at, updated_at
		FROM learner_progress
		WHERE learner_id = $1
	`

	progress := &learner.Progress{
		Categories: make(map[learner.Category]learner.CategoryState),
	}
	var learnerID, unlockState string

	err := r.conn.QueryRow(ctx, query, id.String()).Scan(
		&learnerID,
		&progress.Timezone,
		&progress.TotalAnswered,
		&progress.TotalCorrect,
		&progress.CurrentStreak,
		&progress.HighestStreak,
		&progress.QualifyingSessions,
		&unlockState,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLearnerNotFound
		}
		return nil, fmt.Errorf("failed to get learner progress: %w", err)
	}
	progress.LearnerID = learner.ID(learnerID)
	progress.Unlock = learner.UnlockState(unlockState)

	if err := r.loadCategoryStates(ctx, progress); err != nil {
		return nil, err
	}

	return progress, nil
}

// GetOrCreate returns a learner's progress, inserting an empty record on
// the learner's first answer event. Concurrent first inserts resolve
// through ON CONFLICT DO NOTHING followed by a re-read.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, id learner.ID) (*learner.Progress, error) {
	progress, err := r.GetByID(ctx, id)
	if err == nil {
		return progress, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	fresh := learner.NewProgress(id)

	query := `
		INSERT INTO learner_progress (
			learner_id, timezone, total_answered, total_correct,
			current_streak, highest_streak, qualifying_sessions,
			unlock_state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (learner_id) DO NOTHING
	`

	_, err = r.conn.Exec(ctx, query,
		fresh.LearnerID.String(),
		fresh.Timezone,
		fresh.TotalAnswered,
		fresh.TotalCorrect,
		fresh.CurrentStreak,
		fresh.HighestStreak,
		fresh.QualifyingSessions,
		string(fresh.Unlock),
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create learner progress: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Save upserts the full progress aggregate, category states included.
func (r *ProgressRepository) Save(ctx context.Context, progress *learner.Progress) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return saveProgress(ctx, tx, progress)
	})
}

// saveProgress writes the aggregate root and its category states through
// the given executor. The UnitOfWork reuses it inside its transaction.
func saveProgress(ctx context.Context, db executor, progress *learner.Progress) error {
	rootQuery := `
		INSERT INTO learner_progress (
			learner_id, timezone, total_answered, total_correct,
			current_streak, highest_streak, qualifying_sessions,
			unlock_state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (learner_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			total_answered = EXCLUDED.total_answered,
			total_correct = EXCLUDED.total_correct,
			current_streak = EXCLUDED.current_streak,
			highest_streak = EXCLUDED.highest_streak,
			qualifying_sessions = EXCLUDED.qualifying_sessions,
			unlock_state = EXCLUDED.unlock_state,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.Exec(ctx, rootQuery,
		progress.LearnerID.String(),
		progress.Timezone,
		progress.TotalAnswered,
		progress.TotalCorrect,
		progress.CurrentStreak,
		progress.HighestStreak,
		progress.QualifyingSessions,
		string(progress.Unlock),
		progress.CreatedAt,
		progress.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save learner progress: %w", err)
	}

	stateQuery := `
		INSERT INTO category_states (
			learner_id, category, tier, consecutive_correct,
			consecutive_incorrect, total_answered, total_correct, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (learner_id, category) DO UPDATE SET
			tier = EXCLUDED.tier,
			consecutive_correct = EXCLUDED.consecutive_correct,
			consecutive_incorrect = EXCLUDED.consecutive_incorrect,
			total_answered = EXCLUDED.total_answered,
			total_correct = EXCLUDED.total_correct,
			last_updated = EXCLUDED.last_updated
	`

	for category, state := range progress.Categories {
		_, err := db.Exec(ctx, stateQuery,
			progress.LearnerID.String(),
			category.String(),
			int(state.Tier),
			state.ConsecutiveCorrect,
			state.ConsecutiveIncorrect,
			state.TotalAnswered,
			state.TotalCorrect,
			state.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("failed to save category state %q: %w", category, err)
		}
	}

	return nil
}

// loadCategoryStates fills progress.Categories from category_states.
func (r *ProgressRepository) loadCategoryStates(ctx context.Context, progress *learner.Progress) error {
	query := `
		SELECT category, tier, consecutive_correct, consecutive_incorrect,
			   total_answered, total_correct, last_updated
		FROM category_states
		WHERE learner_id = $1
	`

	rows, err := r.conn.Query(ctx, query, progress.LearnerID.String())
	if err != nil {
		return fmt.Errorf("failed to query category states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var tier int
		var state learner.CategoryState

		err := rows.Scan(
			&category,
			&tier,
			&state.ConsecutiveCorrect,
			&state.ConsecutiveIncorrect,
			&state.TotalAnswered,
			&state.TotalCorrect,
			&state.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("failed to scan category state: %w", err)
		}

		state.Tier = learner.Tier(tier)
		progress.Categories[learner.Category(category)] = state
	}

	return rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Sub-Category Statistics
// ─────────────────────────────────────────────────────────────────────────────

// AddSubCategoryCounts adds answered/correct deltas into the stat row
// keyed by (learner, category, sub-category), creating it if needed.
// The additive upsert makes the fold commutative across sessions.
func (r *ProgressRepository) AddSubCategoryCounts(ctx context.Context, stat learner.SubCategoryStat) error {
	return addSubCategoryCounts(ctx, r.conn, stat)
}

func addSubCategoryCounts(ctx context.Context, db executor, stat learner.SubCategoryStat) error {
	query := `
		INSERT INTO subcategory_stats (
			learner_id, category, sub_category,
			total_answered, total_correct, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (learner_id, category, sub_category) DO UPDATE SET
			total_answered = subcategory_stats.total_answered + EXCLUDED.total_answered,
			total_correct = subcategory_stats.total_correct + EXCLUDED.total_correct,
			last_updated = EXCLUDED.last_updated
	`

	lastUpdated := stat.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	_, err := db.Exec(ctx, query,
		stat.LearnerID.String(),
		stat.Category.String(),
		stat.SubCategory.String(),
		stat.TotalAnswered,
		stat.TotalCorrect,
		lastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to add sub-category counts: %w", err)
	}

	return nil
}

// ListByLearner returns all sub-category stats for a learner, sorted by
// category then sub-category.
func (r *ProgressRepository) ListByLearner(ctx context.Context, id learner.ID) ([]learner.SubCategoryStat, error) {
	query := `
		SELECT learner_id, category, sub_category,
			   total_answered, total_correct, last_updated
		FROM subcategory_stats
		WHERE learner_id = $1
		ORDER BY category, sub_category
	`

	rows, err := r.conn.Query(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query sub-category stats: %w", err)
	}
	defer rows.Close()

	var stats []learner.SubCategoryStat
	for rows.Next() {
		var stat learner.SubCategoryStat
		var learnerID, category, subCategory string

		err := rows.Scan(
			&learnerID,
			&category,
			&subCategory,
			&stat.TotalAnswered,
			&stat.TotalCorrect,
			&stat.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sub-category stat: %w", err)
		}

		stat.LearnerID = learner.ID(learnerID)
		stat.Category = learner.Category(category)
		stat.SubCategory = learner.SubCategory(subCategory)
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
