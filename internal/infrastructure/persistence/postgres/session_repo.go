package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository for PostgreSQL. The
// answer log lives in session_answers, keyed by (session_id, position)
// so ordering survives round trips. Save rewrites only the tail of the
// log: answers are immutable once appended, so rows past the stored
// count are inserted and existing rows are left untouched.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (id, learner_id, mode, started_at, finished_at, abandoned, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID.String(),
		s.LearnerID.String(),
		s.Mode.String(),
		s.StartedAt,
		s.FinishedAt,
		s.Abandoned,
		s.IdleSince(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSessionAlreadyExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID returns a session by ID with its full answer log.
func (r *SessionRepository) GetByID(ctx context.Context, id session.ID) (*session.Session, error) {
	query := `
		SELECT id, learner_id, mode, started_at, finished_at, abandoned
		FROM sessions
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, id.String())
	s, err := r.scanSession(ctx, row)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Save persists the session's current answer log and finalization state.
func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return saveSession(ctx, tx, s)
	})
}

// saveSession updates the session head and appends the unstored tail of
// the answer log through the given executor. The UnitOfWork reuses it
// inside its transaction.
func saveSession(ctx context.Context, db executor, s *session.Session) error {
	headQuery := `
		UPDATE sessions SET
			finished_at = $1,
			abandoned = $2,
			last_activity_at = $3
		WHERE id = $4
	`

	result, err := db.Exec(ctx, headQuery,
		s.FinishedAt,
		s.Abandoned,
		s.IdleSince(),
		s.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}

	var stored int
	countQuery := `SELECT COUNT(*) FROM session_answers WHERE session_id = $1`
	if err := db.QueryRow(ctx, countQuery, s.ID.String()).Scan(&stored); err != nil {
		return fmt.Errorf("failed to count stored answers: %w", err)
	}

	answerQuery := `
		INSERT INTO session_answers (
			session_id, position, question_id, category, sub_category,
			is_correct, time_taken_ms, answered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for i := stored; i < len(s.Answers); i++ {
		answer := s.Answers[i]
		_, err := db.Exec(ctx, answerQuery,
			s.ID.String(),
			i,
			answer.QuestionID,
			answer.Category.String(),
			answer.SubCategory.String(),
			answer.IsCorrect,
			answer.TimeTaken.Milliseconds(),
			answer.AnsweredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append answer %d: %w", i, err)
		}
	}

	return nil
}

// GetActive returns the learner's newest unfinished session.
func (r *SessionRepository) GetActive(ctx context.Context, learnerID learner.ID) (*session.Session, error) {
	query := `
		SELECT id, learner_id, mode, started_at, finished_at, abandoned
		FROM sessions
		WHERE learner_id = $1 AND finished_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := r.conn.QueryRow(ctx, query, learnerID.String())
	return r.scanSession(ctx, row)
}

// ListFinishedByLearner returns finalized sessions, newest first.
func (r *SessionRepository) ListFinishedByLearner(ctx context.Context, learnerID learner.ID, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, learner_id, mode, started_at, finished_at, abandoned
		FROM sessions
		WHERE learner_id = $1 AND finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, learnerID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query finished sessions: %w", err)
	}
	defer rows.Close()

	heads, err := scanSessionHeads(rows)
	if err != nil {
		return nil, err
	}

	return r.attachAnswers(ctx, heads)
}

// FindIdleUnfinished returns unfinished sessions whose last activity is
// older than the cutoff.
func (r *SessionRepository) FindIdleUnfinished(ctx context.Context, cutoff time.Time) ([]*session.Session, error) {
	query := `
		SELECT id, learner_id, mode, started_at, finished_at, abandoned
		FROM sessions
		WHERE finished_at IS NULL AND last_activity_at < $1
		ORDER BY last_activity_at
	`

	rows, err := r.conn.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	heads, err := scanSessionHeads(rows)
	if err != nil {
		return nil, err
	}

	return r.attachAnswers(ctx, heads)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning helpers
// ─────────────────────────────────────────────────────────────────────────────

// sessionHead carries the sessions-table columns before the answer log
// is attached.
type sessionHead struct {
	id         string
	learnerID  string
	mode       string
	startedAt  time.Time
	finishedAt *time.Time
	abandoned  bool
}

func scanHead(row pgx.Row) (*sessionHead, error) {
	var h sessionHead
	err := row.Scan(&h.id, &h.learnerID, &h.mode, &h.startedAt, &h.finishedAt, &h.abandoned)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &h, nil
}

func scanSessionHeads(rows pgx.Rows) ([]*sessionHead, error) {
	var heads []*sessionHead
	for rows.Next() {
		h, err := scanHead(rows)
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

func (h *sessionHead) restore(answers []session.AnswerEvent) *session.Session {
	return session.Restore(
		session.ID(h.id),
		learner.ID(h.learnerID),
		session.Mode(h.mode),
		h.startedAt,
		answers,
		h.finishedAt,
		h.abandoned,
	)
}

func (r *SessionRepository) scanSession(ctx context.Context, row pgx.Row) (*session.Session, error) {
	h, err := scanHead(row)
	if err != nil {
		return nil, err
	}

	answers, err := r.loadAnswers(ctx, h.id)
	if err != nil {
		return nil, err
	}

	return h.restore(answers), nil
}

func (r *SessionRepository) attachAnswers(ctx context.Context, heads []*sessionHead) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(heads))
	for _, h := range heads {
		answers, err := r.loadAnswers(ctx, h.id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, h.restore(answers))
	}
	return sessions, nil
}

func (r *SessionRepository) loadAnswers(ctx context.Context, sessionID string) ([]session.AnswerEvent, error) {
	query := `
		SELECT question_id, category, sub_category, is_correct, time_taken_ms, answered_at
		FROM session_answers
		WHERE session_id = $1
		ORDER BY position
	`

	rows, err := r.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session answers: %w", err)
	}
	defer rows.Close()

	var answers []session.AnswerEvent
	for rows.Next() {
		var category, subCategory string
		var timeTakenMs int64
		var answer session.AnswerEvent

		err := rows.Scan(
			&answer.QuestionID,
			&category,
			&subCategory,
			&answer.IsCorrect,
			&timeTakenMs,
			&answer.AnsweredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session answer: %w", err)
		}

		answer.Category = learner.Category(category)
		answer.SubCategory = learner.SubCategory(subCategory)
		answer.TimeTaken = time.Duration(timeTakenMs) * time.Millisecond
		answers = append(answers, answer)
	}

	return answers, rows.Err()
}
