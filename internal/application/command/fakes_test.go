package command

import (
	"context"
	"sync"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// In-memory repository fakes shared by the command handler tests. Reads
// return copies, so a handler's in-memory mutations become visible only
// through an explicit save, the same way a real store behaves.

func cloneProgress(p *learner.Progress) *learner.Progress {
	cp := *p
	cp.Categories = make(map[learner.Category]learner.CategoryState, len(p.Categories))
	for category, state := range p.Categories {
		cp.Categories[category] = state
	}
	return &cp
}

func cloneSession(s *session.Session) *session.Session {
	answers := make([]session.AnswerEvent, len(s.Answers))
	copy(answers, s.Answers)
	var finishedAt *time.Time
	if s.FinishedAt != nil {
		at := *s.FinishedAt
		finishedAt = &at
	}
	return session.Restore(s.ID, s.LearnerID, s.Mode, s.StartedAt, answers, finishedAt, s.Abandoned)
}

func cloneCounter(c *entitlement.QuotaCounter) *entitlement.QuotaCounter {
	cp := *c
	return &cp
}

type fakeLearnerRepo struct {
	mu       sync.Mutex
	progress map[learner.ID]*learner.Progress
}

func newFakeLearnerRepo() *fakeLearnerRepo {
	return &fakeLearnerRepo{progress: make(map[learner.ID]*learner.Progress)}
}

func (r *fakeLearnerRepo) GetByID(_ context.Context, id learner.ID) (*learner.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[id]
	if !ok {
		return nil, shared.ErrLearnerNotFound
	}
	return cloneProgress(p), nil
}

func (r *fakeLearnerRepo) GetOrCreate(_ context.Context, id learner.ID) (*learner.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.progress[id]; ok {
		return cloneProgress(p), nil
	}
	p := learner.NewProgress(id)
	r.progress[id] = cloneProgress(p)
	return p, nil
}

func (r *fakeLearnerRepo) Save(_ context.Context, p *learner.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[p.LearnerID] = cloneProgress(p)
	return nil
}

type statKey struct {
	learnerID   learner.ID
	category    learner.Category
	subCategory learner.SubCategory
}

type fakeStatsRepo struct {
	mu    sync.Mutex
	stats map[statKey]learner.SubCategoryStat
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{stats: make(map[statKey]learner.SubCategoryStat)}
}

func (r *fakeStatsRepo) AddSubCategoryCounts(_ context.Context, stat learner.SubCategoryStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := statKey{stat.LearnerID, stat.Category, stat.SubCategory}
	existing := r.stats[key]
	existing.LearnerID = stat.LearnerID
	existing.Category = stat.Category
	existing.SubCategory = stat.SubCategory
	existing.TotalAnswered += stat.TotalAnswered
	existing.TotalCorrect += stat.TotalCorrect
	existing.LastUpdated = stat.LastUpdated
	r.stats[key] = existing
	return nil
}

func (r *fakeStatsRepo) ListByLearner(_ context.Context, id learner.ID) ([]learner.SubCategoryStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []learner.SubCategoryStat
	for key, stat := range r.stats {
		if key.learnerID == id {
			out = append(out, stat)
		}
	}
	return out, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[session.ID]*session.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[session.ID]*session.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id session.ID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) Save(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *fakeSessionRepo) GetActive(_ context.Context, learnerID learner.ID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *session.Session
	for _, s := range r.sessions {
		if s.LearnerID != learnerID || s.Finished() {
			continue
		}
		if newest == nil || s.StartedAt.After(newest.StartedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, shared.ErrSessionNotFound
	}
	return cloneSession(newest), nil
}

func (r *fakeSessionRepo) ListFinishedByLearner(_ context.Context, learnerID learner.ID, limit int) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.LearnerID == learnerID && s.Finished() {
			out = append(out, cloneSession(s))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) FindIdleUnfinished(_ context.Context, cutoff time.Time) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if !s.Finished() && s.IdleSince().Before(cutoff) {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

type fakeQuotaRepo struct {
	mu       sync.Mutex
	counters map[string]*entitlement.QuotaCounter
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{counters: make(map[string]*entitlement.QuotaCounter)}
}

func quotaKey(learnerID learner.ID, day entitlement.DayKey) string {
	return learnerID.String() + "/" + string(day)
}

func (r *fakeQuotaRepo) GetOrCreate(_ context.Context, learnerID learner.ID, day entitlement.DayKey) (*entitlement.QuotaCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := quotaKey(learnerID, day)
	if c, ok := r.counters[key]; ok {
		return cloneCounter(c), nil
	}
	c := entitlement.NewQuotaCounter(learnerID, day)
	r.counters[key] = cloneCounter(c)
	return c, nil
}

func (r *fakeQuotaRepo) Save(_ context.Context, counter *entitlement.QuotaCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[quotaKey(counter.LearnerID, counter.Day)] = cloneCounter(counter)
	return nil
}

// fakeUnitOfWork commits to the backing fakes all-or-nothing. Setting
// failures makes the next n calls return failErr without writing.
type fakeUnitOfWork struct {
	mu       sync.Mutex
	learners *fakeLearnerRepo
	sessions *fakeSessionRepo
	quotas   *fakeQuotaRepo
	stats    *fakeStatsRepo
	failures int
	failErr  error
}

func (u *fakeUnitOfWork) nextErr() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failures > 0 {
		u.failures--
		return u.failErr
	}
	return nil
}

func (u *fakeUnitOfWork) SaveAnswerOutcome(ctx context.Context, s *session.Session, progress *learner.Progress, counter *entitlement.QuotaCounter) error {
	if err := u.nextErr(); err != nil {
		return err
	}
	if err := u.quotas.Save(ctx, counter); err != nil {
		return err
	}
	if err := u.learners.Save(ctx, progress); err != nil {
		return err
	}
	return u.sessions.Save(ctx, s)
}

func (u *fakeUnitOfWork) SaveFinalization(ctx context.Context, s *session.Session, progress *learner.Progress, stats []learner.SubCategoryStat) error {
	if err := u.nextErr(); err != nil {
		return err
	}
	if err := u.sessions.Save(ctx, s); err != nil {
		return err
	}
	if err := u.learners.Save(ctx, progress); err != nil {
		return err
	}
	for _, stat := range stats {
		if err := u.stats.AddSubCategoryCounts(ctx, stat); err != nil {
			return err
		}
	}
	return nil
}

type fakeTierResolver struct {
	tier entitlement.Tier
	err  error
}

func (r *fakeTierResolver) ResolveTier(_ context.Context, _ learner.ID) (entitlement.Tier, error) {
	return r.tier, r.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(eventType shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type noopLocker struct{}

func (noopLocker) Lock(string)   {}
func (noopLocker) Unlock(string) {}
