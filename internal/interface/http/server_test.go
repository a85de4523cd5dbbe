package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/medprep-hub/assessment-engine/internal/application/command"
	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/internal/infrastructure/scheduler"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type memLearnerRepo struct {
	mu       sync.Mutex
	learners map[learner.ID]*learner.Progress
}

func newMemLearnerRepo() *memLearnerRepo {
	return &memLearnerRepo{learners: make(map[learner.ID]*learner.Progress)}
}

func (r *memLearnerRepo) GetByID(_ context.Context, id learner.ID) (*learner.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.learners[id]
	if !ok {
		return nil, shared.ErrLearnerNotFound
	}
	return p, nil
}

func (r *memLearnerRepo) GetOrCreate(_ context.Context, id learner.ID) (*learner.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.learners[id]; ok {
		return p, nil
	}
	p := learner.NewProgress(id)
	r.learners[id] = p
	return p, nil
}

func (r *memLearnerRepo) Save(_ context.Context, p *learner.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learners[p.LearnerID] = p
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[session.ID]*session.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[session.ID]*session.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return shared.ErrSessionAlreadyExists
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id session.ID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

func (r *memSessionRepo) Save(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) GetActive(_ context.Context, learnerID learner.ID) (*session.Session, error) {
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
	return newest, nil
}

func (r *memSessionRepo) ListFinishedByLearner(_ context.Context, learnerID learner.ID, limit int) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.LearnerID == learnerID && s.Finished() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(*out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSessionRepo) FindIdleUnfinished(_ context.Context, cutoff time.Time) ([]*session.Session, error) {
	return nil, nil
}

type dropPublisher struct{}

func (dropPublisher) Publish(shared.Event) error { return nil }

type noLock struct{}

func (noLock) Lock(string)   {}
func (noLock) Unlock(string) {}

type fakeScheduler struct {
	ranJob string
}

func (f *fakeScheduler) RunNow(_ context.Context, jobName string) (*scheduler.JobResult, error) {
	if jobName != "sweep_abandoned_sessions" {
		return nil, scheduler.ErrJobNotFound
	}
	f.ranJob = jobName
	return &scheduler.JobResult{JobName: jobName, Success: true, Duration: time.Millisecond}, nil
}

func (f *fakeScheduler) ListJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "sweep_abandoned_sessions", Enabled: true, Schedule: "@every 1m0s"}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Test server
// ─────────────────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, cfg Config) (*Server, *memLearnerRepo, *memSessionRepo) {
	t.Helper()

	learnerRepo := newMemLearnerRepo()
	sessionRepo := newMemSessionRepo()

	deps := Dependencies{
		BeginSessionHandler:      command.NewBeginSessionHandler(learnerRepo, sessionRepo, noLock{}, dropPublisher{}),
		GetUnlockStatusHandler:   query.NewGetUnlockStatusHandler(learnerRepo),
		GetSessionHistoryHandler: query.NewGetSessionHistoryHandler(sessionRepo),
		Scheduler:                &fakeScheduler{},
	}

	return NewServer(cfg, deps), learnerRepo, sessionRepo
}

func do(s *Server, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_BeginSession(t *testing.T) {
	s, _, sessionRepo := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodPost, "/api/v1/sessions", BeginSessionRequest{
		LearnerID: "learner-1",
		Mode:      "exam",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	sessionID := data["session_id"].(string)
	assert.NotEmpty(t, sessionID)

	stored, err := sessionRepo.GetByID(context.Background(), session.ID(sessionID))
	require.NoError(t, err)
	assert.Equal(t, session.ModeExam, stored.Mode)
}

func TestServer_BeginSession_PersistsTimezone(t *testing.T) {
	s, learnerRepo, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodPost, "/api/v1/sessions", BeginSessionRequest{
		LearnerID: "learner-1",
		Mode:      "practice",
		Timezone:  "Asia/Almaty",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	progress, err := learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Almaty", progress.Timezone)
}

func TestServer_BeginSession_InvalidMode(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodPost, "/api/v1/sessions", BeginSessionRequest{
		LearnerID: "learner-1",
		Mode:      "marathon",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_failed", resp.Error.Code)
}

func TestServer_BeginSession_MalformedBody(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetUnlockStatus(t *testing.T) {
	s, learnerRepo, _ := newTestServer(t, DefaultConfig())
	_, err := learnerRepo.GetOrCreate(context.Background(), "learner-1")
	require.NoError(t, err)

	rec := do(s, http.MethodGet, "/api/v1/learners/learner-1/unlock", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "restricted", data["state"])
	assert.Equal(t, float64(3), data["sessions_required"])
}

func TestServer_GetSessionHistory(t *testing.T) {
	s, _, sessionRepo := newTestServer(t, DefaultConfig())

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		finished, err := session.New("learner-1", session.ModePractice, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		finished.Finish(base.Add(time.Duration(i)*time.Hour + 30*time.Minute))
		require.NoError(t, sessionRepo.Create(context.Background(), finished))
		ids = append(ids, finished.ID.String())
	}

	rec := do(s, http.MethodGet, "/api/v1/learners/learner-1/sessions?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])

	sessions := data["sessions"].([]interface{})
	require.Len(t, sessions, 2)
	newest := sessions[0].(map[string]interface{})
	assert.Equal(t, ids[2], newest["session_id"])
	assert.Equal(t, false, newest["qualified"])
}

func TestServer_GetSessionHistory_BadLimit(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodGet, "/api/v1/learners/learner-1/sessions?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthProbes(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	for _, path := range []string{"/health", "/healthz", "/health/ready", "/health/live"} {
		rec := do(s, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodGet, "/health/live", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(s, http.MethodGet, "/health/live", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestServer_UnknownRouteReturns404(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodGet, "/api/v2/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AdminRequiresAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AdminKeyHashes = []string{string(hash)}
	s, _, _ := newTestServer(t, cfg)

	rec := do(s, http.MethodGet, "/admin/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/admin/v1/jobs", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/admin/v1/jobs", nil, map[string]string{"X-API-Key": "admin-secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	jobs := data["jobs"].([]interface{})
	require.Len(t, jobs, 1)
}

func TestServer_AdminRunJob(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AdminKeyHashes = []string{string(hash)}
	s, _, _ := newTestServer(t, cfg)

	auth := map[string]string{"Authorization": "Bearer admin-secret"}

	rec := do(s, http.MethodPost, "/admin/v1/jobs/sweep_abandoned_sessions/run", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/admin/v1/jobs/no_such_job/run", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AdminRoutesAbsentWithoutKeys(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	rec := do(s, http.MethodGet, "/admin/v1/jobs", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 3
	s, _, _ := newTestServer(t, cfg)

	header := map[string]string{"X-Forwarded-For": "203.0.113.9"}
	for i := 0; i < 3; i++ {
		rec := do(s, http.MethodGet, "/health/live", nil, header)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(s, http.MethodGet, "/health/live", nil, header)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestServer_DomainErrorMapping(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota exceeded", shared.ErrDailyQuotaExceeded, http.StatusForbidden, "quota_exceeded"},
		{"already finished", shared.ErrSessionAlreadyFinished, http.StatusConflict, "session_finished"},
		{"not found", shared.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{"validation", shared.ErrInvalidLearnerID, http.StatusBadRequest, "validation_failed"},
		{"persistence", shared.NewDomainError("learner", "Save", shared.ErrPersistence, "write failed"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			s.writeDomainError(rec, req, tc.err, "test")

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}
