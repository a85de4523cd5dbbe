package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/application/command"
	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}

	info := map[string]interface{}{
		"name":        "Assessment Engine API",
		"version":     "v1",
		"description": "Adaptive assessment and content-unlock engine",
		"endpoints": map[string]string{
			"health":      "/health",
			"sessions":    "/api/v1/sessions",
			"answers":     "/api/v1/answers",
			"unlock":      "/api/v1/learners/{id}/unlock",
			"performance": "/api/v1/learners/{id}/performance",
			"quota":       "/api/v1/learners/{id}/quota",
			"snapshot":    "/api/v1/learners/{id}/snapshot",
			"history":     "/api/v1/learners/{id}/sessions",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// BeginSessionRequest is the body of POST /api/v1/sessions.
type BeginSessionRequest struct {
	LearnerID string `json:"learner_id"`
	Mode      string `json:"mode"`
	Timezone  string `json:"timezone,omitempty"`
}

// BeginSessionResponse is the response of POST /api/v1/sessions.
type BeginSessionResponse struct {
	SessionID         string    `json:"session_id"`
	Mode              string    `json:"mode"`
	StartedAt         time.Time `json:"started_at"`
	ReplacedSessionID string    `json:"replaced_session_id,omitempty"`
}

// handleBeginSession handles POST /api/v1/sessions
func (s *Server) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	var req BeginSessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.BeginSessionHandler.Handle(r.Context(), command.BeginSessionCommand{
		LearnerID: req.LearnerID,
		Mode:      req.Mode,
		Timezone:  req.Timezone,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "begin session")
		return
	}

	writeJSON(w, http.StatusCreated, BeginSessionResponse{
		SessionID:         result.SessionID,
		Mode:              result.Mode,
		StartedAt:         result.StartedAt,
		ReplacedSessionID: result.ReplacedSessionID,
	})
}

// FinishSessionRequest is the body of POST /api/v1/sessions/{id}/finish.
type FinishSessionRequest struct {
	LearnerID string `json:"learner_id"`
}

// FinishSessionResponse is the finalized session outcome.
type FinishSessionResponse struct {
	SessionID           string  `json:"session_id"`
	QuestionsAnswered   int     `json:"questions_answered"`
	CorrectAnswers      int     `json:"correct_answers"`
	Accuracy            float64 `json:"accuracy"`
	TimeSpentSeconds    float64 `json:"time_spent_seconds"`
	Qualified           bool    `json:"qualified"`
	QualificationReason string  `json:"qualification_reason"`
	QualifyingSessions  int     `json:"qualifying_sessions"`
	SessionsRemaining   int     `json:"sessions_remaining"`
	JustUnlocked        bool    `json:"just_unlocked"`
	Unlocked            bool    `json:"unlocked"`
	AlreadyFinished     bool    `json:"already_finished"`
}

// handleFinishSession handles POST /api/v1/sessions/{id}/finish
func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Session ID is required")
		return
	}

	var req FinishSessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.FinishSessionHandler.Handle(r.Context(), command.FinishSessionCommand{
		LearnerID: req.LearnerID,
		SessionID: sessionID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "finish session")
		return
	}

	writeJSON(w, http.StatusOK, FinishSessionResponse{
		SessionID:           result.SessionID,
		QuestionsAnswered:   result.QuestionsAnswered,
		CorrectAnswers:      result.CorrectAnswers,
		Accuracy:            result.Accuracy,
		TimeSpentSeconds:    result.TimeSpent.Seconds(),
		Qualified:           result.Qualified,
		QualificationReason: result.QualificationReason,
		QualifyingSessions:  result.QualifyingSessions,
		SessionsRemaining:   result.SessionsRemaining,
		JustUnlocked:        result.JustUnlocked,
		Unlocked:            result.Unlocked,
		AlreadyFinished:     result.AlreadyFinished,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAnswerRequest is the body of POST /api/v1/answers.
type SubmitAnswerRequest struct {
	LearnerID   string `json:"learner_id"`
	SessionID   string `json:"session_id"`
	QuestionID  string `json:"question_id"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	IsCorrect   bool   `json:"is_correct"`
	TimeTakenMS int64  `json:"time_taken_ms"`
}

// SubmitAnswerResponse is the outcome of an accepted answer.
type SubmitAnswerResponse struct {
	Tier           int  `json:"tier"`
	TierChanged    bool `json:"tier_changed"`
	CurrentStreak  int  `json:"current_streak"`
	QuotaRemaining int  `json:"quota_remaining"`
	QuotaUnlimited bool `json:"quota_unlimited"`
}

// handleSubmitAnswer handles POST /api/v1/answers
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.SubmitAnswerHandler.Handle(r.Context(), command.SubmitAnswerCommand{
		LearnerID:   req.LearnerID,
		SessionID:   req.SessionID,
		QuestionID:  req.QuestionID,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		IsCorrect:   req.IsCorrect,
		TimeTaken:   time.Duration(req.TimeTakenMS) * time.Millisecond,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "submit answer")
		return
	}

	writeJSON(w, http.StatusOK, SubmitAnswerResponse{
		Tier:           result.Tier,
		TierChanged:    result.TierChanged,
		CurrentStreak:  result.CurrentStreak,
		QuotaRemaining: result.QuotaRemaining,
		QuotaUnlimited: result.QuotaUnlimited,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER READ-MODEL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUnlockStatus handles GET /api/v1/learners/{id}/unlock
func (s *Server) handleGetUnlockStatus(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	result, err := s.deps.GetUnlockStatusHandler.Handle(r.Context(), query.GetUnlockStatusQuery{
		LearnerID: learnerID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "get unlock status")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetPerformance handles GET /api/v1/learners/{id}/performance
func (s *Server) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	s.servePerformance(w, r, getQueryParamBool(r, "subcategories"))
}

// handleGetSubCategoryPerformance handles GET /api/v1/learners/{id}/performance/sub
func (s *Server) handleGetSubCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	s.servePerformance(w, r, true)
}

func (s *Server) servePerformance(w http.ResponseWriter, r *http.Request, includeSub bool) {
	learnerID := r.PathValue("id")

	result, err := s.deps.GetPerformanceHandler.Handle(r.Context(), query.GetPerformanceQuery{
		LearnerID:            learnerID,
		IncludeSubCategories: includeSub,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "get performance")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetQuotaStatus handles GET /api/v1/learners/{id}/quota
func (s *Server) handleGetQuotaStatus(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	result, err := s.deps.GetQuotaStatusHandler.Handle(r.Context(), query.GetQuotaStatusQuery{
		LearnerID: learnerID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "get quota status")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetSessionHistory handles GET /api/v1/learners/{id}/sessions
func (s *Server) handleGetSessionHistory(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = parsed
	}

	result, err := s.deps.GetSessionHistoryHandler.Handle(r.Context(), query.GetSessionHistoryQuery{
		LearnerID: learnerID,
		Limit:     limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "get session history")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetSnapshot handles GET /api/v1/learners/{id}/snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")

	result, err := s.deps.GetSnapshotHandler.Handle(r.Context(), query.GetSnapshotQuery{
		LearnerID:   learnerID,
		BypassCache: getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		s.writeDomainError(w, r, err, "get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// JobStatusDTO describes one scheduled job for the admin API.
type JobStatusDTO struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Schedule    string    `json:"schedule"`
	LastRun     time.Time `json:"last_run,omitempty"`
	NextRun     time.Time `json:"next_run,omitempty"`
	RunCount    int64     `json:"run_count"`
	FailCount   int64     `json:"fail_count"`
}

// handleListJobs handles GET /admin/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	infos := s.deps.Scheduler.ListJobs()
	jobs := make([]JobStatusDTO, 0, len(infos))
	for _, info := range infos {
		jobs = append(jobs, JobStatusDTO{
			Name:        info.Name,
			Description: info.Description,
			Enabled:     info.Enabled,
			Schedule:    info.Schedule,
			LastRun:     info.LastRun,
			NextRun:     info.NextRun,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleRunJob handles POST /admin/v1/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	name := r.PathValue("name")

	result, err := s.deps.Scheduler.RunNow(r.Context(), name)
	if err != nil {
		s.logger.Error("admin job run failed", logger.Err(err), logger.String("job", name))
		writeJSONError(w, http.StatusNotFound, "job_not_found", "Unknown job: "+name)
		return
	}

	response := map[string]interface{}{
		"job":         result.JobName,
		"success":     result.Success,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		response["error"] = result.Error.Error()
	}

	writeJSON(w, http.StatusOK, response)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}

// writeDomainError maps application errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case shared.IsQuotaExceeded(err):
		writeJSONErrorWithDetails(w, http.StatusForbidden, "quota_exceeded",
			"Daily question limit reached",
			"Upgrade your plan to continue practicing today")

	case errors.Is(err, shared.ErrSessionAlreadyFinished):
		writeJSONError(w, http.StatusConflict, "session_finished", "Session is already finished")

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")

	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "validation_failed", "Invalid request", err.Error())

	default:
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("operation", op),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
	}
}
