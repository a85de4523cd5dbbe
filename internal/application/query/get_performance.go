package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PERFORMANCE QUERY
// Lifetime performance per category, with an optional sub-category
// drill-down. Served from the aggregates the performance aggregator
// maintains at session finish.
// ══════════════════════════════════════════════════════════════════════════════

// GetPerformanceQuery contains the performance request.
type GetPerformanceQuery struct {
	// LearnerID is the learner to report on.
	LearnerID string

	// IncludeSubCategories adds the per-sub-category breakdown.
	IncludeSubCategories bool
}

// Validate checks the query parameters.
func (q GetPerformanceQuery) Validate() error {
	if !learner.ID(q.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

// CategoryPerformanceDTO is one category's lifetime performance.
type CategoryPerformanceDTO struct {
	Category      string  `json:"category"`
	Tier          int     `json:"tier"`
	TierName      string  `json:"tier_name"`
	TotalAnswered int     `json:"total_answered"`
	TotalCorrect  int     `json:"total_correct"`
	Accuracy      float64 `json:"accuracy"`
}

// SubCategoryPerformanceDTO is one sub-category's lifetime performance.
type SubCategoryPerformanceDTO struct {
	Category      string  `json:"category"`
	SubCategory   string  `json:"sub_category"`
	TotalAnswered int     `json:"total_answered"`
	TotalCorrect  int     `json:"total_correct"`
	Accuracy      float64 `json:"accuracy"`
}

// PerformanceDTO is the full performance read model.
type PerformanceDTO struct {
	LearnerID     string  `json:"learner_id"`
	TotalAnswered int     `json:"total_answered"`
	TotalCorrect  int     `json:"total_correct"`
	Accuracy      float64 `json:"accuracy"`
	CurrentStreak int     `json:"current_streak"`
	HighestStreak int     `json:"highest_streak"`

	Categories    []CategoryPerformanceDTO    `json:"categories"`
	SubCategories []SubCategoryPerformanceDTO `json:"sub_categories,omitempty"`
}

// GetPerformanceHandler handles the GetPerformanceQuery.
type GetPerformanceHandler struct {
	learnerRepo learner.Repository
	statsRepo   learner.StatsRepository
}

// NewGetPerformanceHandler creates a new GetPerformanceHandler.
func NewGetPerformanceHandler(learnerRepo learner.Repository, statsRepo learner.StatsRepository) *GetPerformanceHandler {
	return &GetPerformanceHandler{learnerRepo: learnerRepo, statsRepo: statsRepo}
}

// Handle executes the query. An unknown learner gets an empty report.
func (h *GetPerformanceHandler) Handle(ctx context.Context, q GetPerformanceQuery) (*PerformanceDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_performance: %w", err)
	}

	dto := &PerformanceDTO{
		LearnerID:  q.LearnerID,
		Categories: make([]CategoryPerformanceDTO, 0),
	}

	progress, err := h.learnerRepo.GetByID(ctx, learner.ID(q.LearnerID))
	if err != nil {
		if shared.IsNotFound(err) {
			return dto, nil
		}
		return nil, fmt.Errorf("get_performance: failed to load progress: %w", err)
	}

	dto.TotalAnswered = progress.TotalAnswered
	dto.TotalCorrect = progress.TotalCorrect
	if progress.TotalAnswered > 0 {
		dto.Accuracy = float64(progress.TotalCorrect) / float64(progress.TotalAnswered)
	}
	dto.CurrentStreak = progress.CurrentStreak
	dto.HighestStreak = progress.HighestStreak

	for category, state := range progress.Categories {
		dto.Categories = append(dto.Categories, CategoryPerformanceDTO{
			Category:      category.String(),
			Tier:          int(state.Tier),
			TierName:      state.Tier.String(),
			TotalAnswered: state.TotalAnswered,
			TotalCorrect:  state.TotalCorrect,
			Accuracy:      state.Accuracy(),
		})
	}
	sort.Slice(dto.Categories, func(i, j int) bool {
		return dto.Categories[i].Category < dto.Categories[j].Category
	})

	if q.IncludeSubCategories {
		stats, err := h.statsRepo.ListByLearner(ctx, learner.ID(q.LearnerID))
		if err != nil {
			return nil, fmt.Errorf("get_performance: failed to load sub-category stats: %w", err)
		}
		for _, stat := range stats {
			dto.SubCategories = append(dto.SubCategories, SubCategoryPerformanceDTO{
				Category:      stat.Category.String(),
				SubCategory:   stat.SubCategory.String(),
				TotalAnswered: stat.TotalAnswered,
				TotalCorrect:  stat.TotalCorrect,
				Accuracy:      stat.Accuracy(),
			})
		}
		sort.Slice(dto.SubCategories, func(i, j int) bool {
			a, b := dto.SubCategories[i], dto.SubCategories[j]
			if a.Category != b.Category {
				return a.Category < b.Category
			}
			return a.SubCategory < b.SubCategory
		})
	}

	return dto, nil
}
