package dto

import (
	"time"

	"github.com/qaim-khanx/essaygradingbot/internal/models"
)

// GradeEssayRequest is the payload for grading an essay.
type GradeEssayRequest struct {
	Essay string `json:"essay" validate:"required,min=1"`
}

// EssayGradingResponse represents a grading to API consumers.
type EssayGradingResponse struct {
	ID             uint                   `json:"id"`
	Digest         string                 `json:"digest"`
	Essay          string                 `json:"essay"`
	Model          string                 `json:"model"`
	RelevanceScore float64                `json:"relevance_score"`
	GrammarScore   float64                `json:"grammar_score"`
	StructureScore float64                `json:"structure_score"`
	DepthScore     float64                `json:"depth_score"`
	FinalScore     float64                `json:"final_score"`
	Raw            map[string]interface{} `json:"raw,omitempty"`
	DurationMs     int64                  `json:"duration_ms"`
	Cached         bool                   `json:"cached"`
	CreatedAt      time.Time              `json:"created_at"`
}

// EssayGradingListResponse wraps a page of gradings.
type EssayGradingListResponse struct {
	Items    []EssayGradingResponse `json:"items"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// EssayGradedEvent is published once a grading has been stored.
type EssayGradedEvent struct {
	ID         uint      `json:"id"`
	Digest     string    `json:"digest"`
	FinalScore float64   `json:"final_score"`
	GradedAt   time.Time `json:"graded_at"`
}

// NewEssayGradingResponse converts an EssayGrading model into a DTO.
func NewEssayGradingResponse(grading models.EssayGrading) EssayGradingResponse {
	raw := map[string]interface{}(nil)
	if grading.Raw != nil {
		raw = map[string]interface{}(grading.Raw)
	}

	return EssayGradingResponse{
		ID:             grading.ID,
		Digest:         grading.Digest,
		Essay:          grading.Essay,
		Model:          grading.Model,
		RelevanceScore: grading.RelevanceScore,
		GrammarScore:   grading.GrammarScore,
		StructureScore: grading.StructureScore,
		DepthScore:     grading.DepthScore,
		FinalScore:     grading.FinalScore,
		Raw:            raw,
		DurationMs:     grading.DurationMs,
		CreatedAt:      grading.CreatedAt,
	}
}
