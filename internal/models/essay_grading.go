package models

import (
	"time"

	"gorm.io/datatypes"
)

// EssayGrading is a persisted grading outcome.
type EssayGrading struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Digest         string            `gorm:"size:64;index" json:"digest"`
	Essay          string            `gorm:"type:text;not null" json:"essay"`
	Model          string            `gorm:"size:64" json:"model"`
	RelevanceScore float64           `gorm:"not null" json:"relevance_score"`
	GrammarScore   float64           `gorm:"not null" json:"grammar_score"`
	StructureScore float64           `gorm:"not null" json:"structure_score"`
	DepthScore     float64           `gorm:"not null" json:"depth_score"`
	FinalScore     float64           `gorm:"not null;index" json:"final_score"`
	Raw            datatypes.JSONMap `json:"raw"`
	DurationMs     int64             `json:"duration_ms"`
	RequestedBy    *uint             `json:"requested_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
