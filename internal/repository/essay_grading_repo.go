package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qaim-khanx/essaygradingbot/internal/models"
)

// EssayGradingFilter narrows essay grading listings.
type EssayGradingFilter struct {
	Page     int
	PageSize int
}

// EssayGradingRepository exposes persistence helpers for essay gradings.
type EssayGradingRepository interface {
	Create(ctx context.Context, grading *models.EssayGrading) error
	GetByID(ctx context.Context, id uint) (models.EssayGrading, error)
	List(ctx context.Context, filter EssayGradingFilter) ([]models.EssayGrading, int64, error)
}

// NewEssayGradingRepository constructs an essay grading repository.
func NewEssayGradingRepository(db *gorm.DB) EssayGradingRepository {
	return &essayGradingRepository{db: db}
}

type essayGradingRepository struct {
	db *gorm.DB
}

func (r *essayGradingRepository) Create(ctx context.Context, grading *models.EssayGrading) error {
	return r.db.WithContext(ctx).Create(grading).Error
}

func (r *essayGradingRepository) GetByID(ctx context.Context, id uint) (models.EssayGrading, error) {
	var grading models.EssayGrading
	if err := r.db.WithContext(ctx).First(&grading, id).Error; err != nil {
		return models.EssayGrading{}, err
	}
	return grading, nil
}

func (r *essayGradingRepository) List(ctx context.Context, filter EssayGradingFilter) ([]models.EssayGrading, int64, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.EssayGrading{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var gradings []models.EssayGrading
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&gradings).Error
	if err != nil {
		return nil, 0, err
	}

	return gradings, total, nil
}
