package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qaim-khanx/essaygradingbot/internal/dto"
	"github.com/qaim-khanx/essaygradingbot/internal/models"
	"github.com/qaim-khanx/essaygradingbot/internal/observability"
	"github.com/qaim-khanx/essaygradingbot/internal/repository"
	"github.com/qaim-khanx/essaygradingbot/pkg/grading"
)

// ErrGradingNotFound indicates the grading cannot be located.
var ErrGradingNotFound = errors.New("essay grading not found")

// ErrGraderUnavailable indicates no completion backend is configured.
var ErrGraderUnavailable = errors.New("grader unavailable")

// ErrEssayTooLong indicates the essay exceeds the configured length.
var ErrEssayTooLong = errors.New("essay too long")

// ErrUnsupportedEssayFile indicates an uploaded essay is not a text document.
var ErrUnsupportedEssayFile = errors.New("unsupported essay file type")

const maxEssayFileBytes = 1 << 20

// EssayGrader is the grading pipeline the service delegates to.
type EssayGrader interface {
	Grade(ctx context.Context, essay string) (grading.GradingResult, error)
}

// EventPublisher delivers serialized events to a subject. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// EssayGradingService exposes essay grading operations.
type EssayGradingService interface {
	Grade(ctx context.Context, requesterID uint, payload dto.GradeEssayRequest) (dto.EssayGradingResponse, error)
	GradeDocument(ctx context.Context, requesterID uint, document io.Reader) (dto.EssayGradingResponse, error)
	Get(ctx context.Context, id uint) (dto.EssayGradingResponse, error)
	List(ctx context.Context, filter repository.EssayGradingFilter) (dto.EssayGradingListResponse, error)
}

// EssayGradingConfig describes grading service knobs. Model and RangePolicy
// are part of the cache key.
type EssayGradingConfig struct {
	Model        string
	CacheTTL     time.Duration
	MaxLength    int
	EventSubject string
	RangePolicy  string
}

type essayGradingService struct {
	gradings  repository.EssayGradingRepository
	grader    EssayGrader
	cache     *redis.Client
	publisher EventPublisher
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	config    EssayGradingConfig
	now       func() time.Time
}

// NewEssayGradingService constructs the grading service. cache and publisher are optional.
func NewEssayGradingService(repo repository.EssayGradingRepository, grader EssayGrader, cache *redis.Client, publisher EventPublisher, validate *validator.Validate, logger zerolog.Logger, cfg EssayGradingConfig) EssayGradingService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.RangePolicy == "" {
		cfg.RangePolicy = string(grading.RangePolicyReject)
	}

	return &essayGradingService{
		gradings:  repo,
		grader:    grader,
		cache:     cache,
		publisher: publisher,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/qaim-khanx/essaygradingbot/internal/service/essay_grading"),
		logger:    logger.With().Str("component", "essay_grading_service").Logger(),
		config:    cfg,
		now:       time.Now,
	}
}

func (s *essayGradingService) Grade(ctx context.Context, requesterID uint, payload dto.GradeEssayRequest) (dto.EssayGradingResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EssayGradingResponse{}, err
	}

	return s.grade(ctx, requesterID, payload.Essay)
}

func (s *essayGradingService) grade(ctx context.Context, requesterID uint, text string) (dto.EssayGradingResponse, error) {
	essay := strings.TrimSpace(text)
	if essay == "" {
		return dto.EssayGradingResponse{}, grading.ErrEmptyEssay
	}
	if s.config.MaxLength > 0 && utf8.RuneCountInString(essay) > s.config.MaxLength {
		return dto.EssayGradingResponse{}, ErrEssayTooLong
	}

	digest := s.digest(essay)
	ctx, span := s.tracer.Start(ctx, "essay_grading.grade", trace.WithAttributes(
		attribute.String("digest", digest),
	))
	defer span.End()

	if cached, ok := s.readCache(ctx, digest); ok {
		observability.Gradings().WithLabelValues("cached").Inc()
		span.SetAttributes(attribute.Bool("cached", true))
		return cached, nil
	}

	if s.grader == nil {
		return dto.EssayGradingResponse{}, ErrGraderUnavailable
	}

	start := s.now()
	result, err := s.grader.Grade(ctx, essay)
	duration := s.now().Sub(start)
	observability.GradingDuration().Observe(duration.Seconds())
	if err != nil {
		observability.Gradings().WithLabelValues("failed").Inc()
		span.RecordError(err)
		return dto.EssayGradingResponse{}, err
	}
	observability.Gradings().WithLabelValues("graded").Inc()
	for _, dimension := range grading.Dimensions {
		observability.DimensionScores().WithLabelValues(string(dimension)).Observe(result.Score(dimension))
	}

	raw := datatypes.JSONMap{}
	for dimension, reply := range result.Raw {
		raw[string(dimension)] = reply
	}

	record := models.EssayGrading{
		Digest:         digest,
		Essay:          result.Essay,
		Model:          s.config.Model,
		RelevanceScore: result.RelevanceScore,
		GrammarScore:   result.GrammarScore,
		StructureScore: result.StructureScore,
		DepthScore:     result.DepthScore,
		FinalScore:     result.FinalScore,
		Raw:            raw,
		DurationMs:     duration.Milliseconds(),
	}
	if requesterID != 0 {
		record.RequestedBy = &requesterID
	}

	if err := s.gradings.Create(ctx, &record); err != nil {
		return dto.EssayGradingResponse{}, fmt.Errorf("store grading: %w", err)
	}

	response := dto.NewEssayGradingResponse(record)
	s.writeCache(ctx, digest, response)
	s.publish(record)

	s.logger.Info().
		Uint("grading_id", record.ID).
		Str("digest", digest).
		Float64("final_score", record.FinalScore).
		Int64("duration_ms", record.DurationMs).
		Msg("essay graded")

	return response, nil
}

func (s *essayGradingService) GradeDocument(ctx context.Context, requesterID uint, document io.Reader) (dto.EssayGradingResponse, error) {
	content, err := io.ReadAll(io.LimitReader(document, maxEssayFileBytes+1))
	if err != nil {
		return dto.EssayGradingResponse{}, fmt.Errorf("read essay document: %w", err)
	}
	if len(content) > maxEssayFileBytes {
		return dto.EssayGradingResponse{}, ErrEssayTooLong
	}
	if len(content) == 0 {
		return dto.EssayGradingResponse{}, grading.ErrEmptyEssay
	}

	detected := mimetype.Detect(content)
	switch {
	case detected.Is("text/html"):
		return s.grade(ctx, requesterID, s.stripMarkup(string(content)))
	case detected.Is("text/plain"):
		return s.grade(ctx, requesterID, string(content))
	default:
		s.logger.Debug().Str("mime", detected.String()).Msg("rejected essay document")
		return dto.EssayGradingResponse{}, ErrUnsupportedEssayFile
	}
}

func (s *essayGradingService) Get(ctx context.Context, id uint) (dto.EssayGradingResponse, error) {
	record, err := s.gradings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EssayGradingResponse{}, ErrGradingNotFound
		}
		return dto.EssayGradingResponse{}, err
	}

	return dto.NewEssayGradingResponse(record), nil
}

func (s *essayGradingService) List(ctx context.Context, filter repository.EssayGradingFilter) (dto.EssayGradingListResponse, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	records, total, err := s.gradings.List(ctx, filter)
	if err != nil {
		return dto.EssayGradingListResponse{}, err
	}

	items := make([]dto.EssayGradingResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewEssayGradingResponse(record))
	}

	return dto.EssayGradingListResponse{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// stripMarkup reduces an HTML document to its text. Plain-text essays are
// never passed through it.
func (s *essayGradingService) stripMarkup(document string) string {
	return html.UnescapeString(s.sanitizer.Sanitize(document))
}

// digest keys the cache on everything that can change a score for the same essay.
func (s *essayGradingService) digest(essay string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		s.config.Model,
		s.config.RangePolicy,
		grading.PromptVersion,
		essay,
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

func cacheKey(digest string) string {
	return "essay:grading:" + digest
}

func (s *essayGradingService) readCache(ctx context.Context, digest string) (dto.EssayGradingResponse, bool) {
	if s.cache == nil {
		return dto.EssayGradingResponse{}, false
	}

	cached, err := s.cache.Get(ctx, cacheKey(digest)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read grading cache")
		}
		return dto.EssayGradingResponse{}, false
	}

	var response dto.EssayGradingResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt grading cache entry")
		return dto.EssayGradingResponse{}, false
	}

	s.logger.Debug().Str("digest", digest).Msg("grading cache hit")
	response.Cached = true
	return response, true
}

func (s *essayGradingService) writeCache(ctx context.Context, digest string, response dto.EssayGradingResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(digest), payload, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store grading cache")
	}
}

func (s *essayGradingService) publish(record models.EssayGrading) {
	if s.publisher == nil || s.config.EventSubject == "" {
		return
	}

	payload, err := json.Marshal(dto.EssayGradedEvent{
		ID:         record.ID,
		Digest:     record.Digest,
		FinalScore: record.FinalScore,
		GradedAt:   record.CreatedAt.UTC(),
	})
	if err != nil {
		return
	}

	if err := s.publisher.Publish(s.config.EventSubject, payload); err != nil {
		s.logger.Warn().Err(err).Uint("grading_id", record.ID).Msg("failed to publish grading event")
	}
}
