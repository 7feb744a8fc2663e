package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/qaim-khanx/essaygradingbot/internal/dto"
	"github.com/qaim-khanx/essaygradingbot/internal/repository"
	"github.com/qaim-khanx/essaygradingbot/internal/service"
	"github.com/qaim-khanx/essaygradingbot/internal/utils"
	"github.com/qaim-khanx/essaygradingbot/pkg/grading"
)

// EssayGradingHandler exposes essay grading endpoints.
type EssayGradingHandler struct {
	service   service.EssayGradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEssayGradingHandler constructs the handler.
func NewEssayGradingHandler(service service.EssayGradingService, validator *validator.Validate, logger zerolog.Logger) *EssayGradingHandler {
	return &EssayGradingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "essay_grading_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group. gradeLimiter,
// when non-nil, guards the endpoints that call the language model.
func (h *EssayGradingHandler) Register(router fiber.Router, gradeLimiter fiber.Handler) {
	if gradeLimiter == nil {
		gradeLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/grade", gradeLimiter, h.grade)
	router.Post("/grade/upload", gradeLimiter, h.upload)
	router.Get("/gradings", h.list)
	router.Get("/gradings/:id", h.get)
}

func (h *EssayGradingHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeEssayRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	response, err := h.service.Grade(withRequestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "essay graded", response)
}

func (h *EssayGradingHandler) upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer file.Close()

	response, err := h.service.GradeDocument(withRequestContext(c), userIDFromContext(c), file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "essay graded", response)
}

func (h *EssayGradingHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Get(withRequestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading retrieved", response)
}

func (h *EssayGradingHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	response, err := h.service.List(withRequestContext(c), repository.EssayGradingFilter{Page: page, PageSize: pageSize})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "gradings retrieved", response)
}

func (h *EssayGradingHandler) handleError(c *fiber.Ctx, err error) error {
	var (
		validationErrors validator.ValidationErrors
		evaluationErr    *grading.EvaluationError
		parseErr         *grading.ParseError
		rangeErr         *grading.OutOfRangeError
		upstreamErr      *grading.UpstreamError
	)
	switch {
	case errors.As(err, &validationErrors):
		details := make(map[string]string, len(validationErrors))
		for _, fieldErr := range validationErrors {
			details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
		}
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid payload", details)
	case errors.Is(err, grading.ErrEmptyEssay), errors.Is(err, service.ErrEssayTooLong):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnsupportedEssayFile):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrGradingNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrGraderUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grader unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		requestLogger(h.logger, c).Warn().Err(err).Msg("essay grading timed out")
		return utils.SendError(c, fiber.StatusGatewayTimeout, "grading timed out")
	case errors.As(err, &parseErr), errors.As(err, &rangeErr), errors.As(err, &upstreamErr):
		message := "grading failed"
		if errors.As(err, &evaluationErr) {
			message = string(evaluationErr.Dimension) + " evaluation failed"
		}
		requestLogger(h.logger, c).Warn().Err(err).Msg("essay grading failed")
		return utils.SendError(c, fiber.StatusBadGateway, message)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("essay grading operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
