package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT3Dot5Turbo

// ErrEmptyCompletion is returned when the API answers without any choice.
var ErrEmptyCompletion = errors.New("no choices returned from openai")

var (
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "essay",
		Subsystem: "ai",
		Name:      "completion_duration_seconds",
		Help:      "Duration of completion requests",
	}, []string{"model"})

	completionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "essay",
		Subsystem: "ai",
		Name:      "completion_failures_total",
		Help:      "Number of failed completion requests",
	}, []string{"model"})

	completionTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "essay",
		Subsystem: "ai",
		Name:      "completion_tokens_total",
		Help:      "Tokens consumed by completion requests",
	}, []string{"model", "kind"})
)

// OpenAIConfig defines configuration options for the OpenAI completer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAICompleter implements Completer against the OpenAI chat completion API.
type OpenAICompleter struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAICompleter builds a new completer using the provided configuration.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 16
	}

	tracer := otel.Tracer("github.com/qaim-khanx/essaygradingbot/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAICompleter{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_completer").Logger(),
	}, nil
}

// Model reports the chat model requests are sent to.
func (c *OpenAICompleter) Model() string {
	return c.cfg.Model
}

// Complete sends a single user message and returns the first choice's content.
func (c *OpenAICompleter) Complete(parent context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(parent, "openai.complete", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	// go-openai drops a zero temperature from the request body, which leaves the
	// API on its own default of 1.
	temperature := c.cfg.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	completionDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		c.fail(span, err)
		return "", fmt.Errorf("openai complete: %w", err)
	}

	completionTokens.WithLabelValues(c.cfg.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	completionTokens.WithLabelValues(c.cfg.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		c.fail(span, ErrEmptyCompletion)
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("completion received")

	return content, nil
}

func (c *OpenAICompleter) fail(span trace.Span, err error) {
	completionFailures.WithLabelValues(c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
