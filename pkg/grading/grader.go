package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/qaim-khanx/essaygradingbot/pkg/ai"
)

const componentWeight = 0.25

// RangePolicy decides what happens to a parsed score outside [0, 1].
type RangePolicy string

const (
	// RangePolicyReject fails the evaluation with OutOfRangeError.
	RangePolicyReject RangePolicy = "reject"
	// RangePolicyClamp pulls the score back into [0, 1].
	RangePolicyClamp RangePolicy = "clamp"
)

// GradingResult is the outcome of grading one essay.
type GradingResult struct {
	Essay          string               `json:"essay"`
	RelevanceScore float64              `json:"relevance_score"`
	GrammarScore   float64              `json:"grammar_score"`
	StructureScore float64              `json:"structure_score"`
	DepthScore     float64              `json:"depth_score"`
	FinalScore     float64              `json:"final_score"`
	Raw            map[Dimension]string `json:"raw,omitempty"`
}

// Score returns the component score recorded for dimension.
func (r GradingResult) Score(dimension Dimension) float64 {
	switch dimension {
	case DimensionRelevance:
		return r.RelevanceScore
	case DimensionGrammar:
		return r.GrammarScore
	case DimensionStructure:
		return r.StructureScore
	case DimensionDepth:
		return r.DepthScore
	default:
		return 0
	}
}

// Config tunes how the grader talks to the completion capability.
type Config struct {
	// CallTimeout bounds every sub-evaluation; zero means no extra deadline.
	CallTimeout time.Duration
	// Sequential runs the sub-evaluations one after another in Dimensions order.
	Sequential  bool
	RangePolicy RangePolicy
	Logger      zerolog.Logger
}

// Grader scores essays along the four dimensions and aggregates the result.
type Grader struct {
	completer ai.Completer
	cfg       Config
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// Evaluation is a single sub-evaluation outcome.
type Evaluation struct {
	Dimension Dimension
	Score     float64
	Reply     string
}

// NewGrader constructs a grader backed by completer.
func NewGrader(completer ai.Completer, cfg Config) (*Grader, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	switch cfg.RangePolicy {
	case "":
		cfg.RangePolicy = RangePolicyReject
	case RangePolicyReject, RangePolicyClamp:
	default:
		return nil, fmt.Errorf("unknown range policy %q", cfg.RangePolicy)
	}

	return &Grader{
		completer: completer,
		cfg:       cfg,
		tracer:    otel.Tracer("github.com/qaim-khanx/essaygradingbot/pkg/grading"),
		logger:    cfg.Logger.With().Str("component", "essay_grader").Logger(),
	}, nil
}

// Grade runs all four sub-evaluations and returns the aggregated result.
// Either every score is populated or an error is returned.
func (g *Grader) Grade(parent context.Context, essay string) (GradingResult, error) {
	if strings.TrimSpace(essay) == "" {
		return GradingResult{}, ErrEmptyEssay
	}

	ctx, span := g.tracer.Start(parent, "grading.grade", trace.WithAttributes(
		attribute.Int("essay_length", len(essay)),
		attribute.Bool("sequential", g.cfg.Sequential),
	))
	defer span.End()

	var (
		evaluations []Evaluation
		err         error
	)
	if g.cfg.Sequential {
		evaluations, err = g.runSequential(ctx, essay)
	} else {
		evaluations, err = g.runConcurrent(ctx, essay)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Msg("essay grading failed")
		return GradingResult{}, err
	}

	result := GradingResult{
		Essay: essay,
		Raw:   make(map[Dimension]string, len(evaluations)),
	}
	for _, evaluation := range evaluations {
		switch evaluation.Dimension {
		case DimensionRelevance:
			result.RelevanceScore = evaluation.Score
		case DimensionGrammar:
			result.GrammarScore = evaluation.Score
		case DimensionStructure:
			result.StructureScore = evaluation.Score
		case DimensionDepth:
			result.DepthScore = evaluation.Score
		}
		result.Raw[evaluation.Dimension] = evaluation.Reply
	}
	result.FinalScore = CalculateFinalScore(result.RelevanceScore, result.GrammarScore, result.StructureScore, result.DepthScore)

	span.SetAttributes(attribute.Float64("final_score", result.FinalScore))
	return result, nil
}

func (g *Grader) runSequential(ctx context.Context, essay string) ([]Evaluation, error) {
	evaluations := make([]Evaluation, 0, len(Dimensions))
	for _, dimension := range Dimensions {
		evaluation, err := g.Evaluate(ctx, dimension, essay)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, evaluation)
	}
	return evaluations, nil
}

func (g *Grader) runConcurrent(ctx context.Context, essay string) ([]Evaluation, error) {
	evaluations := make([]Evaluation, len(Dimensions))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, dimension := range Dimensions {
		group.Go(func() error {
			evaluation, err := g.Evaluate(groupCtx, dimension, essay)
			if err != nil {
				return err
			}
			evaluations[i] = evaluation
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return evaluations, nil
}

// CheckRelevance scores how well the essay addresses its topic.
func (g *Grader) CheckRelevance(ctx context.Context, essay string) (float64, error) {
	return g.score(ctx, DimensionRelevance, essay)
}

// CheckGrammar scores the essay's grammar.
func (g *Grader) CheckGrammar(ctx context.Context, essay string) (float64, error) {
	return g.score(ctx, DimensionGrammar, essay)
}

// AnalyzeStructure scores the essay's organisation.
func (g *Grader) AnalyzeStructure(ctx context.Context, essay string) (float64, error) {
	return g.score(ctx, DimensionStructure, essay)
}

// EvaluateDepth scores the depth of analysis.
func (g *Grader) EvaluateDepth(ctx context.Context, essay string) (float64, error) {
	return g.score(ctx, DimensionDepth, essay)
}

func (g *Grader) score(ctx context.Context, dimension Dimension, essay string) (float64, error) {
	evaluation, err := g.Evaluate(ctx, dimension, essay)
	if err != nil {
		return 0, err
	}
	return evaluation.Score, nil
}

// Evaluate asks the model for one dimension's score. Failures are returned as
// *EvaluationError wrapping *UpstreamError, *ParseError or *OutOfRangeError.
func (g *Grader) Evaluate(parent context.Context, dimension Dimension, essay string) (Evaluation, error) {
	if _, ok := instructions[dimension]; !ok {
		return Evaluation{}, fmt.Errorf("unknown dimension %q", dimension)
	}

	ctx, span := g.tracer.Start(parent, "grading.evaluate", trace.WithAttributes(
		attribute.String("dimension", string(dimension)),
	))
	defer span.End()

	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
	}

	reply, err := g.completer.Complete(ctx, BuildPrompt(dimension, essay))
	if err != nil {
		return Evaluation{}, g.fail(span, dimension, &UpstreamError{Err: err})
	}

	value, err := ExtractScore(reply)
	if err != nil {
		var rangeErr *OutOfRangeError
		if g.cfg.RangePolicy != RangePolicyClamp || !errors.As(err, &rangeErr) {
			return Evaluation{}, g.fail(span, dimension, err)
		}
		value = clamp(rangeErr.Value)
		g.logger.Warn().Str("dimension", string(dimension)).Float64("score", rangeErr.Value).Msg("clamped out of range score")
	}

	g.logger.Debug().Str("dimension", string(dimension)).Float64("score", value).Msg("sub-evaluation scored")
	span.SetAttributes(attribute.Float64("score", value))
	return Evaluation{Dimension: dimension, Score: value, Reply: reply}, nil
}

func (g *Grader) fail(span trace.Span, dimension Dimension, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &EvaluationError{Dimension: dimension, Err: err}
}

// CalculateFinalScore combines the component scores with equal weights.
func CalculateFinalScore(relevance, grammar, structure, depth float64) float64 {
	return relevance*componentWeight +
		grammar*componentWeight +
		structure*componentWeight +
		depth*componentWeight
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
