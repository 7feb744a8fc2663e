package grading

import (
	"errors"
	"fmt"
)

// ErrEmptyEssay indicates the caller submitted no essay text.
var ErrEmptyEssay = errors.New("essay must not be empty")

// ParseError reports a model reply that could not be converted to a score.
type ParseError struct {
	Response string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse score: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// OutOfRangeError reports a parsed score outside [0, 1].
type OutOfRangeError struct {
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("score %g outside [0, 1]", e.Value)
}

// UpstreamError wraps a failure of the completion capability.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// EvaluationError identifies the sub-evaluation that failed.
type EvaluationError struct {
	Dimension Dimension
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s evaluation: %v", e.Dimension, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
