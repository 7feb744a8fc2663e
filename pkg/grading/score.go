package grading

import (
	"math"
	"strconv"
	"strings"
)

// ScoreMarker is the prefix every evaluation reply is asked to start with.
const ScoreMarker = "Score: "

// ExtractScore parses replies of the form "Score: 0.82" into a value in [0, 1].
// Only the first token after the first colon is considered, so trailing
// commentary is ignored.
func ExtractScore(response string) (float64, error) {
	if strings.TrimSpace(response) == "" {
		return 0, &ParseError{Response: response, Reason: "empty response"}
	}

	_, remainder, found := strings.Cut(response, ":")
	if !found {
		return 0, &ParseError{Response: response, Reason: "missing ':' delimiter"}
	}

	fields := strings.Fields(remainder)
	if len(fields) == 0 {
		return 0, &ParseError{Response: response, Reason: "no value after delimiter"}
	}

	token := strings.TrimRight(fields[0], ".,;")
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, &ParseError{Response: response, Reason: "non-numeric value " + strconv.Quote(fields[0]), Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &ParseError{Response: response, Reason: "non-finite value " + strconv.Quote(fields[0])}
	}

	if value < 0 || value > 1 {
		return 0, &OutOfRangeError{Value: value}
	}

	return value, nil
}
