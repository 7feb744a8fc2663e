package grading

import (
	"fmt"
	"strings"
)

// Dimension names one of the four independent scoring criteria.
type Dimension string

const (
	DimensionRelevance Dimension = "relevance"
	DimensionGrammar   Dimension = "grammar"
	DimensionStructure Dimension = "structure"
	DimensionDepth     Dimension = "depth"
)

// Dimensions lists the criteria in evaluation order.
var Dimensions = []Dimension{
	DimensionRelevance,
	DimensionGrammar,
	DimensionStructure,
	DimensionDepth,
}

// PromptVersion identifies the current instruction wording. Bump it whenever
// the instructions or the reply format change.
const PromptVersion = "2"

var instructions = map[Dimension]string{
	DimensionRelevance: "Analyze the relevance of the following essay to the given topic. Provide a relevance score between 0 and 1.",
	DimensionGrammar:   "Analyze the grammar of this essay. Provide a score between 0 and 1.",
	DimensionStructure: "Analyze the structure of this essay. Provide a score between 0 and 1.",
	DimensionDepth:     "Evaluate the depth of analysis in this essay. Provide a score between 0 and 1.",
}

// BuildPrompt renders the instruction sent to the model for one dimension.
func BuildPrompt(dimension Dimension, essay string) string {
	builder := strings.Builder{}
	builder.WriteString(instructions[dimension])
	builder.WriteString(fmt.Sprintf(" Your response should start with '%s' followed by the numeric score.", ScoreMarker))
	builder.WriteString("\n\nEssay: ")
	builder.WriteString(essay)
	return builder.String()
}
