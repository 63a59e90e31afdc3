package core

// tokens.go prices text for language-model calls.
//
// The estimate is deliberately coarse: ceil(characters / CharsPerToken).
// Three characters per token overestimates for English text, which is the
// safe direction for every budget check built on top of it.

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// CharsPerToken is the conservative characters-per-token ratio.
const CharsPerToken = 3

// EstimateTokens returns the approximate token cost of s.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateValueTokens prices any value by its JSON encoding. Strings are
// priced as-is; values that cannot be encoded fall back to their %v form.
func EstimateValueTokens(v any) int {
	if s, ok := v.(string); ok {
		return EstimateTokens(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return EstimateTokens(fmt.Sprintf("%v", v))
	}
	return EstimateTokens(string(data))
}

// Operation identifies a kind of language-model call with its own budget.
type Operation string

const (
	// OpBatch covers batched calls: grouping rows for normalization and
	// duplicate pairs for bulk merge.
	OpBatch Operation = "batch"
	// OpSummary covers single-contact summary prompts.
	OpSummary Operation = "summary"
	// OpNormalizeRow covers one normalization call for a single raw row.
	OpNormalizeRow Operation = "normalize-row"
)

// Budget is the input-token ceiling for one call and the fixed cost of the
// prompt preamble sent with every call of that kind.
type Budget struct {
	MaxInputTokens int
	BaseTokens     int
}

// Available returns the tokens left for payload after the preamble.
func (b Budget) Available() int {
	if b.MaxInputTokens <= b.BaseTokens {
		return 0
	}
	return b.MaxInputTokens - b.BaseTokens
}

// Budgets are the fixed per-operation limits.
var Budgets = map[Operation]Budget{
	OpBatch:        {MaxInputTokens: 10000, BaseTokens: 500},
	OpSummary:      {MaxInputTokens: 1500, BaseTokens: 300},
	OpNormalizeRow: {MaxInputTokens: 400, BaseTokens: 150},
}

// BudgetFor returns the budget for op, or the zero Budget if unknown.
func BudgetFor(op Operation) Budget {
	return Budgets[op]
}
