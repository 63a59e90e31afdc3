package core

import "math"

// DefaultSafetyMargin keeps batches at 90% of their nominal budget.
const DefaultSafetyMargin = 0.9

// BatchOptions controls BatchByTokens.
type BatchOptions struct {
	// Budget is the nominal token budget of one call.
	Budget int
	// BaseTokens is the fixed prompt cost charged once per batch.
	BaseTokens int
	// SafetyMargin scales Budget; 0 means no margin (1.0).
	SafetyMargin float64
	// MaxItems caps the number of items per batch; 0 means unlimited.
	MaxItems int
}

// Limit returns the effective ceiling for base plus item costs.
func (o BatchOptions) Limit() int {
	margin := o.SafetyMargin
	if margin <= 0 || margin > 1 {
		margin = 1
	}
	return int(math.Floor(float64(o.Budget) * margin))
}

// BatchByTokens splits items into ordered batches filled greedily in input
// order. Every batch satisfies base + sum(item costs) <= Limit() unless it
// holds exactly one item that is too large on its own; such items get a
// batch of their own and are never dropped or split.
func BatchByTokens[T any](items []T, opts BatchOptions, text func(T) string) [][]T {
	if len(items) == 0 {
		return nil
	}

	limit := opts.Limit()
	var batches [][]T
	var current []T
	used := opts.BaseTokens

	for _, item := range items {
		cost := EstimateTokens(text(item))

		full := opts.MaxItems > 0 && len(current) >= opts.MaxItems
		if len(current) > 0 && (full || used+cost > limit) {
			batches = append(batches, current)
			current = nil
			used = opts.BaseTokens
		}

		current = append(current, item)
		used += cost
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
