package pricing

import (
	"fmt"

	"orchestrator/internal/domain"
)

// Selection is the outcome of picking a model under budget pressure.
type Selection struct {
	Model      string
	CostUSD    float64
	Downgraded bool
	Reason     string
}

// Selector applies the greedy monotone degradation policy: prefer full
// quality, degrade under budget pressure, never refuse a request for budget
// reasons. Select is a pure function of its inputs and the tables.
type Selector struct {
	tables *Tables
}

// NewSelector builds a selector over the given tables; nil falls back to the
// compiled-in defaults.
func NewSelector(tables *Tables) *Selector {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Selector{tables: tables}
}

// Tables exposes the lookup data, for callers that need budget figures.
func (s *Selector) Tables() *Tables { return s.tables }

// Select picks the model that will actually serve the request.
//
// The preferred model wins whenever its cost fits the remaining budget.
// Otherwise the capability-ordered alternative chain is walked and the first
// affordable entry wins; the order is task appropriateness, deliberately not
// sorted by price. When no paid option fits, the zero-cost ladder for the
// (tier, task type) pair answers, so this never fails.
func (s *Selector) Select(preferred string, remainingBudgetUSD float64, taskType domain.TaskType, tier domain.Tier) Selection {
	cost := s.tables.Cost(preferred)
	if cost <= remainingBudgetUSD {
		return Selection{Model: preferred, CostUSD: cost}
	}

	for _, alt := range s.tables.Alternatives[preferred] {
		altCost := s.tables.Cost(alt)
		if altCost <= remainingBudgetUSD {
			return Selection{
				Model:      alt,
				CostUSD:    altCost,
				Downgraded: true,
				Reason: fmt.Sprintf("monthly budget too low for %s ($%.2f needed, $%.2f left); using %s",
					preferred, cost, maxZero(remainingBudgetUSD), alt),
			}
		}
	}

	free := s.tables.FreeModel(tier, taskType)
	return Selection{
		Model:      free,
		CostUSD:    0,
		Downgraded: free != preferred,
		Reason: fmt.Sprintf("monthly budget exhausted for %s; using free model %s for %s tier",
			preferred, free, tier),
	}
}

func maxZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
