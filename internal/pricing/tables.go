package pricing

import (
	"orchestrator/internal/domain"
)

// Tables bundles the static lookup data the selector operates on: per-model
// invocation cost, monthly budget per tier, capability-ordered
// cheaper-alternative chains, and the free-model ladder per (tier, task type).
// All numbers are configuration, not logic; see Load for the TOML override.
type Tables struct {
	// ModelCostUSD maps a model identifier to its per-invocation cost.
	ModelCostUSD map[string]float64
	// TierBudgetUSD maps a tier to its monthly monetary allowance.
	TierBudgetUSD map[domain.Tier]float64
	// Alternatives maps a model to its ordered substitutes, most to least
	// capable. The order is task appropriateness, not price.
	Alternatives map[string][]string
	// FreeLadder maps a task type to zero-cost models ordered best first.
	// Higher tiers take from the front, lower tiers from the back.
	FreeLadder map[domain.TaskType][]string
	// DefaultModelCostUSD is charged for model identifiers missing from
	// ModelCostUSD, so a misconfigured identifier can never spend unbounded.
	DefaultModelCostUSD float64
}

// Cost returns the configured cost for model, or the conservative default
// for unknown identifiers.
func (t *Tables) Cost(model string) float64 {
	if c, ok := t.ModelCostUSD[model]; ok {
		return c
	}
	return t.DefaultModelCostUSD
}

// Budget returns the monthly budget for the tier; unknown tiers get zero.
func (t *Tables) Budget(tier domain.Tier) float64 {
	return t.TierBudgetUSD[tier]
}

// FreeModel returns the zero-cost model for the tier and task type. Higher
// tiers still receive the best available free model; lower tiers the
// baseline. The ladder always has at least one entry per known task type, so
// this never comes back empty for valid input.
func (t *Tables) FreeModel(tier domain.Tier, taskType domain.TaskType) string {
	ladder := t.FreeLadder[taskType]
	if len(ladder) == 0 {
		ladder = t.FreeLadder[domain.TaskTypeChat]
	}
	if len(ladder) == 0 {
		return ""
	}
	// Top half of the tier ladder gets the best free model.
	if tier.Rank() >= len(domain.KnownTiers)/2 {
		return ladder[0]
	}
	return ladder[len(ladder)-1]
}

// DefaultTables returns the compiled-in tables. The numbers mirror published
// pricing at the time of writing and are expected to drift; deployments
// override them via a TOML file (see Load).
func DefaultTables() *Tables {
	return &Tables{
		DefaultModelCostUSD: 0.50,
		ModelCostUSD: map[string]float64{
			// chat
			"gemini-2.5-pro":        0.05,
			"gemini-2.5-flash":      0.01,
			"gemini-2.0-flash":      0,
			"gemini-2.0-flash-lite": 0,
			// image
			"imagen-4-ultra":         1.00,
			"imagen-4":               0.50,
			"imagen-3":               0.25,
			"gemini-2.5-flash-image": 0.10,
			"gemini-2.0-flash-image": 0,
			// image edit
			"gemini-2.5-image-edit": 0.20,
			"gemini-2.0-image-edit": 0,
			// video
			"veo-3":       2.50,
			"veo-2":       1.20,
			"veo-3-fast":  0.60,
			"video-draft": 0,
			// slides
			"slides-agent-pro":  0.40,
			"slides-agent":      0.20,
			"slides-agent-lite": 0,
			// speech
			"chirp-3-hd":     0.08,
			"chirp-3":        0.04,
			"chirp-standard": 0,
			// music
			"lyria-2":    0.80,
			"lyria-1":    0.40,
			"lyria-lite": 0,
		},
		TierBudgetUSD: map[domain.Tier]float64{
			domain.TierFree:    0,
			domain.TierStarter: 4.99,
			domain.TierPro:     19.99,
			domain.TierPremium: 49.99,
		},
		Alternatives: map[string][]string{
			"gemini-2.5-pro":        {"gemini-2.5-flash", "gemini-2.0-flash"},
			"imagen-4-ultra":        {"imagen-4", "imagen-3", "gemini-2.5-flash-image"},
			"imagen-4":              {"imagen-3", "gemini-2.5-flash-image"},
			"imagen-3":              {"gemini-2.5-flash-image"},
			"gemini-2.5-image-edit": {"gemini-2.0-image-edit"},
			"veo-3":                 {"veo-2", "veo-3-fast"},
			"veo-2":                 {"veo-3-fast"},
			"slides-agent-pro":      {"slides-agent"},
			"chirp-3-hd":            {"chirp-3"},
			"lyria-2":               {"lyria-1"},
		},
		FreeLadder: map[domain.TaskType][]string{
			domain.TaskTypeChat:      {"gemini-2.0-flash", "gemini-2.0-flash-lite"},
			domain.TaskTypeImage:     {"gemini-2.0-flash-image"},
			domain.TaskTypeImageEdit: {"gemini-2.0-image-edit"},
			domain.TaskTypeVideo:     {"video-draft"},
			domain.TaskTypePPT:       {"slides-agent-lite"},
			domain.TaskTypeTTS:       {"chirp-standard"},
			domain.TaskTypeMusic:     {"lyria-lite"},
		},
	}
}
