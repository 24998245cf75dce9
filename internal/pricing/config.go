package pricing

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"orchestrator/internal/domain"
)

type tablesFile struct {
	DefaultModelCostUSD float64             `toml:"default_model_cost_usd"`
	ModelCostUSD        map[string]float64  `toml:"model_cost_usd"`
	TierBudgetUSD       map[string]float64  `toml:"tier_budget_usd"`
	Alternatives        map[string][]string `toml:"alternatives"`
	FreeLadder          map[string][]string `toml:"free_ladder"`
}

// Load reads pricing tables from a TOML file. Values present in the file
// override the compiled-in defaults; absent sections keep them, so a
// deployment can pin just the numbers that changed.
func Load(path string) (*Tables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing config: %w", err)
	}
	var file tablesFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pricing config: %w", err)
	}

	if file.DefaultModelCostUSD > 0 {
		tables.DefaultModelCostUSD = file.DefaultModelCostUSD
	}
	for model, cost := range file.ModelCostUSD {
		tables.ModelCostUSD[model] = cost
	}
	for tier, budget := range file.TierBudgetUSD {
		tables.TierBudgetUSD[domain.Tier(tier)] = budget
	}
	for model, alts := range file.Alternatives {
		tables.Alternatives[model] = alts
	}
	for taskType, ladder := range file.FreeLadder {
		tables.FreeLadder[domain.TaskType(taskType)] = ladder
	}
	return tables, nil
}
