package quota

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"orchestrator/internal/domain"
)

// Caps holds the three independent limits for one (feature, tier) pair. A
// cap of exactly 0 marks the feature unavailable for that tier.
type Caps struct {
	Daily   int `toml:"daily"`
	Weekly  int `toml:"weekly"`
	Monthly int `toml:"monthly"`
}

// Cap returns the limit for the given window kind.
func (c Caps) Cap(w domain.WindowKind) int {
	switch w {
	case domain.WindowDay:
		return c.Daily
	case domain.WindowWeek:
		return c.Weekly
	case domain.WindowMonth:
		return c.Monthly
	}
	return 0
}

// Unavailable reports whether any window bars the feature outright.
func (c Caps) Unavailable() bool {
	return c.Daily == 0 || c.Weekly == 0 || c.Monthly == 0
}

// Policy is the full cap table plus the warning threshold. Numbers are
// configuration data; see Load.
type Policy struct {
	// WarnFraction is the remaining-headroom fraction at or below which an
	// admission carries a non-blocking warning.
	WarnFraction float64
	Caps         map[domain.Tier]map[domain.TaskType]Caps
}

// FeatureCaps returns the caps for the pair; an unknown pair reads as
// unavailable so config gaps deny rather than admit.
func (p *Policy) FeatureCaps(tier domain.Tier, feature domain.TaskType) Caps {
	if byFeature, ok := p.Caps[tier]; ok {
		if caps, ok := byFeature[feature]; ok {
			return caps
		}
	}
	return Caps{}
}

// DefaultPolicy returns the compiled-in cap table.
func DefaultPolicy() *Policy {
	return &Policy{
		WarnFraction: 0.1,
		Caps: map[domain.Tier]map[domain.TaskType]Caps{
			domain.TierFree: {
				domain.TaskTypeChat:      {Daily: 20, Weekly: 100, Monthly: 300},
				domain.TaskTypeImage:     {Daily: 3, Weekly: 10, Monthly: 30},
				domain.TaskTypeImageEdit: {Daily: 3, Weekly: 10, Monthly: 30},
				domain.TaskTypeVideo:     {},
				domain.TaskTypePPT:       {Daily: 1, Weekly: 3, Monthly: 10},
				domain.TaskTypeTTS:       {Daily: 5, Weekly: 20, Monthly: 60},
				domain.TaskTypeMusic:     {},
			},
			domain.TierStarter: {
				domain.TaskTypeChat:      {Daily: 100, Weekly: 500, Monthly: 2000},
				domain.TaskTypeImage:     {Daily: 15, Weekly: 80, Monthly: 240},
				domain.TaskTypeImageEdit: {Daily: 10, Weekly: 50, Monthly: 150},
				domain.TaskTypeVideo:     {Daily: 3, Weekly: 10, Monthly: 30},
				domain.TaskTypePPT:       {Daily: 5, Weekly: 20, Monthly: 60},
				domain.TaskTypeTTS:       {Daily: 20, Weekly: 100, Monthly: 300},
				domain.TaskTypeMusic:     {Daily: 3, Weekly: 10, Monthly: 30},
			},
			domain.TierPro: {
				domain.TaskTypeChat:      {Daily: 300, Weekly: 1500, Monthly: 6000},
				domain.TaskTypeImage:     {Daily: 50, Weekly: 250, Monthly: 800},
				domain.TaskTypeImageEdit: {Daily: 30, Weekly: 150, Monthly: 500},
				domain.TaskTypeVideo:     {Daily: 10, Weekly: 40, Monthly: 120},
				domain.TaskTypePPT:       {Daily: 15, Weekly: 60, Monthly: 200},
				domain.TaskTypeTTS:       {Daily: 60, Weekly: 300, Monthly: 1000},
				domain.TaskTypeMusic:     {Daily: 10, Weekly: 40, Monthly: 120},
			},
			domain.TierPremium: {
				domain.TaskTypeChat:      {Daily: 1000, Weekly: 5000, Monthly: 20000},
				domain.TaskTypeImage:     {Daily: 150, Weekly: 800, Monthly: 2500},
				domain.TaskTypeImageEdit: {Daily: 100, Weekly: 500, Monthly: 1500},
				domain.TaskTypeVideo:     {Daily: 30, Weekly: 120, Monthly: 400},
				domain.TaskTypePPT:       {Daily: 50, Weekly: 200, Monthly: 600},
				domain.TaskTypeTTS:       {Daily: 200, Weekly: 1000, Monthly: 3000},
				domain.TaskTypeMusic:     {Daily: 30, Weekly: 120, Monthly: 400},
			},
		},
	}
}

type policyFile struct {
	WarnFraction float64                    `toml:"warn_fraction"`
	Caps         map[string]map[string]Caps `toml:"caps"`
}

// Load reads the cap table from a TOML file, overlaying the defaults.
func Load(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota config: %w", err)
	}
	var file policyFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse quota config: %w", err)
	}

	if file.WarnFraction > 0 {
		policy.WarnFraction = file.WarnFraction
	}
	for tier, byFeature := range file.Caps {
		dst, ok := policy.Caps[domain.Tier(tier)]
		if !ok {
			dst = map[domain.TaskType]Caps{}
			policy.Caps[domain.Tier(tier)] = dst
		}
		for feature, caps := range byFeature {
			dst[domain.TaskType(feature)] = caps
		}
	}
	return policy, nil
}
