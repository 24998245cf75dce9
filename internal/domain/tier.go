package domain

// Tier is the subscription level governing usage caps and the quality floor
// of fallback models.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// KnownTiers lists tiers from least to most capable.
var KnownTiers = []Tier{TierFree, TierStarter, TierPro, TierPremium}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, known := range KnownTiers {
		if t == known {
			return true
		}
	}
	return false
}

// Rank returns the tier's position in the capability ladder, 0 for free.
// Unknown tiers rank as free so a misconfigured caller never gains access.
func (t Tier) Rank() int {
	for i, known := range KnownTiers {
		if t == known {
			return i
		}
	}
	return 0
}
