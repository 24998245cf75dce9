package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
)

func TestSelectPreferredFitsBudget(t *testing.T) {
	s := NewSelector(nil)

	sel := s.Select("imagen-4", 4.99, domain.TaskTypeImage, domain.TierStarter)

	if sel.Model != "imagen-4" {
		t.Fatalf("Select() model = %q, want imagen-4", sel.Model)
	}
	if sel.Downgraded {
		t.Fatal("Select() downgraded = true, want false")
	}
	if sel.CostUSD != 0.50 {
		t.Fatalf("Select() cost = %v, want 0.50", sel.CostUSD)
	}
}

func TestSelectWalksAlternativeChainInOrder(t *testing.T) {
	s := NewSelector(nil)

	// imagen-4-ultra costs 1.00; with 0.30 left the chain should land on
	// imagen-3 (0.25) even though gemini-2.5-flash-image (0.10) is cheaper:
	// order is capability, not price.
	sel := s.Select("imagen-4-ultra", 0.30, domain.TaskTypeImage, domain.TierPro)

	if sel.Model != "imagen-3" {
		t.Fatalf("Select() model = %q, want imagen-3", sel.Model)
	}
	if !sel.Downgraded {
		t.Fatal("Select() downgraded = false, want true")
	}
	if sel.Reason == "" {
		t.Fatal("Select() reason empty, want human-readable explanation")
	}
}

func TestSelectUnknownModelGetsConservativeDefaultCost(t *testing.T) {
	s := NewSelector(nil)

	sel := s.Select("no-such-model", 10.0, domain.TaskTypeChat, domain.TierPro)

	if sel.CostUSD != s.Tables().DefaultModelCostUSD {
		t.Fatalf("Select() cost = %v, want default %v", sel.CostUSD, s.Tables().DefaultModelCostUSD)
	}
}

func TestSelectFreeFloorGuarantee(t *testing.T) {
	s := NewSelector(nil)

	for _, tier := range domain.KnownTiers {
		for _, taskType := range domain.KnownTaskTypes {
			for _, budget := range []float64{0, 0.001, 0.09} {
				sel := s.Select("imagen-4-ultra", budget, taskType, tier)
				if sel.Model == "" {
					t.Fatalf("Select(%s/%s, %v) returned no model", tier, taskType, budget)
				}
				if got := s.Tables().Cost(sel.Model); got > budget {
					t.Fatalf("Select(%s/%s, %v) cost %v exceeds budget", tier, taskType, budget, got)
				}
			}
		}
	}
}

func TestSelectFreeLadderRespectsTier(t *testing.T) {
	s := NewSelector(nil)

	premium := s.Select("gemini-2.5-pro", 0, domain.TaskTypeChat, domain.TierPremium)
	free := s.Select("gemini-2.5-pro", 0, domain.TaskTypeChat, domain.TierFree)

	if premium.Model != "gemini-2.0-flash" {
		t.Fatalf("premium free model = %q, want gemini-2.0-flash", premium.Model)
	}
	if free.Model != "gemini-2.0-flash-lite" {
		t.Fatalf("free-tier free model = %q, want gemini-2.0-flash-lite", free.Model)
	}
}

func TestSelectIsPure(t *testing.T) {
	s := NewSelector(nil)

	first := s.Select("veo-3", 1.50, domain.TaskTypeVideo, domain.TierPro)
	for i := 0; i < 10; i++ {
		again := s.Select("veo-3", 1.50, domain.TaskTypeVideo, domain.TierPro)
		if again != first {
			t.Fatalf("Select() not pure: %+v vs %+v", again, first)
		}
	}
}

// Starter-tier depletion: sequential image requests at $0.50 each are served
// at full price while the cost fits, then degrade through the chain and end
// on the tier-appropriate free model, never refusing.
func TestStarterBudgetDepletionScenario(t *testing.T) {
	s := NewSelector(nil)
	budget := s.Tables().Budget(domain.TierStarter)
	require.Equal(t, 4.99, budget)

	spent := 0.0
	fullPrice := 0
	for {
		sel := s.Select("imagen-4", budget-spent, domain.TaskTypeImage, domain.TierStarter)
		if sel.Downgraded {
			break
		}
		require.Equal(t, "imagen-4", sel.Model)
		// Charged cost never exceeds the remaining budget observed before
		// the call.
		require.LessOrEqual(t, sel.CostUSD, budget-spent)
		spent += sel.CostUSD
		fullPrice++
	}
	assert.Equal(t, 9, fullPrice)
	assert.InDelta(t, 4.50, spent, 1e-9)

	// Next request degrades through the chain while alternatives still fit.
	sel := s.Select("imagen-4", budget-spent, domain.TaskTypeImage, domain.TierStarter)
	assert.True(t, sel.Downgraded)
	assert.Equal(t, "imagen-3", sel.Model)

	// With the budget fully consumed the free floor answers.
	sel = s.Select("imagen-4", 0, domain.TaskTypeImage, domain.TierStarter)
	assert.True(t, sel.Downgraded)
	assert.Equal(t, "gemini-2.0-flash-image", sel.Model)
	assert.Zero(t, sel.CostUSD)
	assert.NotEmpty(t, sel.Reason)
}
