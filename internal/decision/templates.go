package decision

import "github.com/onebar-systems/onebar/internal/belief"

// Spec is one template's per-template config record: expected reward
// in ticks, target/stop ticks, max holding time, the thesis constraint
// it depends on, and the floor on that constraint.
type Spec struct {
	ID                 TemplateID
	ThesisConstraint   int
	DetectFloor        float64 // minimum effective_t to consider the template active
	ExpectedRewardTicks float64
	TargetTicks        int
	StopTicksMax       int
	StopTicksMin       int
	MaxMinutes         int
	ThesisFloor        float64 // C6 flattens when effective_t falls below this
	VolExitATRMultiple float64
	ExpectedMoveTicks  float64 // used by C4's cost-per-expected-move calculation
}

// templateTable is the static dispatch table replacing a class
// hierarchy of strategies. Every template is a pure config record
// plus the shared Detect function below (entry planning happens in
// Engine.Decide) —
// there is deliberately no per-template method set, since all four
// templates share the exact same EUC evaluation shape and differ only
// in these numbers.
var templateTable = map[TemplateID]Spec{
	K1: {
		ID: K1, ThesisConstraint: 0 /* F1 */, DetectFloor: 0.50,
		ExpectedRewardTicks: 8, TargetTicks: 8, StopTicksMax: 10, StopTicksMin: 4,
		MaxMinutes: 30, ThesisFloor: 0.40, VolExitATRMultiple: 1.8, ExpectedMoveTicks: 10,
	},
	K2: {
		ID: K2, ThesisConstraint: 1 /* F2 */, DetectFloor: 0.50,
		ExpectedRewardTicks: 6, TargetTicks: 6, StopTicksMax: 8, StopTicksMin: 3,
		MaxMinutes: 20, ThesisFloor: 0.40, VolExitATRMultiple: 1.8, ExpectedMoveTicks: 8,
	},
	K3: {
		ID: K3, ThesisConstraint: 2 /* F3 */, DetectFloor: 0.50,
		ExpectedRewardTicks: 12, TargetTicks: 12, StopTicksMax: 12, StopTicksMin: 5,
		MaxMinutes: 45, ThesisFloor: 0.40, VolExitATRMultiple: 2.0, ExpectedMoveTicks: 14,
	},
	K4: {
		ID: K4, ThesisConstraint: 3 /* F4 */, DetectFloor: 0.50,
		ExpectedRewardTicks: 10, TargetTicks: 10, StopTicksMax: 12, StopTicksMin: 4,
		MaxMinutes: 60, ThesisFloor: 0.40, VolExitATRMultiple: 2.0, ExpectedMoveTicks: 12,
	},
}

// templatesAllowedForTier is the capital-tier-to-allowed-templates table.
var templatesAllowedForTier = map[Tier][]TemplateID{
	TierS: {K1, K2},
	TierA: {K1, K2, K3},
	TierB: {K1, K2, K3, K4},
}

// SpecFor exposes a template's config record to other packages (the
// trade manager needs ThesisFloor/MaxMinutes/VolExitATRMultiple for its
// exit ladder).
func SpecFor(id TemplateID) Spec { return templateTable[id] }

// Detect implements the per-template detection predicate: the belief
// engine's effective likelihood for the template's thesis constraint
// must clear its detect floor.
func Detect(spec Spec, beliefs belief.State) bool {
	return beliefs.Constraints[spec.ThesisConstraint].Effective >= spec.DetectFloor
}

func tierFor(equityUSD float64) (Tier, bool) {
	switch {
	case equityUSD >= 7500:
		return TierB, true
	case equityUSD >= 2500:
		return TierA, true
	case equityUSD >= 1500:
		return TierS, true
	default:
		return "", false
	}
}
