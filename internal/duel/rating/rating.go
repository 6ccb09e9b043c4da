// Package rating holds the pure MMR adjustment and tier bucketing rules.
package rating

// Adjustment constants.
const (
	placementWin  = 300 // first ranked win lands at the Silver III baseline
	topTierFloor  = 1500
	topTierDelta  = 100
	standardDelta = 25

	divisionSpan = 100
	tierSpan     = 300
	upperSpan    = 1000 // 1500..2499
	topTierStart = 2500
)

// Adjust computes a new rating from the current one and the match result.
// A nil current rating means the participant is unranked (placement).
// Draws never call Adjust; the recorded change is zero instead.
//
// Once a participant reaches 1500 a loss floors at 1500 rather than dropping
// them out of the upper tier.
func Adjust(current *int, win bool) int {
	if current == nil {
		if win {
			return placementWin
		}
		return 0
	}

	mmr := *current
	if mmr >= topTierFloor {
		if win {
			return mmr + topTierDelta
		}
		if mmr-topTierDelta < topTierFloor {
			return topTierFloor
		}
		return mmr - topTierDelta
	}

	if win {
		return mmr + standardDelta
	}
	if mmr-standardDelta < 0 {
		return 0
	}
	return mmr - standardDelta
}

// Tier names, lowest first.
var tierNames = []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond"}

const (
	TierUpper = "Master"
	TierTop   = "Grandmaster"
)

// Info describes where a rating sits: tier name, division within the tier
// (3 = lowest, 1 = highest, 0 = tier has no divisions) and progress through
// the current bucket in percent.
type Info struct {
	Tier            string
	Division        int
	ProgressPercent int
}

// TierOf buckets a rating: five 300-point tiers of three 100-point
// divisions, then a wide undivided upper tier, then an unbounded top tier
// whose progress is always 100.
func TierOf(mmr int) Info {
	if mmr < 0 {
		mmr = 0
	}

	if mmr >= topTierStart {
		return Info{Tier: TierTop, ProgressPercent: 100}
	}
	if mmr >= topTierFloor {
		return Info{
			Tier:            TierUpper,
			ProgressPercent: (mmr - topTierFloor) * 100 / upperSpan,
		}
	}

	tier := mmr / tierSpan
	within := mmr % tierSpan
	division := 3 - within/divisionSpan
	return Info{
		Tier:            tierNames[tier],
		Division:        division,
		ProgressPercent: (within % divisionSpan) * 100 / divisionSpan,
	}
}
