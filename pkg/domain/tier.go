package domain

import "strings"

// Tier is a customer service level. It drives both triage priority and
// rate-limit generosity.
type Tier string

const (
	// TierPlatinum is the top service level.
	TierPlatinum Tier = "platinum"
	// TierGold is the second service level.
	TierGold Tier = "gold"
	// TierSilver is the third service level.
	TierSilver Tier = "silver"
	// TierStandard is the default service level.
	TierStandard Tier = "standard"
)

// Premium reports whether the tier is one of the top two service levels.
func (t Tier) Premium() bool {
	return t == TierPlatinum || t == TierGold
}

// ParseTier normalises a stored tier label. Unknown labels map to
// TierStandard so legacy records (basic, pro, free) keep working.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPlatinum:
		return TierPlatinum
	case TierGold:
		return TierGold
	case TierSilver:
		return TierSilver
	default:
		return TierStandard
	}
}
