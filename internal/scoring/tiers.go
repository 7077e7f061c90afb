// Package scoring implements the deterministic scoring pipeline: per-response
// points, submission score computation, risk-tier classification, and package
// recommendation.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/presales-cli/internal/model"
)

// ValidateRiskTierConfig checks that boundaries are within [0,100] and
// non-decreasing.
func ValidateRiskTierConfig(c model.RiskTierConfig) error {
	var errs []string

	bounds := []struct {
		name  string
		value float64
	}{
		{"critical_max", c.CriticalMax},
		{"high_max", c.HighMax},
		{"moderate_max", c.ModerateMax},
		{"good_max", c.GoodMax},
	}
	for _, b := range bounds {
		if b.value < 0 || b.value > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", b.name))
		}
	}

	if c.HighMax < c.CriticalMax {
		errs = append(errs, "high_max must be >= critical_max")
	}
	if c.ModerateMax < c.HighMax {
		errs = append(errs, "moderate_max must be >= high_max")
	}
	if c.GoodMax < c.ModerateMax {
		errs = append(errs, "good_max must be >= moderate_max")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: risk config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TierFor classifies a score percentage. Upper bounds are inclusive: a
// percentage exactly equal to CriticalMax is CRITICAL, one just above is HIGH,
// and anything above GoodMax is EXCELLENT.
func TierFor(c model.RiskTierConfig, percentage float64) model.RiskTier {
	switch {
	case percentage <= c.CriticalMax:
		return model.TierCritical
	case percentage <= c.HighMax:
		return model.TierHigh
	case percentage <= c.ModerateMax:
		return model.TierModerate
	case percentage <= c.GoodMax:
		return model.TierGood
	default:
		return model.TierExcellent
	}
}

// RoundPercent rounds a percentage to two decimal places, half away from
// zero. Tier classification uses the rounded value, so a raw 20.004 lands in
// CRITICAL (as 20.00) while 20.006 lands in HIGH (as 20.01) under the default
// boundaries. Literal midpoints like 20.005 round by their nearest float64
// representation, which can sit on either side of the midpoint.
func RoundPercent(pct float64) float64 {
	return math.Round(pct*100) / 100
}
