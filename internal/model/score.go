package model

import "time"

// RiskTier is one of five ordered classifications derived from the score
// percentage via a survey's RiskTierConfig.
type RiskTier string

const (
	TierCritical  RiskTier = "CRITICAL"
	TierHigh      RiskTier = "HIGH"
	TierModerate  RiskTier = "MODERATE"
	TierGood      RiskTier = "GOOD"
	TierExcellent RiskTier = "EXCELLENT"
)

// Package is a recommendable service tier.
type Package string

const (
	PackageEssential   Package = "ESSENTIAL"
	PackageProactive   Package = "PROACTIVE"
	PackageIntegral    Package = "INTEGRAL"
	PackageMaintenance Package = "MAINTENANCE"
)

// RiskTierConfig partitions the 0-100% score space into five tiers with
// inclusive upper bounds: CRITICAL (0..CriticalMax), HIGH (..HighMax),
// MODERATE (..ModerateMax), GOOD (..GoodMax), EXCELLENT (above GoodMax).
// One config per survey; defaults are synthesized on first use.
type RiskTierConfig struct {
	SurveyID    string    `json:"survey_id"`
	CriticalMax float64   `json:"critical_max"`
	HighMax     float64   `json:"high_max"`
	ModerateMax float64   `json:"moderate_max"`
	GoodMax     float64   `json:"good_max"`
	CreatedAt   time.Time `json:"created_at"`
}

// Default risk tier boundaries, synthesized when a survey has no config.
const (
	DefaultCriticalMax float64 = 20
	DefaultHighMax     float64 = 40
	DefaultModerateMax float64 = 60
	DefaultGoodMax     float64 = 80
)

// DefaultRiskTierConfig returns the 20/40/60/80 boundary configuration for a
// survey.
func DefaultRiskTierConfig(surveyID string) RiskTierConfig {
	return RiskTierConfig{
		SurveyID:    surveyID,
		CriticalMax: DefaultCriticalMax,
		HighMax:     DefaultHighMax,
		ModerateMax: DefaultModerateMax,
		GoodMax:     DefaultGoodMax,
	}
}

// PackageRecommendation maps a (survey, tier) pair to recommended packages.
// A lookup miss defaults to Essential with no secondary.
type PackageRecommendation struct {
	ID        string   `json:"id"`
	SurveyID  string   `json:"survey_id"`
	RiskTier  RiskTier `json:"risk_tier"`
	Primary   Package  `json:"primary"`
	Secondary *Package `json:"secondary,omitempty"`
}

// SectionScore is the per-section rollup inside a ScoreResult.
type SectionScore struct {
	Title      string  `json:"title"`
	Points     int     `json:"points"`
	MaxPoints  int     `json:"max_points"`
	Percentage float64 `json:"percentage"`
}

// ScoreResult is the single persisted score snapshot for a submission.
// Exactly one exists per submission; recalculation overwrites it in place.
type ScoreResult struct {
	SubmissionID    string                  `json:"submission_id"`
	TotalPoints     int                     `json:"total_points"`
	ScorePercentage float64                 `json:"score_percentage"`
	RiskTier        RiskTier                `json:"risk_tier"`
	PrimaryPackage  Package                 `json:"primary_package"`
	SecondaryPkg    *Package                `json:"secondary_package,omitempty"`
	SectionScores   map[string]SectionScore `json:"section_scores"`
	CalculatedAt    time.Time               `json:"calculated_at"`
	RecalculatedAt  time.Time               `json:"recalculated_at"`
}

// ScoreListing is a denormalized ScoreResult row for listings and export.
type ScoreListing struct {
	SubmissionID    string    `json:"submission_id"`
	ProspectName    string    `json:"prospect_name"`
	ProspectEmail   string    `json:"prospect_email"`
	SurveyTitle     string    `json:"survey_title"`
	TotalPoints     int       `json:"total_points"`
	ScorePercentage float64   `json:"score_percentage"`
	RiskTier        RiskTier  `json:"risk_tier"`
	PrimaryPackage  Package   `json:"primary_package"`
	SecondaryPkg    *Package  `json:"secondary_package,omitempty"`
	CalculatedAt    time.Time `json:"calculated_at"`
}
