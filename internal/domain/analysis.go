package domain

// Decision is the terminal outcome of a risk analysis.
type Decision string

const (
	DecisionApprove      Decision = "APPROVE"
	DecisionBlock        Decision = "BLOCK"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// RiskFlag identifies a heuristic that fired during rule scoring.
type RiskFlag string

const (
	FlagImpossibleTravel RiskFlag = "IMPOSSIBLE_TRAVEL"
	FlagVelocitySpike    RiskFlag = "VELOCITY_SPIKE"
	FlagNewDevice        RiskFlag = "NEW_DEVICE"
	FlagHighValue        RiskFlag = "HIGH_VALUE"
	FlagRiskyGeo         RiskFlag = "RISKY_GEO"
	FlagPatternMismatch  RiskFlag = "PATTERN_MISMATCH"
)

// RiskAnalysis is the immutable result of scoring one transaction.
// RuleOutput and MLOutput are the pre-blend component scores; Score is
// the blended result rounded and clamped to [0, 100].
type RiskAnalysis struct {
	ID               string     `json:"id"`
	TransactionID    string     `json:"transactionId"`
	UserID           string     `json:"userId"`
	Score            int        `json:"score"`
	Decision         Decision   `json:"decision"`
	Flags            []RiskFlag `json:"flags"`
	RuleOutput       int        `json:"ruleOutput"`
	MLOutput         int        `json:"mlOutput"`
	ProcessingTimeMs float64    `json:"processingTimeMs"`
	IsFallback       bool       `json:"isFallback"`
	Timestamp        int64      `json:"timestamp"`
	StrategyName     string     `json:"strategyName"`

	// AmbiguitySignal is a human-readable hint attached to MANUAL_REVIEW
	// decisions for the review queue. Presentation only.
	AmbiguitySignal string `json:"ambiguitySignal,omitempty"`
}

// Flagged reports whether the given flag fired for this analysis.
func (a *RiskAnalysis) Flagged(flag RiskFlag) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
