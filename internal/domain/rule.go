package domain

// RuleConfig defines an extension rule evaluated alongside the built-in
// heuristic checks. The CEL expression must evaluate to a boolean; when it
// fires, Weight points are added to the rule score and Flag is attached.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the transaction context.
	Expression string `json:"expression"`

	// Weight is the number of points added to the rule score when fired.
	Weight float64 `json:"weight"`

	// Flag attached to the analysis when the rule fires.
	// Defaults to PATTERN_MISMATCH when empty.
	Flag RiskFlag `json:"flag,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleResult is the output of evaluating one extension rule.
type RuleResult struct {
	RuleID    string   `json:"ruleId"`
	TxID      string   `json:"txId"`
	Fired     bool     `json:"fired"`
	Weight    float64  `json:"weight"`
	Flag      RiskFlag `json:"flag,omitempty"`
	Err       string   `json:"error,omitempty"`
	ProcessMs int64    `json:"processMs"`
}
