package domain

// Strategy is a named weighting configuration blending the rule score and
// the ML score into a final decision. Weights conventionally sum to 1 but
// are not required to.
type Strategy struct {
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	MLWeight    float64 `json:"mlWeight"`
	RuleWeight  float64 `json:"ruleWeight"`
	Description string  `json:"description"`
}

// DefaultStrategies returns the built-in strategy catalog.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "Balanced-Ensemble-v1", Version: "1.2.0", MLWeight: 0.6, RuleWeight: 0.4, Description: "Standard risk balancing."},
		{Name: "Strict-Geo-Fencing", Version: "2.0.1", MLWeight: 0.3, RuleWeight: 0.7, Description: "Aggressive impossible travel detection."},
		{Name: "High-Confidence-ML", Version: "3.5.0", MLWeight: 0.85, RuleWeight: 0.15, Description: "Heavy reliance on neural patterns."},
		{Name: "Retail-Aggressive", Version: "1.0.4", MLWeight: 0.5, RuleWeight: 0.5, Description: "Tuned for seasonal spending spikes."},
	}
}
