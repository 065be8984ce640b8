package engine

// ambiguitySignals is the fixed catalog of human-readable hints attached
// to MANUAL_REVIEW decisions for the review queue.
var ambiguitySignals = []string{
	"Mismatched Browser Entropy: Language headers do not match IP geolocation locale.",
	"Proxy/VPN Leak: Traffic originating from a known residential proxy network used for bulk scraping.",
	"Behavioral Anomaly: Transaction occurs outside of typical user wake/sleep cycle with high-value merchant.",
	"Velocity Cluster: Device hash associated with 3+ distinct user accounts in the last 60 minutes.",
	"Card Testing Pattern: Sequential transactions with small rounding variations at a low-verification merchant.",
	"High-Risk Sequence: First transaction after 90 days of inactivity directed to a high-liquidity merchant.",
}
