package event

// ScoredEvent is an access event annotated with the scorer's output. This is
// the unit consumed by export and any presentation layer.
type ScoredEvent struct {
	AccessEvent

	IsAnomaly bool    `json:"is_anomaly"`
	RawScore  float64 `json:"raw_score"`
	RiskScore int     `json:"risk_score"`
}

// HighRisk reports whether the event's risk score exceeds the threshold.
// Thresholding is a presentation decision; the scorer never consumes it.
func (s ScoredEvent) HighRisk(threshold int) bool {
	return s.RiskScore > threshold
}
