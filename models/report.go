package models

// Report is the moderation signal submitted against a match participant.
// Only the signal is stored, never chat content.
type Report struct {
	MatchID      string  `json:"matchId"`
	ReporterID   string  `json:"reporterId"`
	ReportedID   string  `json:"reportedId"`
	Reason       string  `json:"reason"`
	CustomReason string  `json:"customReason,omitempty"`
	Time         float64 `json:"time"`
}
