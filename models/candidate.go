package models

// Candidate is a waiting user's snapshot at enqueue time. Apart from the
// relaxation consent flag and a refreshed arrival time on re-join, it never
// mutates while in the pool.
type Candidate struct {
	CandidateID        string            `json:"candidateId"`
	Nickname           string            `json:"nickname"`
	Bio                string            `json:"bio,omitempty"`
	PersonalityAnswers map[string]string `json:"personalityAnswers"`
	Gender             string            `json:"gender,omitempty"`
	GenderPreference   string            `json:"genderPreference,omitempty"`
	Relaxed            bool              `json:"relaxed,omitempty"`
	JoinedAt           float64           `json:"joinedAt"`
}

// Participant identifies one side of a committed match.
type Participant struct {
	CandidateID string `json:"candidateId"`
	Nickname    string `json:"nickname"`
	Gender      string `json:"gender,omitempty"`
}

// MatchRecord is the artifact of a committed pairing.
type MatchRecord struct {
	MatchID   string      `json:"matchId"`
	UserA     Participant `json:"userA"`
	UserB     Participant `json:"userB"`
	Reason    string      `json:"reason"`
	Score     float64     `json:"score"`
	Timestamp float64     `json:"timestamp"`
}

// MatchEvent is published on the match channel when a pair commits.
type MatchEvent struct {
	Type    string      `json:"type"`
	Payload MatchRecord `json:"payload"`
}
