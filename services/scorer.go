package services

import (
	"fmt"
	"log"
	"math"
	"strings"

	"fairtalk_server/models"
)

// Scoring weights for the composite compatibility score.
const (
	WeightQuestion = 2.0
	WeightBio      = 1.5
	WeightFairness = 0.05
)

// Dynamic threshold breakpoints: the bar rises with queue congestion.
const (
	ThresholdBase    = 0.5
	ThresholdBusy    = 3.5
	ThresholdCrowded = 6.0

	relaxedFactor = 0.4
	relaxedFloor  = 0.1
)

// questionKeys are the fixed personality-question slots.
var questionKeys = []string{"q1", "q2", "q3", "q4"}

// BioTag pairs a semantic tag with the bio keywords that imply it.
type BioTag struct {
	Tag      string
	Keywords []string
}

// DefaultBioVocab is the fixed tag vocabulary. Order matters: only the first
// two matching tags are kept per candidate.
var DefaultBioVocab = []BioTag{
	{Tag: "playful", Keywords: []string{"playful", "funny", "joke", "witty", "humor"}},
	{Tag: "deep", Keywords: []string{"deep", "thoughtful", "philosophical", "soul"}},
	{Tag: "chill", Keywords: []string{"chill", "calm", "relaxed", "casual"}},
	{Tag: "energetic", Keywords: []string{"energetic", "excited", "hype", "expressive"}},
	{Tag: "listener", Keywords: []string{"listener", "quiet", "reserved", "reflective"}},
	{Tag: "curious", Keywords: []string{"curious", "explorer", "learner", "inquisitive"}},
}

// MatchScore is a successful pair evaluation.
type MatchScore struct {
	Score  float64
	Reason string
}

// Scorer computes pairwise compatibility. Vocab is pluggable so tests can
// pin the tag vocabulary down.
type Scorer struct {
	Vocab []BioTag
}

// NewScorer returns a Scorer with the default bio vocabulary.
func NewScorer() *Scorer {
	return &Scorer{Vocab: DefaultBioVocab}
}

// ExtractBioTags derives up to two semantic tags from free bio text by
// case-insensitive keyword containment, in vocabulary order.
func (s *Scorer) ExtractBioTags(bio string) []string {
	if bio == "" {
		return nil
	}
	text := strings.ToLower(bio)
	var tags []string
	for _, entry := range s.Vocab {
		for _, kw := range entry.Keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, entry.Tag)
				break
			}
		}
		if len(tags) == 2 {
			break
		}
	}
	return tags
}

// MinThreshold returns the minimum acceptable score for the given pool size.
func MinThreshold(poolSize int) float64 {
	switch {
	case poolSize >= 10:
		return ThresholdCrowded
	case poolSize >= 4:
		return ThresholdBusy
	default:
		return ThresholdBase
	}
}

// GenderCompatible reports whether the pair passes both directions of the
// gender-preference check. Symmetric in its arguments.
func GenderCompatible(a, b models.Candidate) bool {
	return prefersOK(a.GenderPreference, b.Gender) && prefersOK(b.GenderPreference, a.Gender)
}

func prefersOK(pref, gender string) bool {
	return pref == "" || pref == "any" || pref == gender
}

// Score evaluates candidate a against candidate b. now is unix seconds,
// poolSize drives the dynamic threshold. Returns nil when the pair is
// unscoreable or lands below a's effective threshold.
func (s *Scorer) Score(a, b models.Candidate, now float64, poolSize int) *MatchScore {
	if len(a.PersonalityAnswers) == 0 || len(b.PersonalityAnswers) == 0 {
		log.Printf("[Scorer] ⚠️ Unscoreable pair %s/%s: missing personality answers", a.CandidateID, b.CandidateID)
		return nil
	}

	// Signal A: questionnaire alignment
	exact := 0
	for _, q := range questionKeys {
		if a.PersonalityAnswers[q] == b.PersonalityAnswers[q] {
			exact++
		}
	}
	questionPoints := float64(exact) * WeightQuestion

	// Signal B: shared bio tags
	tagsA := s.ExtractBioTags(a.Bio)
	tagsB := s.ExtractBioTags(b.Bio)
	shared := 0
	for _, ta := range tagsA {
		for _, tb := range tagsB {
			if ta == tb {
				shared++
				break
			}
		}
	}
	bioPoints := float64(shared) * WeightBio

	// Signal C: fairness, rewards pairing with long waiters
	fairnessPoints := math.Max(0, now-b.JoinedAt) * WeightFairness

	total := questionPoints + bioPoints + fairnessPoints

	threshold := MinThreshold(poolSize)
	effective := threshold
	if a.Relaxed {
		effective = math.Max(relaxedFloor, threshold*relaxedFactor)
	}
	if total < effective {
		return nil
	}

	strength := "Low Traffic Compatibility"
	if questionPoints >= 4.0 {
		strength = "Strong Personality Alignment"
	} else if bioPoints >= 1.5 {
		strength = "Shared Interests"
	}

	reason := fmt.Sprintf("This recommendation was generated because %s was detected. Score: %.1f", strength, total)
	if a.Relaxed && total < threshold {
		reason = fmt.Sprintf("This recommendation was generated because %s was detected under the relaxed matching you approved. Score: %.1f", strength, total)
	}

	return &MatchScore{Score: total, Reason: reason}
}
