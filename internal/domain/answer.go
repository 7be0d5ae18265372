package domain

import "time"

// Preference selects which documentation labels an answer draws on.
type Preference string

const (
	PreferOfficial  Preference = "official"
	PreferCommunity Preference = "community"
	PreferBoth      Preference = "both"
)

// Labels returns the source labels to answer from, official first.
func (p Preference) Labels() []SourceLabel {
	switch p {
	case PreferOfficial:
		return []SourceLabel{SourceOfficial}
	case PreferCommunity:
		return []SourceLabel{SourceCommunity}
	default:
		return []SourceLabel{SourceOfficial, SourceCommunity}
	}
}

// Question is an answer request.
type Question struct {
	Query       string     `json:"query"`
	Technology  string     `json:"technology"`
	CodeContext string     `json:"code_context,omitempty"`
	Preference  Preference `json:"preference"`
	TopK        int        `json:"top_k,omitempty"`
}

// Solution is a generated answer grounded on one source label.
type Solution struct {
	SourceLabel SourceLabel    `json:"source_type"`
	Answer      string         `json:"answer"`
	CodeChanges string         `json:"code_changes,omitempty"`
	References  []ScoredResult `json:"references"`
	Confidence  float64        `json:"confidence_score"`
}

// Answer holds the per-label solutions for one question.
type Answer struct {
	Query     string        `json:"query"`
	Official  *Solution     `json:"official_solution,omitempty"`
	Community *Solution     `json:"community_solution,omitempty"`
	Elapsed   time.Duration `json:"execution_time"`
	Timestamp time.Time     `json:"timestamp"`
}
