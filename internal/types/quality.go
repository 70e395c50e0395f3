package types

// IssueType classifies a quality issue
type IssueType string

// Issue types
const (
	IssueFactual         IssueType = "factual"
	IssueStyle           IssueType = "style"
	IssueFormatting      IssueType = "formatting"
	IssuePersonaMismatch IssueType = "persona_mismatch"
)

// Severity ranks how urgently an issue needs human attention
type Severity string

// Severities
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Metric names and their fixed weights in the overall score
const (
	MetricFactualAccuracy  = "factual_accuracy"
	MetricStyleConsistency = "style_consistency"
	MetricPersonaAlignment = "persona_alignment"

	WeightFactualAccuracy  = 0.4
	WeightStyleConsistency = 0.3
	WeightPersonaAlignment = 0.3

	// HighSeverityScoreCap bounds the overall score when any high issue exists
	HighSeverityScoreCap = 0.5
)

// Issue is one finding attached to a quality report
type Issue struct {
	Type       IssueType `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Location   string    `json:"location,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Metric is one weighted sub-score
type Metric struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// QualityReport is the weighted scoring attached 1:1 to a revision
type QualityReport struct {
	Overall float64  `json:"overall"`
	Metrics []Metric `json:"metrics"`
	Issues  []Issue  `json:"issues,omitempty"`
}

// HasIssue reports whether the report contains an issue of the given type and severity
func (r *QualityReport) HasIssue(t IssueType, s Severity) bool {
	for _, issue := range r.Issues {
		if issue.Type == t && issue.Severity == s {
			return true
		}
	}
	return false
}

// MetricScore returns the named metric's score, or -1 when absent
func (r *QualityReport) MetricScore(name string) float64 {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Score
		}
	}
	return -1
}
