package types

// Violation is a single structural failure against a format contract
type Violation struct {
	Rule     string `json:"rule"`
	Details  string `json:"details"`
	Location string `json:"location,omitempty"`
}

// ComplianceResult is the outcome of a structural check
type ComplianceResult struct {
	Format     OutputFormat `json:"format"`
	Passed     bool         `json:"passed"`
	Violations []Violation  `json:"violations,omitempty"`
	Template   *TemplateRef `json:"template,omitempty"`
}
