package audit

import "fmt"

// Finding is one risk the engine judged worth reporting.
type Finding struct {
	RiskType       string `json:"risk_type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// AuditReport is the run's structured output. A failed synthesis still
// produces a report, with Error and RawResponse set, so batches always yield
// one report per case.
type AuditReport struct {
	OverallRiskLevel string    `json:"overall_risk_level,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	Findings         []Finding `json:"findings,omitempty"`

	Error       string `json:"error,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// Failed reports whether the report carries an error instead of content.
func (r *AuditReport) Failed() bool {
	return r.Error != ""
}

// Validate checks the fixed report schema, reporting field-level errors with
// their paths. An error-flagged report is exempt; it documents a failure.
func (r *AuditReport) Validate() []FieldError {
	if r.Failed() {
		return nil
	}
	var errs []FieldError
	if r.Summary == "" {
		errs = append(errs, FieldError{Path: "summary", Message: "summary is required"})
	}
	for i, f := range r.Findings {
		if f.RiskType == "" {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("findings[%d].risk_type", i),
				Message: "risk_type is required",
			})
		}
		if f.Description == "" {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("findings[%d].description", i),
				Message: "description is required",
			})
		}
	}
	return errs
}
