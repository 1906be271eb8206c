package audit

import "fmt"

// Case is the immutable input for one audit run.
type Case struct {
	CaseID             string         `json:"case_id,omitempty"`
	PatientProfile     map[string]any `json:"patient_profile"`
	PrescriptionOrders []Prescription `json:"prescription_orders"`
}

type Prescription struct {
	DrugName     string `json:"drug_name"`
	DosePerAdmin Dose   `json:"dose_per_admin"`
	Frequency    string `json:"frequency"`
	Route        string `json:"route"`
}

type Dose struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// FieldError reports one validation failure with the path of the offending
// field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateCase checks the structural requirements of a case. It returns the
// full list of field errors instead of stopping at the first.
func ValidateCase(c *Case) []FieldError {
	var errs []FieldError
	if len(c.PrescriptionOrders) == 0 {
		errs = append(errs, FieldError{Path: "prescription_orders", Message: "at least one prescription is required"})
	}
	for i, p := range c.PrescriptionOrders {
		if p.DrugName == "" {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("prescription_orders[%d].drug_name", i),
				Message: "drug name is required",
			})
		}
		if p.DosePerAdmin.Value < 0 {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("prescription_orders[%d].dose_per_admin.value", i),
				Message: "dose must not be negative",
			})
		}
	}
	return errs
}
