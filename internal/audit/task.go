package audit

import (
	"encoding/json"
	"strings"
)

// Task is one typed risk check compiled from a case. Never mutated after
// creation; identified by its position in the task list.
type Task struct {
	RiskType    []string       `json:"riskType"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
}

// UnmarshalJSON accepts riskType as either a string or a list of strings and
// normalizes to a list.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		RiskType    json.RawMessage `json:"riskType"`
		Params      map[string]any  `json:"params"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Params = raw.Params
	t.Description = raw.Description
	t.RiskType = nil

	if len(raw.RiskType) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.RiskType, &single); err == nil {
		t.RiskType = []string{single}
		return nil
	}
	return json.Unmarshal(raw.RiskType, &t.RiskType)
}

// RiskCategory is the closed set of audit concern types. Unknown tags map to
// RiskUnsupported instead of falling through silently.
type RiskCategory int

const (
	RiskUnsupported RiskCategory = iota
	RiskIndicationMismatch
	RiskInteractionDrugDrug
	RiskAllergyConflict
	RiskContraindicationCondition
	RiskDosage
)

func (c RiskCategory) String() string {
	switch c {
	case RiskIndicationMismatch:
		return "INDICATION_MISMATCH"
	case RiskInteractionDrugDrug:
		return "INTERACTION_DRUG_DRUG"
	case RiskAllergyConflict:
		return "ALLERGY_CONFLICT"
	case RiskContraindicationCondition:
		return "CONTRAINDICATION_CONDITION"
	case RiskDosage:
		return "DOSAGE"
	default:
		return "UNSUPPORTED"
	}
}

var categoryByTag = map[string]RiskCategory{
	"INDICATION_MISMATCH":        RiskIndicationMismatch,
	"INTERACTION_DRUG_DRUG":      RiskInteractionDrugDrug,
	"ALLERGY_CONFLICT":           RiskAllergyConflict,
	"CONTRAINDICATION_CONDITION": RiskContraindicationCondition,
}

var dosageMarkers = []string{"DOSAGE", "FREQUENCY", "ROUTE", "DOSE_ADJUSTMENT"}

// Category resolves the task's primary risk category: exact match on the
// first tag, then a dosage-marker scan across all tags.
func (t *Task) Category() RiskCategory {
	if len(t.RiskType) == 0 {
		return RiskUnsupported
	}
	if cat, ok := categoryByTag[t.RiskType[0]]; ok {
		return cat
	}
	for _, tag := range t.RiskType {
		for _, marker := range dosageMarkers {
			if strings.Contains(tag, marker) {
				return RiskDosage
			}
		}
	}
	return RiskUnsupported
}

// HasRiskTag reports whether any of the task's tags contains the given
// marker.
func (t *Task) HasRiskTag(marker string) bool {
	for _, tag := range t.RiskType {
		if strings.Contains(tag, marker) {
			return true
		}
	}
	return false
}

// paramString fetches a string parameter, empty when absent or mistyped.
func (t *Task) paramString(key string) string {
	s, _ := t.Params[key].(string)
	return s
}

// drugPair returns the two drug names of an interaction task, or false when
// the parameter is absent or of the wrong arity.
func (t *Task) drugPair() (string, string, bool) {
	raw, ok := t.Params["drug_pair"]
	if !ok {
		return "", "", false
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 2 {
		return "", "", false
	}
	d1, ok1 := list[0].(string)
	d2, ok2 := list[1].(string)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return d1, d2, true
}

// patientInfo returns the task's patient_info map, nil when absent.
func (t *Task) patientInfo() map[string]any {
	m, _ := t.Params["patient_info"].(map[string]any)
	return m
}
