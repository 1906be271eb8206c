package audit

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Planner maps a task to backend query statements. It is deterministic and
// rule-based: a pure function of the task's shape, no engine involved.
type Planner struct {
	logger *zap.Logger
}

func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan dispatches on the task's primary risk category. Missing required
// parameters and unknown categories degrade to an empty plan, never an
// error.
func (p *Planner) Plan(task *Task) []QueryStatement {
	if len(task.RiskType) == 0 {
		p.logger.Warn("task has no riskType, skipping", zap.String("description", task.Description))
		return nil
	}

	switch task.Category() {
	case RiskIndicationMismatch:
		return p.planIndication(task)
	case RiskInteractionDrugDrug:
		return p.planInteraction(task)
	case RiskAllergyConflict:
		return p.planAllergy(task)
	case RiskContraindicationCondition:
		return p.planContraindication(task)
	case RiskDosage:
		return p.planDosage(task)
	default:
		p.logger.Warn("no query generation rule for risk type",
			zap.Strings("riskType", task.RiskType))
		return nil
	}
}

func (p *Planner) planIndication(task *Task) []QueryStatement {
	drug := task.paramString("drug_name")
	if drug == "" {
		return nil
	}
	text := fmt.Sprintf(
		"MATCH (d:Drug {canonical_name: '%s'})-[r:INDICATED_FOR]->(dis:Disease) RETURN dis.name AS approved_indication, r.source_text AS evidence",
		escapeName(drug))
	return []QueryStatement{{Lang: LangCypher, Text: text}}
}

func (p *Planner) planInteraction(task *Task) []QueryStatement {
	drug1, drug2, ok := task.drugPair()
	if !ok {
		p.logger.Warn("interaction task without a valid drug_pair, skipping",
			zap.String("description", task.Description))
		return nil
	}
	return []QueryStatement{
		{Lang: LangSQL, Text: fmt.Sprintf("SELECT * FROM interaction_details WHERE precipitant_drug_name = '%s';", escapeName(drug1))},
		{Lang: LangSQL, Text: fmt.Sprintf("SELECT * FROM interaction_details WHERE precipitant_drug_name = '%s';", escapeName(drug2))},
	}
}

func (p *Planner) planAllergy(task *Task) []QueryStatement {
	drug := task.paramString("drug_name")
	if drug == "" {
		return nil
	}
	cypher := fmt.Sprintf(
		"MATCH (d:Drug {canonical_name: '%s'})-[r:CONTAINS]->(s:Substance) RETURN s.name AS substance_name, r.source_text AS evidence, r.role AS role",
		escapeName(drug))
	sqlText := fmt.Sprintf(
		"SELECT DISTINCT source_text FROM allergy_rules WHERE drug_canonical_name = '%s'",
		escapeName(drug))
	return []QueryStatement{
		{Lang: LangCypher, Text: cypher},
		{Lang: LangSQL, Text: sqlText},
	}
}

// pregnancy/lactation values that mean the attribute does not apply to this
// patient and warrants no extra clause
var notApplicablePregnancy = map[string]bool{"非妊娠": true, "不适用": true, "不适用(仅男性)": true}
var notApplicableLactation = map[string]bool{"非哺乳期": true, "不适用": true, "不适用(仅男性)": true}

func (p *Planner) planContraindication(task *Task) []QueryStatement {
	drug := task.paramString("drug_name")
	if drug == "" {
		return nil
	}
	patient := task.patientInfo()
	base := fmt.Sprintf("SELECT * FROM contraindication_rules WHERE drug_canonical_name = '%s'", escapeName(drug))

	var stmts []QueryStatement
	add := func(clause string) {
		stmts = append(stmts, QueryStatement{Lang: LangSQL, Text: base + clause})
	}

	if truthy(patient["age"]) {
		add(" AND (age_min_years IS NOT NULL OR age_max_years IS NOT NULL);")
	}
	if truthy(patient["gender"]) {
		add(" AND sex IS NOT NULL;")
	}
	if truthy(patient["weight"]) {
		add(" AND (weight_min_kg IS NOT NULL OR weight_max_kg IS NOT NULL);")
	}
	organ, _ := patient["organ_function"].(map[string]any)
	if renal, _ := organ["renal_impairment"].(string); renal != "" && renal != "无" {
		add(" AND renal_impairment IS NOT NULL;")
	}
	if hepatic, _ := organ["hepatic_impairment"].(string); hepatic != "" && hepatic != "无" {
		add(" AND hepatic_impairment IS NOT NULL;")
	}
	if preg, _ := patient["pregnancy_status"].(string); preg != "" && !notApplicablePregnancy[preg] {
		add(" AND pregnancy_status IS NOT NULL;")
	}
	if lact, _ := patient["lactation_status"].(string); lact != "" && !notApplicableLactation[lact] {
		add(" AND lactation_status IS NOT NULL;")
	}
	// free-text conditions are always worth checking against the history
	add(" AND other_conditions IS NOT NULL;")

	return dedupeStatements(stmts)
}

func (p *Planner) planDosage(task *Task) []QueryStatement {
	drug := task.paramString("drug_name")
	if drug == "" {
		return nil
	}
	// intentionally broad: fetch every dosage rule for the drug, the curator
	// filters and ranks downstream
	text := fmt.Sprintf("SELECT * FROM dosage_rules WHERE drug_canonical_name = '%s';", escapeName(drug))
	return []QueryStatement{{Lang: LangSQL, Text: text}}
}

func dedupeStatements(stmts []QueryStatement) []QueryStatement {
	seen := make(map[string]bool, len(stmts))
	out := stmts[:0]
	for _, s := range stmts {
		if seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		out = append(out, s)
	}
	return out
}

func escapeName(name string) string {
	return strings.ReplaceAll(name, "'", "''")
}

// truthy mirrors the presence checks of the rule set: nil, empty strings and
// numeric zero all count as absent.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case bool:
		return x
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}
