package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// fallback sentences that are part of the curator's output contract
const (
	msgNoCurationRule    = "未找到适用于此风险类型的证据处理规则。"
	msgNoDosageRules     = "知识库中未找到与该药物相关的任何剂量规则。"
	msgNoDosageMatch     = "根据患者信息，未筛选到高度匹配的剂量规则。请人工核对所有可用规则。"
	msgNoInteractionRows = "知识库中未查询到与处方药物相关的相互作用记录。"
	msgNoComposition     = "1. 未查询到该药物的详细成分信息。"
	msgNoAllergyRules    = "3. 未查询到与此药物直接相关的特定过敏规则。"
)

// dosage scoring constants
const (
	scoreImpairmentMatch    = 15
	scoreImpairmentMismatch = -5
	scoreStandardForTypical = 5
	scoreStandardAtypical   = 1
	scoreDiagnosisKeyword   = 3
	scoreAdjustmentTaskHit  = 10
	scoreOverdoseTaskHit    = 5
)

// ScoredRule pairs a candidate rule row with its relevance score. Transient:
// produced and consumed inside one curation call.
type ScoredRule struct {
	Rule  Row
	Score int
}

// Curator turns the raw rows of a task's statements into a bounded, ranked,
// human-readable evidence block using risk-specific heuristics.
type Curator struct {
	logger *zap.Logger
}

func NewCurator(logger *zap.Logger) *Curator {
	return &Curator{logger: logger}
}

// Curate dispatches on the task's primary risk category. stmts is the task's
// own ordered plan; results maps statement text to its execution result.
// Rows are always walked in plan order so output is deterministic.
func (c *Curator) Curate(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	switch task.Category() {
	case RiskDosage:
		return c.curateDosage(task, stmts, results)
	case RiskIndicationMismatch:
		return c.curateIndication(task, stmts, results)
	case RiskInteractionDrugDrug:
		return c.curateInteraction(task, stmts, results)
	case RiskAllergyConflict:
		return c.curateAllergy(task, stmts, results)
	case RiskContraindicationCondition:
		return c.curateContraindication(task, stmts, results)
	default:
		return msgNoCurationRule
	}
}

// flattenRows gathers the rows of every referenced statement in plan order.
func flattenRows(stmts []QueryStatement, results map[string]QueryResult) []Row {
	var out []Row
	for _, stmt := range stmts {
		out = append(out, results[stmt.Text].Rows...)
	}
	return out
}

func (c *Curator) curateDosage(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	patient := task.patientInfo()
	patientAge := extractAge(patient)
	patientRenal, patientHepatic := extractImpairments(patient)
	diagnoses := extractDiagnoses(task.Params)

	allRules := flattenRows(stmts, results)
	if len(allRules) == 0 {
		return msgNoDosageRules
	}

	var scored []ScoredRule
	for _, rule := range allRules {
		// hard exclusion: age bounds outside the patient's age
		if patientAge != nil {
			if min, ok := numField(rule, "age_min_years"); ok && min != 0 && *patientAge < min {
				continue
			}
			if max, ok := numField(rule, "age_max_years"); ok && max != 0 && *patientAge > max {
				continue
			}
		}

		score := 0
		isAdjustmentRule := false

		ruleRenal := strField(rule, "renal_impairment")
		if ruleRenal != "" {
			isAdjustmentRule = true
			if ruleRenal == patientRenal {
				score += scoreImpairmentMatch
			} else {
				score += scoreImpairmentMismatch
			}
		}
		ruleHepatic := strField(rule, "hepatic_impairment")
		if ruleHepatic != "" {
			isAdjustmentRule = true
			if ruleHepatic == patientHepatic {
				score += scoreImpairmentMatch
			} else {
				score += scoreImpairmentMismatch
			}
		}
		if strField(rule, "other_conditions") != "" {
			isAdjustmentRule = true
		}

		isStandardRule := ruleRenal == "" && ruleHepatic == ""
		if isStandardRule {
			if patientRenal == "无" && patientHepatic == "无" {
				score += scoreStandardForTypical
			} else {
				// standard rules carry less weight for atypical patients
				score += scoreStandardAtypical
			}
		}

		ruleContext := strField(rule, "notes") + strField(rule, "source_text")
		for _, diag := range diagnoses {
			if diag != "" && strings.Contains(ruleContext, diag) {
				score += scoreDiagnosisKeyword
				break
			}
		}

		if task.HasRiskTag("DOSE_ADJUSTMENT_MISSED") && isAdjustmentRule {
			score += scoreAdjustmentTaskHit
		}
		if task.HasRiskTag("DOSAGE_OVER") && isStandardRule {
			score += scoreOverdoseTaskHit
		}

		scored = append(scored, ScoredRule{Rule: rule, Score: score})
	}

	if len(scored) == 0 {
		return msgNoDosageMatch
	}

	// stable: ties keep row arrival order
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > 3 {
		scored = scored[:3]
	}

	lines := make([]string, 0, len(scored))
	for i, sr := range scored {
		lines = append(lines, formatDosageRule(i+1, sr.Rule))
	}
	return strings.Join(lines, "\n")
}

func formatDosageRule(rank int, rule Row) string {
	var parts []string

	if min, ok := numField(rule, "per_dose_min_value"); ok {
		max := min
		if m, ok := numField(rule, "per_dose_max_value"); ok {
			max = m
		}
		unit := strField(rule, "per_dose_unit")
		if min == max {
			parts = append(parts, formatNum(min)+unit)
		} else {
			parts = append(parts, formatNum(min)+"-"+formatNum(max)+unit)
		}
	}
	if freq, ok := numField(rule, "frequency_value"); ok {
		parts = append(parts, formatNum(freq)+strField(rule, "frequency_unit"))
	}
	if route := strField(rule, "route"); route != "" {
		parts = append(parts, route)
	}
	if min, ok := numField(rule, "duration_min_value"); ok {
		max := min
		if m, ok := numField(rule, "duration_max_value"); ok {
			max = m
		}
		unit := strField(rule, "duration_unit")
		if min == max {
			parts = append(parts, "疗程"+formatNum(min)+unit)
		} else {
			parts = append(parts, "疗程"+formatNum(min)+"-"+formatNum(max)+unit)
		}
	}

	dailyDoseInfo := ""
	if min, ok := numField(rule, "daily_dose_min_value"); ok {
		max := min
		if m, ok := numField(rule, "daily_dose_max_value"); ok {
			max = m
		}
		unit := strField(rule, "daily_dose_unit")
		if min == max {
			dailyDoseInfo = fmt.Sprintf("(每日总剂量: %s%s)", formatNum(min), unit)
		} else {
			dailyDoseInfo = fmt.Sprintf("(每日总剂量: %s-%s%s)", formatNum(min), formatNum(max), unit)
		}
	}

	notes := ""
	if n := strField(rule, "notes"); n != "" {
		notes = "(" + n + ")"
	}

	return fmt.Sprintf("%d. 推荐用法: %s %s。%s\n   说明书原始内容: “%s”",
		rank, strings.Join(parts, ", "), dailyDoseInfo, notes, strField(rule, "source_text"))
}

func (c *Curator) curateIndication(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	drug := task.paramString("drug_name")
	indications := flattenRows(stmts, results)
	if len(indications) == 0 {
		return fmt.Sprintf("知识库中未找到药物 '%s' 的任何适应症信息。", drug)
	}

	lines := []string{fmt.Sprintf("根据知识库，药物 '%s' 的官方批准适应症包括：", drug)}
	for _, item := range indications {
		indication := strFieldDefault(item, "approved_indication", "未知适应症")
		evidence := strFieldDefault(item, "evidence", "未知")
		lines = append(lines, fmt.Sprintf("- %s (说明书原始内容: %s)", indication, evidence))
	}
	return strings.Join(lines, "\n")
}

func (c *Curator) curateInteraction(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	allRules := flattenRows(stmts, results)
	if len(allRules) == 0 {
		// neither drug appears as a precipitant in the knowledge base
		return msgNoInteractionRows
	}

	drug1, drug2, ok := task.drugPair()
	if !ok {
		return msgNoCurationRule
	}
	drug1Base := BaseDrugName(drug1)
	drug2Base := BaseDrugName(drug2)

	var matched []Row
	appendMatch := func(rule Row) {
		for _, m := range matched {
			if reflect.DeepEqual(m, rule) {
				return
			}
		}
		matched = append(matched, rule)
	}

	for _, rule := range allRules {
		precipitantBase := BaseDrugName(strField(rule, "precipitant_drug_name"))
		targetBase := BaseDrugName(strField(rule, "affected_target_name"))
		examples := c.parseExamples(rule["affected_target_examples"])

		// drug1 as precipitant, drug2 as target, then the reverse
		if strings.Contains(precipitantBase, drug1Base) {
			if strings.Contains(targetBase, drug2Base) {
				appendMatch(rule)
				continue
			}
			for _, ex := range examples {
				if strings.Contains(BaseDrugName(ex), drug2Base) {
					appendMatch(rule)
					break
				}
			}
		} else if strings.Contains(precipitantBase, drug2Base) {
			if strings.Contains(targetBase, drug1Base) {
				appendMatch(rule)
				continue
			}
			for _, ex := range examples {
				if strings.Contains(BaseDrugName(ex), drug1Base) {
					appendMatch(rule)
					break
				}
			}
		}
	}

	if len(matched) == 0 {
		return fmt.Sprintf("根据知识库筛选，未发现 '%s' 与 '%s' 之间存在明确记录的相互作用。", drug1, drug2)
	}

	blocks := []string{fmt.Sprintf("查询并筛选到关于 '%s' 与 '%s' 的相互作用信息如下：", drug1, drug2)}
	for i, item := range matched {
		block := fmt.Sprintf(
			"%d. 相互作用记录:\n"+
				"  - 引发方: %s\n"+
				"  - 受影响方: %s\n"+
				"  - 严重等级: %s\n"+
				"  - 效应总结: %s\n"+
				"  - 临床管理建议: %s\n"+
				"  - 说明书原始内容：%s",
			i+1,
			strField(item, "precipitant_drug_name"),
			strField(item, "affected_target_name"),
			strFieldDefault(item, "severity", "未知"),
			strFieldDefault(item, "effect_summary", "无详细描述"),
			strFieldDefault(item, "clinical_management", "请遵医嘱"),
			strFieldDefault(item, "source_text", "未知"))
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

// parseExamples decodes the affected-target-examples field, which arrives
// either as a JSON string column or an already-decoded list.
func (c *Curator) parseExamples(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		var out []string
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			c.logger.Warn("failed to parse affected_target_examples", zap.String("value", x))
			return nil
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	default:
		return nil
	}
}

func (c *Curator) curateAllergy(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	var components, rules []Row
	for _, stmt := range stmts {
		rows := results[stmt.Text].Rows
		// originating statement shape decides the row kind
		switch {
		case strings.Contains(stmt.Text, "CONTAINS") && strings.Contains(stmt.Text, "Substance"):
			components = append(components, rows...)
		case strings.Contains(stmt.Text, "allergy_rules"):
			rules = append(rules, rows...)
		}
	}

	drug := task.paramString("drug_name")
	lines := []string{fmt.Sprintf("关于药物 '%s' 的过敏风险信息如下：", drug)}

	if len(components) > 0 {
		var active, excipients []string
		for _, comp := range components {
			name := strField(comp, "substance_name")
			switch strField(comp, "role") {
			case "活性成份":
				active = append(active, name)
			case "辅料":
				excipients = append(excipients, name)
			}
		}
		if len(active) > 0 {
			lines = append(lines, fmt.Sprintf("1. 活性成分: %s。", strings.Join(active, ", ")))
		}
		if len(excipients) > 0 {
			lines = append(lines, fmt.Sprintf("2. 辅料包括: %s。", strings.Join(excipients, ", ")))
		}
	} else {
		lines = append(lines, msgNoComposition)
	}

	if len(rules) > 0 {
		lines = append(lines, "3. 相关过敏警告/规则:")
		for _, rule := range rules {
			lines = append(lines, fmt.Sprintf("   - “%s”", strFieldDefault(rule, "source_text", "规则描述缺失")))
		}
	} else {
		lines = append(lines, msgNoAllergyRules)
	}
	return strings.Join(lines, "\n")
}

func (c *Curator) curateContraindication(task *Task, stmts []QueryStatement, results map[string]QueryResult) string {
	rules := flattenRows(stmts, results)
	drug := task.paramString("drug_name")

	if len(rules) == 0 {
		return fmt.Sprintf("根据患者提供的现有信息，未在知识库中查询到与药物 '%s' 相关的特定禁忌症。", drug)
	}

	// multiple extended statements return overlapping rows; dedupe on the
	// source sentence and sort for stable output
	seen := make(map[string]bool)
	var texts []string
	for _, rule := range rules {
		text := strField(rule, "source_text")
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		texts = append(texts, text)
	}
	sort.Strings(texts)

	lines := []string{fmt.Sprintf("警告：根据知识库，药物 '%s' 存在以下绝对禁忌情况，请务必核对：", drug)}
	for _, text := range texts {
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}

// --- patient attribute extraction ---

func extractAge(patient map[string]any) *float64 {
	switch age := patient["age"].(type) {
	case map[string]any:
		if v, ok := toFloat(age["value"]); ok {
			return &v
		}
	default:
		if v, ok := toFloat(age); ok {
			return &v
		}
	}
	return nil
}

func extractImpairments(patient map[string]any) (renal, hepatic string) {
	renal, hepatic = "未知", "未知"
	if organ, ok := patient["organ_function"].(map[string]any); ok {
		if v, ok := organ["renal_impairment"].(string); ok && v != "" {
			renal = v
		}
		if v, ok := organ["hepatic_impairment"].(string); ok && v != "" {
			hepatic = v
		}
	}
	return renal, hepatic
}

func extractDiagnoses(params map[string]any) []string {
	context, _ := params["context"].(map[string]any)
	raw, _ := context["diagnoses"].([]any)
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		if s, ok := d.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// --- row field coercion ---

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func numField(row Row, key string) (float64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

func strField(row Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func strFieldDefault(row Row, key, def string) string {
	if s := strField(row, key); s != "" {
		return s
	}
	return def
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
