package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rxaudit/internal/llm"
)

// distinct nothing-to-report sentences, one per stage outcome, so consumers
// can tell "checked and found nothing" apart from "step failed"
const (
	msgNoPrescriptions   = "注：无处方药物，未检索管理性说明。"
	msgNoDrugName        = "注：处方中缺少药物名称，未检索管理性说明。"
	msgInstructionsQuery = "注：检索管理性说明时数据库查询失败。"
	msgNoInstructionRows = "注：知识库中无额外的管理性/指令性说明。"
	msgNoInstructionTags = "注：知识库中的管理性说明均未标注标签。"
	msgTagSelectionError = "注：AI在筛选指令性说明时出错。"
	msgNoSelectedTags    = "注：根据患者情况，未筛选出需要特别关注的管理性/指令性说明。"
	msgNoTagIntersection = "注：筛选出的标签未对应到任何管理性说明。"
)

// ContextFilter selects administrative/usage instructions relevant to the
// case: fetch all instruction rows for the drug, let the engine pick the
// relevant tags, then filter by exact tag membership.
type ContextFilter struct {
	engine         llm.Engine
	relational     RelationalReader
	promptTemplate string
	logger         *zap.Logger
}

func NewContextFilter(engine llm.Engine, relational RelationalReader, promptTemplate string, logger *zap.Logger) *ContextFilter {
	return &ContextFilter{
		engine:         engine,
		relational:     relational,
		promptTemplate: promptTemplate,
		logger:         logger,
	}
}

// Filter returns the contextual-instruction text block for a case. Only the
// first prescription's drug is considered; a known single-drug limitation.
func (f *ContextFilter) Filter(ctx context.Context, patientProfile map[string]any, prescriptions []Prescription) string {
	if len(prescriptions) == 0 {
		return msgNoPrescriptions
	}
	drugName := prescriptions[0].DrugName
	if drugName == "" {
		return msgNoDrugName
	}

	query := fmt.Sprintf(
		"SELECT tags, instruction_text, llm_summary FROM administration_texts WHERE drug_canonical_name = '%s'",
		escapeName(drugName))
	records, err := f.relational.Query(ctx, query)
	if err != nil {
		f.logger.Error("instruction lookup failed", zap.String("drug", drugName), zap.Error(err))
		return msgInstructionsQuery
	}
	if len(records) == 0 {
		return msgNoInstructionRows
	}

	// union of tag sets in record order, so prompts stay deterministic
	var allTags []string
	tagSeen := make(map[string]bool)
	for _, record := range records {
		for _, tag := range parseTags(record["tags"]) {
			if !tagSeen[tag] {
				tagSeen[tag] = true
				allTags = append(allTags, tag)
			}
		}
	}
	if len(allTags) == 0 {
		return msgNoInstructionTags
	}

	selected, err := f.selectTags(ctx, patientProfile, prescriptions, allTags)
	if err != nil {
		f.logger.Error("tag selection failed", zap.Error(err))
		return msgTagSelectionError
	}
	if len(selected) == 0 {
		return msgNoSelectedTags
	}
	selectedSet := make(map[string]bool, len(selected))
	for _, tag := range selected {
		selectedSet[tag] = true
	}

	var instructions []string
	rendered := make(map[string]bool)
	for _, record := range records {
		intersects := false
		for _, tag := range parseTags(record["tags"]) {
			if selectedSet[tag] {
				intersects = true
				break
			}
		}
		if !intersects {
			continue
		}
		text := fmt.Sprintf("%s （说明摘要：%s）",
			strField(record, "instruction_text"), strField(record, "llm_summary"))
		if !rendered[text] {
			rendered[text] = true
			instructions = append(instructions, text)
		}
	}
	if len(instructions) == 0 {
		return msgNoTagIntersection
	}

	lines := []string{"\n补充说明（来自知识库）："}
	for _, text := range instructions {
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}

// selectTags asks the engine which of the candidate tags matter for this
// patient and prescription context, expecting a JSON array of strings.
func (f *ContextFilter) selectTags(ctx context.Context, patientProfile map[string]any, prescriptions []Prescription, candidates []string) ([]string, error) {
	contextJSON, err := json.MarshalIndent(map[string]any{
		"patient_profile":     patientProfile,
		"prescription_orders": prescriptions,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling case context: %w", err)
	}
	tagsJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling candidate tags: %w", err)
	}

	prompt := strings.ReplaceAll(f.promptTemplate, "{{PATIENT_PRESCRIPTION_CONTEXT}}", string(contextJSON))
	prompt = strings.ReplaceAll(prompt, "{{AVAILABLE_TAGS}}", string(tagsJSON))

	response, err := f.engine.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var selected []string
	if err := llm.UnmarshalLenient(response, &selected, f.logger); err != nil {
		return nil, fmt.Errorf("engine returned no valid JSON tag list: %w", err)
	}
	return selected, nil
}

// parseTags decodes a tags column, which arrives either as a JSON string or
// an already-decoded list.
func parseTags(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			return nil
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, t := range x {
			if s, ok := t.(string); ok {
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
