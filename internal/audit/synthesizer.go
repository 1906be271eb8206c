package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rxaudit/internal/llm"
)

// Synthesizer assembles the curated evidence, contextual instructions and
// case context into the final audit prompt and parses the engine's report.
type Synthesizer struct {
	engine         llm.Engine
	promptTemplate string
	logger         *zap.Logger
}

func NewSynthesizer(engine llm.Engine, promptTemplate string, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{engine: engine, promptTemplate: promptTemplate, logger: logger}
}

// Synthesize produces the final report. A non-JSON engine response yields a
// report carrying the error and raw text rather than a raised failure, so a
// failed report persists alongside successful ones.
func (s *Synthesizer) Synthesize(ctx context.Context, patientProfile map[string]any, prescriptions []Prescription, curatedTasks []TaskResult, contextualInstructions string) *AuditReport {
	if len(curatedTasks) == 0 {
		s.logger.Warn("no curated tasks provided to synthesize a report")
		return &AuditReport{Error: "no curated tasks to analyze"}
	}

	profileJSON, err := json.MarshalIndent(patientProfile, "", "  ")
	if err != nil {
		return &AuditReport{Error: fmt.Sprintf("marshaling patient profile: %v", err)}
	}
	prescriptionsJSON, err := json.MarshalIndent(prescriptions, "", "  ")
	if err != nil {
		return &AuditReport{Error: fmt.Sprintf("marshaling prescriptions: %v", err)}
	}

	prompt := replacePlaceholder(s.promptTemplate, "{{PATIENT_PROFILE}}", string(profileJSON))
	prompt = replacePlaceholder(prompt, "{{PRESCRIPTION_LIST}}", string(prescriptionsJSON))
	prompt = replacePlaceholder(prompt, "{{CONTEXTUAL_INSTRUCTIONS}}", contextualInstructions)
	prompt = replacePlaceholder(prompt, "{{RISK_CHECKS_AND_EVIDENCE}}", FormatRiskChecks(curatedTasks))

	response, err := s.engine.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("report synthesis engine call failed", zap.Error(err))
		return &AuditReport{Error: err.Error()}
	}

	report := &AuditReport{}
	if err := llm.UnmarshalLenient(response, report, s.logger); err != nil {
		s.logger.Error("engine report was not valid JSON", zap.String("response", response))
		return &AuditReport{Error: "engine response was not valid JSON", RawResponse: response}
	}
	if errs := report.Validate(); len(errs) > 0 {
		fieldErrs := make([]string, len(errs))
		for i, e := range errs {
			fieldErrs[i] = e.Error()
		}
		s.logger.Error("engine report failed schema validation", zap.Strings("fields", fieldErrs))
		return &AuditReport{
			Error:       "engine report failed schema validation: " + strings.Join(fieldErrs, "; "),
			RawResponse: response,
		}
	}
	return report
}

// FormatRiskChecks renders each curated task as one ordered text block:
// description, risk categories, then the curated evidence.
func FormatRiskChecks(curatedTasks []TaskResult) string {
	blocks := make([]string, 0, len(curatedTasks))
	for i, ct := range curatedTasks {
		description := ct.TaskData.Description
		if description == "" {
			description = "N/A"
		}
		evidence := ct.CuratedEvidence
		if evidence == "" {
			evidence = "无可用证据。"
		}
		blocks = append(blocks, fmt.Sprintf(
			"--- 风险审核项 %d: %s ---\n涉及风险类型: %s\n相关证据:\n%s",
			i+1, description, strings.Join(ct.TaskData.RiskType, ", "), evidence))
	}
	return strings.Join(blocks, "\n\n")
}

func replacePlaceholder(template, placeholder, value string) string {
	return strings.ReplaceAll(template, placeholder, value)
}
