package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func curatedFixture() []TaskResult {
	return []TaskResult{
		{
			TaskData: &Task{
				RiskType:    []string{"DOSAGE_OVER"},
				Description: "核对阿司匹林剂量",
			},
			CuratedEvidence: "1. 推荐用法：口服，一次100mg。",
		},
		{
			TaskData: &Task{RiskType: []string{"ALLERGY_DRUG", "CONTRAINDICATION_DISEASE"}},
		},
	}
}

func TestSynthesize(t *testing.T) {
	engine := &fakeEngine{response: `{
		"overall_risk_level": "高",
		"summary": "存在剂量过量风险。",
		"findings": [
			{"risk_type": "DOSAGE_OVER", "severity": "高", "description": "单次剂量超过说明书上限。", "recommendation": "建议减量。"}
		]
	}`}
	s := NewSynthesizer(engine, "{{PATIENT_PROFILE}}\n{{PRESCRIPTION_LIST}}\n{{CONTEXTUAL_INSTRUCTIONS}}\n{{RISK_CHECKS_AND_EVIDENCE}}", zap.NewNop())

	report := s.Synthesize(context.Background(),
		map[string]any{"age": float64(70)}, testCase().PrescriptionOrders,
		curatedFixture(), "注：知识库中无额外的管理性/指令性说明。")

	require.False(t, report.Failed())
	assert.Equal(t, "高", report.OverallRiskLevel)
	assert.Equal(t, "存在剂量过量风险。", report.Summary)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "DOSAGE_OVER", report.Findings[0].RiskType)

	// every placeholder was filled in
	assert.Contains(t, engine.lastPrompt, "阿司匹林肠溶片")
	assert.Contains(t, engine.lastPrompt, "风险审核项 1")
	assert.Contains(t, engine.lastPrompt, "注：知识库中无额外的管理性/指令性说明。")
	assert.NotContains(t, engine.lastPrompt, "{{")
}

func TestSynthesizeNoCuratedTasks(t *testing.T) {
	engine := &fakeEngine{response: `{"summary": "ok"}`}
	s := NewSynthesizer(engine, "{{RISK_CHECKS_AND_EVIDENCE}}", zap.NewNop())

	report := s.Synthesize(context.Background(), nil, nil, nil, "")
	require.True(t, report.Failed())
	assert.Equal(t, "no curated tasks to analyze", report.Error)
	// the engine is never consulted
	assert.Empty(t, engine.lastPrompt)
}

func TestSynthesizeNonJSONResponse(t *testing.T) {
	engine := &fakeEngine{response: "该处方总体安全，无明显风险。"}
	s := NewSynthesizer(engine, "{{RISK_CHECKS_AND_EVIDENCE}}", zap.NewNop())

	report := s.Synthesize(context.Background(), nil, nil, curatedFixture(), "")
	require.True(t, report.Failed())
	assert.Equal(t, "engine response was not valid JSON", report.Error)
	// raw text is preserved for offline inspection
	assert.Equal(t, "该处方总体安全，无明显风险。", report.RawResponse)
}

func TestSynthesizeSchemaValidation(t *testing.T) {
	engine := &fakeEngine{response: `{
		"overall_risk_level": "低",
		"findings": [{"severity": "低"}]
	}`}
	s := NewSynthesizer(engine, "{{RISK_CHECKS_AND_EVIDENCE}}", zap.NewNop())

	report := s.Synthesize(context.Background(), nil, nil, curatedFixture(), "")
	require.True(t, report.Failed())
	assert.Contains(t, report.Error, "summary")
	assert.Contains(t, report.Error, "findings[0].risk_type")
	assert.Contains(t, report.Error, "findings[0].description")
	assert.NotEmpty(t, report.RawResponse)
}

func TestFormatRiskChecks(t *testing.T) {
	out := FormatRiskChecks(curatedFixture())

	assert.Contains(t, out, "--- 风险审核项 1: 核对阿司匹林剂量 ---")
	assert.Contains(t, out, "涉及风险类型: DOSAGE_OVER")
	assert.Contains(t, out, "相关证据:\n1. 推荐用法：口服，一次100mg。")

	// missing description and evidence fall back to placeholders
	assert.Contains(t, out, "--- 风险审核项 2: N/A ---")
	assert.Contains(t, out, "涉及风险类型: ALLERGY_DRUG, CONTRAINDICATION_DISEASE")
	assert.Contains(t, out, "无可用证据。")
}
