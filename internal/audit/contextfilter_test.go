package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const instructionsQuery = "SELECT tags, instruction_text, llm_summary FROM administration_texts WHERE drug_canonical_name = '阿司匹林肠溶片'"

func instructionRows() []Row {
	return []Row{
		{
			"tags":             `["老年用药", "肾功能不全"]`,
			"instruction_text": "老年患者应从小剂量开始。",
			"llm_summary":      "老年人减量",
		},
		{
			"tags":             `["孕妇用药"]`,
			"instruction_text": "妊娠晚期禁用。",
			"llm_summary":      "妊娠禁忌",
		},
	}
}

func TestFilterSelectsByTags(t *testing.T) {
	engine := &fakeEngine{response: `["老年用药"]`}
	relational := &fakeRelational{rows: map[string][]Row{instructionsQuery: instructionRows()}}
	f := NewContextFilter(engine, relational, "{{PATIENT_PRESCRIPTION_CONTEXT}}\n{{AVAILABLE_TAGS}}", zap.NewNop())

	out := f.Filter(context.Background(), map[string]any{"age": float64(78)}, testCase().PrescriptionOrders)

	assert.Contains(t, out, "补充说明（来自知识库）：")
	assert.Contains(t, out, "- 老年患者应从小剂量开始。 （说明摘要：老年人减量）")
	assert.NotContains(t, out, "妊娠晚期禁用")

	// both candidate tags were offered to the engine
	assert.Contains(t, engine.lastPrompt, "老年用药")
	assert.Contains(t, engine.lastPrompt, "孕妇用药")
}

func TestFilterStageOutcomes(t *testing.T) {
	profile := map[string]any{"age": float64(78)}
	orders := testCase().PrescriptionOrders

	cases := []struct {
		name       string
		engine     *fakeEngine
		relational *fakeRelational
		orders     []Prescription
		want       string
	}{
		{
			name:       "no prescriptions",
			engine:     &fakeEngine{},
			relational: &fakeRelational{},
			orders:     nil,
			want:       msgNoPrescriptions,
		},
		{
			name:       "missing drug name",
			engine:     &fakeEngine{},
			relational: &fakeRelational{},
			orders:     []Prescription{{DrugName: ""}},
			want:       msgNoDrugName,
		},
		{
			name:       "query failure",
			engine:     &fakeEngine{},
			relational: &fakeRelational{failAll: true},
			orders:     orders,
			want:       msgInstructionsQuery,
		},
		{
			name:       "no instruction rows",
			engine:     &fakeEngine{},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: {}}},
			orders:     orders,
			want:       msgNoInstructionRows,
		},
		{
			name:   "rows without tags",
			engine: &fakeEngine{},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: {
				{"tags": nil, "instruction_text": "x", "llm_summary": "y"},
			}}},
			orders: orders,
			want:   msgNoInstructionTags,
		},
		{
			name:       "tag selection engine error",
			engine:     &fakeEngine{err: errors.New("timeout")},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: instructionRows()}},
			orders:     orders,
			want:       msgTagSelectionError,
		},
		{
			name:       "tag selection not JSON",
			engine:     &fakeEngine{response: "没有合适的标签"},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: instructionRows()}},
			orders:     orders,
			want:       msgTagSelectionError,
		},
		{
			name:       "engine selects nothing",
			engine:     &fakeEngine{response: `[]`},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: instructionRows()}},
			orders:     orders,
			want:       msgNoSelectedTags,
		},
		{
			name:       "selected tags match no row",
			engine:     &fakeEngine{response: `["儿童用药"]`},
			relational: &fakeRelational{rows: map[string][]Row{instructionsQuery: instructionRows()}},
			orders:     orders,
			want:       msgNoTagIntersection,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewContextFilter(tc.engine, tc.relational, "{{PATIENT_PRESCRIPTION_CONTEXT}}\n{{AVAILABLE_TAGS}}", zap.NewNop())
			assert.Equal(t, tc.want, f.Filter(context.Background(), profile, tc.orders))
		})
	}
}

func TestFilterDeduplicatesInstructionText(t *testing.T) {
	rows := []Row{
		{"tags": `["A"]`, "instruction_text": "同一句话。", "llm_summary": "摘要"},
		{"tags": `["A"]`, "instruction_text": "同一句话。", "llm_summary": "摘要"},
	}
	engine := &fakeEngine{response: `["A"]`}
	relational := &fakeRelational{rows: map[string][]Row{instructionsQuery: rows}}
	f := NewContextFilter(engine, relational, "{{AVAILABLE_TAGS}}", zap.NewNop())

	out := f.Filter(context.Background(), nil, testCase().PrescriptionOrders)
	assert.Equal(t, "\n补充说明（来自知识库）：\n- 同一句话。 （说明摘要：摘要）", out)
}
