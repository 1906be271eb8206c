package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"rxaudit/internal/llm"
)

// Compiler turns a clinical case into an ordered list of typed risk-check
// tasks by delegating the reasoning to the external engine.
type Compiler struct {
	engine         llm.Engine
	promptTemplate string
	logger         *zap.Logger
}

func NewCompiler(engine llm.Engine, promptTemplate string, logger *zap.Logger) *Compiler {
	return &Compiler{engine: engine, promptTemplate: promptTemplate, logger: logger}
}

// Compile returns the task list for a case. Any failure (transport, broken
// JSON, non-array response) degrades to zero tasks; the case then proceeds
// with no risk checks instead of aborting the batch.
func (c *Compiler) Compile(ctx context.Context, auditCase *Case) []Task {
	input := map[string]any{
		"patient_profile":     auditCase.PatientProfile,
		"prescription_orders": auditCase.PrescriptionOrders,
	}
	inputJSON, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		c.logger.Error("failed to marshal case input", zap.Error(err))
		return nil
	}

	prompt := replacePlaceholder(c.promptTemplate, "{{input_json}}", string(inputJSON))
	response, err := c.engine.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("task compilation engine call failed", zap.Error(err))
		return nil
	}

	var tasks []Task
	if err := llm.UnmarshalLenient(response, &tasks, c.logger); err != nil {
		c.logger.Error("engine did not return a valid JSON task list",
			zap.Error(err), zap.String("response", response))
		return nil
	}
	return tasks
}
