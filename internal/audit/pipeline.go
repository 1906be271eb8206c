package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rxaudit/internal/metrics"
)

// TaskResult is one task with everything the pipeline derived for it.
type TaskResult struct {
	TaskData        *Task                  `json:"task_data"`
	Queries         []QueryStatement       `json:"queries"`
	Evidence        map[string]QueryResult `json:"evidence"`
	CuratedEvidence string                 `json:"curated_evidence"`
}

// CaseResult captures every stage of one case's run so any step can be
// inspected after the fact.
type CaseResult struct {
	CaseID                 string                 `json:"case_id"`
	Input                  *Case                  `json:"input_data"`
	InputErrors            []FieldError           `json:"input_errors,omitempty"`
	Tasks                  []Task                 `json:"compiled_tasks"`
	QueryPlan              []QueryStatement       `json:"query_plan"`
	ExecutionResults       map[string]QueryResult `json:"execution_results"`
	CuratedTasks           []TaskResult           `json:"curated_tasks"`
	ContextualInstructions string                 `json:"contextual_instructions"`
	Report                 *AuditReport           `json:"report"`
}

// Pipeline wires the stages together. Cases are independent and processed
// sequentially; nothing is shared between them.
type Pipeline struct {
	compiler      *Compiler
	planner       *Planner
	executor      *Executor
	curator       *Curator
	contextFilter *ContextFilter
	synthesizer   *Synthesizer
	logger        *zap.Logger
}

func NewPipeline(compiler *Compiler, planner *Planner, executor *Executor, curator *Curator, contextFilter *ContextFilter, synthesizer *Synthesizer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		compiler:      compiler,
		planner:       planner,
		executor:      executor,
		curator:       curator,
		contextFilter: contextFilter,
		synthesizer:   synthesizer,
		logger:        logger,
	}
}

// RunCase takes one case through every stage. It always returns a result;
// degenerate outcomes (invalid input, zero compiled tasks) are recorded, not
// raised.
func (p *Pipeline) RunCase(ctx context.Context, auditCase *Case) *CaseResult {
	start := time.Now()
	result := &CaseResult{CaseID: auditCase.CaseID, Input: auditCase}

	defer func() {
		metrics.CaseDuration.Observe(time.Since(start).Seconds())
	}()

	if errs := ValidateCase(auditCase); len(errs) > 0 {
		p.logger.Warn("case failed input validation", zap.String("case_id", auditCase.CaseID))
		result.InputErrors = errs
		result.Report = &AuditReport{Error: "case failed input validation"}
		metrics.CasesProcessed.WithLabelValues("invalid_input").Inc()
		return result
	}

	tasks := p.compiler.Compile(ctx, auditCase)
	result.Tasks = tasks
	if len(tasks) == 0 {
		p.logger.Warn("no tasks compiled for case, recording degenerate result",
			zap.String("case_id", auditCase.CaseID))
		result.Report = &AuditReport{Error: "no risk-check tasks could be compiled"}
		metrics.CasesProcessed.WithLabelValues("degenerate").Inc()
		return result
	}

	taskPlans := make([][]QueryStatement, len(tasks))
	for i := range tasks {
		taskPlans[i] = p.planner.Plan(&tasks[i])
	}

	unique, refs := Dedupe(taskPlans)
	result.QueryPlan = unique
	p.logger.Info("query plan built",
		zap.String("case_id", auditCase.CaseID),
		zap.Int("tasks", len(tasks)),
		zap.Int("unique_queries", len(unique)))

	executionResults := p.executor.Execute(ctx, unique)
	result.ExecutionResults = executionResults

	curatedTasks := make([]TaskResult, len(tasks))
	for i := range tasks {
		evidence := make(map[string]QueryResult, len(refs[i]))
		for _, text := range refs[i] {
			if res, ok := executionResults[text]; ok {
				evidence[text] = res
			} else {
				evidence[text] = QueryResult{Err: "query was generated but not found in execution results"}
			}
		}
		curatedTasks[i] = TaskResult{
			TaskData:        &tasks[i],
			Queries:         taskPlans[i],
			Evidence:        evidence,
			CuratedEvidence: p.curator.Curate(&tasks[i], taskPlans[i], executionResults),
		}
	}
	result.CuratedTasks = curatedTasks

	result.ContextualInstructions = p.contextFilter.Filter(ctx, auditCase.PatientProfile, auditCase.PrescriptionOrders)

	result.Report = p.synthesizer.Synthesize(ctx,
		auditCase.PatientProfile, auditCase.PrescriptionOrders,
		curatedTasks, result.ContextualInstructions)

	if result.Report.Failed() {
		metrics.CasesProcessed.WithLabelValues("report_failed").Inc()
	} else {
		metrics.CasesProcessed.WithLabelValues("success").Inc()
	}
	return result
}

// RunBatch processes each case in order and persists a per-case file as soon
// as the case finishes, then the aggregate file. N cases in, N results out,
// even when several are degenerate.
func (p *Pipeline) RunBatch(ctx context.Context, cases []Case, outDir, stem string) ([]*CaseResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	results := make([]*CaseResult, 0, len(cases))
	for i := range cases {
		auditCase := &cases[i]
		if auditCase.CaseID == "" {
			auditCase.CaseID = fmt.Sprintf("unknown_case_%d", i)
		}
		p.logger.Info("processing case",
			zap.String("case_id", auditCase.CaseID),
			zap.Int("index", i+1), zap.Int("total", len(cases)))

		result := p.RunCase(ctx, auditCase)
		results = append(results, result)

		casePath := filepath.Join(outDir, fmt.Sprintf("%s_audit_%s.json", stem, auditCase.CaseID))
		if err := saveJSON(result, casePath); err != nil {
			p.logger.Error("failed to save case result", zap.String("case_id", auditCase.CaseID), zap.Error(err))
		} else {
			p.logger.Info("saved case result", zap.String("path", casePath))
		}
	}

	aggPath := filepath.Join(outDir, fmt.Sprintf("%s_audit_all_cases.json", stem))
	if err := saveJSON(results, aggPath); err != nil {
		return results, fmt.Errorf("save aggregate results: %w", err)
	}
	p.logger.Info("batch complete", zap.Int("cases", len(results)), zap.String("path", aggPath))
	return results, nil
}

func saveJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
