package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rxaudit/internal/metrics"
)

// RelationalReader is the read-only view of the relational store the
// executor is allowed to hold. The store's write path is intentionally not
// part of this interface.
type RelationalReader interface {
	Query(ctx context.Context, stmt string) ([]Row, error)
}

// GraphReader is the read-only view of the graph store.
type GraphReader interface {
	ReadQuery(ctx context.Context, stmt string) ([]Row, error)
}

// Executor runs each unique statement exactly once against the backend its
// language tag implies. Failures stay local to their statement.
type Executor struct {
	relational  RelationalReader
	graph       GraphReader
	parallelism int
	logger      *zap.Logger
}

func NewExecutor(relational RelationalReader, graph GraphReader, parallelism int, logger *zap.Logger) *Executor {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Executor{
		relational:  relational,
		graph:       graph,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Execute runs the deduplicated statement set and returns results keyed by
// statement text. Statements are independent units: they run concurrently
// under a bounded group and one failing statement never prevents the others.
func (e *Executor) Execute(ctx context.Context, stmts []QueryStatement) map[string]QueryResult {
	results := make(map[string]QueryResult, len(stmts))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, stmt := range stmts {
		stmt := stmt
		mu.Lock()
		if _, done := results[stmt.Text]; done {
			mu.Unlock()
			continue
		}
		results[stmt.Text] = QueryResult{}
		mu.Unlock()

		g.Go(func() error {
			res := e.runOne(ctx, stmt)
			mu.Lock()
			results[stmt.Text] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, stmt QueryStatement) QueryResult {
	var rows []Row
	var err error

	switch stmt.Lang {
	case LangSQL:
		e.logger.Debug("executing SQL", zap.String("query", stmt.Text))
		rows, err = e.relational.Query(ctx, stmt.Text)
	case LangCypher:
		e.logger.Debug("executing Cypher", zap.String("query", stmt.Text))
		rows, err = e.graph.ReadQuery(ctx, stmt.Text)
	default:
		e.logger.Warn("unsupported query language",
			zap.String("lang", stmt.Lang), zap.String("query", stmt.Text))
		metrics.BackendQueries.WithLabelValues(stmt.Lang, "unsupported").Inc()
		return QueryResult{Err: "unsupported language: " + stmt.Lang}
	}

	if err != nil {
		e.logger.Error("query execution failed",
			zap.String("query", stmt.Text), zap.Error(err))
		metrics.BackendQueries.WithLabelValues(stmt.Lang, "error").Inc()
		return QueryResult{Err: err.Error()}
	}
	metrics.BackendQueries.WithLabelValues(stmt.Lang, "success").Inc()
	return QueryResult{Rows: rows}
}
