package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecuteDispatchesByLanguage(t *testing.T) {
	relational := &fakeRelational{rows: map[string][]Row{
		"SELECT * FROM dosage_rules": {{"route": "口服"}},
	}}
	graph := &fakeGraph{rows: map[string][]Row{
		"MATCH (d:Drug) RETURN d": {{"name": "阿司匹林"}},
	}}
	e := NewExecutor(relational, graph, 4, zap.NewNop())

	results := e.Execute(context.Background(), []QueryStatement{
		{Lang: LangSQL, Text: "SELECT * FROM dosage_rules"},
		{Lang: LangCypher, Text: "MATCH (d:Drug) RETURN d"},
	})

	require.Len(t, results, 2)
	assert.Empty(t, results["SELECT * FROM dosage_rules"].Err)
	assert.Equal(t, "口服", results["SELECT * FROM dosage_rules"].Rows[0]["route"])
	assert.Equal(t, "阿司匹林", results["MATCH (d:Drug) RETURN d"].Rows[0]["name"])
}

func TestExecuteIsolatesFailures(t *testing.T) {
	relational := &fakeRelational{rows: map[string][]Row{
		"SELECT 1": {{"ok": int64(1)}},
	}}
	graph := &fakeGraph{rows: map[string][]Row{
		"MATCH (n) RETURN n": {{"n": "x"}},
	}}
	e := NewExecutor(relational, graph, 2, zap.NewNop())

	results := e.Execute(context.Background(), []QueryStatement{
		{Lang: LangSQL, Text: "SELECT 1"},
		{Lang: LangSQL, Text: "SELECT * FROM missing_table"}, // fails
		{Lang: LangCypher, Text: "MATCH (n) RETURN n"},
	})

	require.Len(t, results, 3)
	assert.Empty(t, results["SELECT 1"].Err)
	assert.NotEmpty(t, results["SELECT 1"].Rows)
	assert.Empty(t, results["MATCH (n) RETURN n"].Err)
	assert.NotEmpty(t, results["MATCH (n) RETURN n"].Rows)

	failed := results["SELECT * FROM missing_table"]
	assert.Empty(t, failed.Rows)
	assert.Contains(t, failed.Err, "relation does not exist")
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	e := NewExecutor(&fakeRelational{}, &fakeGraph{}, 1, zap.NewNop())

	results := e.Execute(context.Background(), []QueryStatement{
		{Lang: "gremlin", Text: "g.V()"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "unsupported language: gremlin", results["g.V()"].Err)
}

func TestExecuteDuplicateTextRunsOnce(t *testing.T) {
	relational := &fakeRelational{rows: map[string][]Row{
		"SELECT 1": {{"ok": int64(1)}},
	}}
	e := NewExecutor(relational, &fakeGraph{}, 4, zap.NewNop())

	// the executor receives a deduplicated plan in normal operation, but
	// duplicate text must still collapse to one result
	results := e.Execute(context.Background(), []QueryStatement{
		{Lang: LangSQL, Text: "SELECT 1"},
		{Lang: LangSQL, Text: "SELECT 1"},
	})
	assert.Len(t, results, 1)
}
