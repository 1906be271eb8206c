package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	a := QueryStatement{Lang: LangSQL, Text: "SELECT 1"}
	b := QueryStatement{Lang: LangSQL, Text: "SELECT 2"}
	c := QueryStatement{Lang: LangCypher, Text: "MATCH (n) RETURN n"}

	plans := [][]QueryStatement{
		{a, b},
		{b, c},
		{a},
	}

	unique, refs := Dedupe(plans)

	// unique by text, first-occurrence order, size bounded by the total
	require.Len(t, unique, 3)
	assert.Equal(t, []QueryStatement{a, b, c}, unique)
	seen := make(map[string]int)
	for _, s := range unique {
		seen[s.Text]++
	}
	for text, n := range seen {
		assert.Equal(t, 1, n, text)
	}

	// every task still references all of its own statements
	require.Len(t, refs, 3)
	assert.Equal(t, []string{a.Text, b.Text}, refs[0])
	assert.Equal(t, []string{b.Text, c.Text}, refs[1])
	assert.Equal(t, []string{a.Text}, refs[2])
}

func TestDedupeEmpty(t *testing.T) {
	unique, refs := Dedupe(nil)
	assert.Empty(t, unique)
	assert.Empty(t, refs)

	unique, refs = Dedupe([][]QueryStatement{nil, {}})
	assert.Empty(t, unique)
	require.Len(t, refs, 2)
}
