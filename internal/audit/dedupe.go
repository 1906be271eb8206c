package audit

// Dedupe collapses per-task query plans into a single set of unique
// statements, keyed strictly on statement text. The unique list keeps the
// insertion order of first occurrence; the second return value maps each
// task (by position) to the texts of the statements it referenced.
func Dedupe(taskPlans [][]QueryStatement) ([]QueryStatement, [][]string) {
	var unique []QueryStatement
	seen := make(map[string]bool)
	refs := make([][]string, len(taskPlans))

	for i, plan := range taskPlans {
		texts := make([]string, 0, len(plan))
		for _, stmt := range plan {
			texts = append(texts, stmt.Text)
			if seen[stmt.Text] {
				continue
			}
			seen[stmt.Text] = true
			unique = append(unique, stmt)
		}
		refs[i] = texts
	}
	return unique, refs
}
