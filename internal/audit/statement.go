package audit

// Statement languages. The language tag decides which backend executes the
// statement.
const (
	LangSQL    = "sql"
	LangCypher = "cypher"
)

// QueryStatement is a value type; equality is by exact text, which is also
// the deduplication key.
type QueryStatement struct {
	Lang string `json:"lang"`
	Text string `json:"query"`
}

// QueryResult holds the rows of one executed statement, or an error
// descriptor. Written once by the executor, read-only thereafter.
type QueryResult struct {
	Rows []Row  `json:"rows,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Row mirrors store.Row so the curator does not depend on the store package.
type Row = map[string]any
