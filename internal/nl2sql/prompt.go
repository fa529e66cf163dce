package nl2sql

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You translate questions about a %s database into SQL.

Rules:
- Answer with exactly one read-only %s statement that starts with SELECT or WITH.
- Never write INSERT, UPDATE, DELETE, MERGE, DROP, ALTER, CREATE, TRUNCATE, EXEC or SELECT ... INTO.
- Only reference tables and columns listed in the schema context when one is given.
- Limit result sets with %s unless the question asks for every row.
- Wrap the statement in a single ` + "```sql" + ` code block and add nothing else.
- If the question asks to change data or cannot be answered read-only, still answer with the closest read-only SELECT.`

// Dialect describes the SQL flavour the model must produce
type Dialect struct {
	Database string // e.g. "Azure SQL"
	Language string // e.g. "T-SQL"
	RowLimit string // e.g. "TOP (100)"
}

var DialectTSQL = Dialect{Database: "Azure SQL", Language: "T-SQL", RowLimit: "TOP (100)"}

func buildSystemPrompt(d Dialect) string {
	return fmt.Sprintf(systemPromptTemplate, d.Database, d.Language, d.RowLimit)
}

func buildUserPrompt(question, schemaContext string) string {
	var b strings.Builder
	if s := strings.TrimSpace(schemaContext); s != "" {
		b.WriteString("Schema context:\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}
