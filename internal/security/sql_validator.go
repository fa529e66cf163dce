package security

import (
	"fmt"
	"strings"
	"unicode"
)

// bannedKeywords are rejected as bare words of the statement. The first
// seven are the write/DDL verbs; the rest close the remaining T-SQL and
// BigQuery paths to side effects.
var bannedKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "TRUNCATE": true,

	"MERGE": true, "EXEC": true, "EXECUTE": true, "CALL": true,
	"GRANT": true, "REVOKE": true, "DENY": true, "INTO": true,
	"BULK": true, "OPENROWSET": true, "OPENDATASOURCE": true, "OPENQUERY": true,
	"SHUTDOWN": true, "KILL": true, "DBCC": true, "BACKUP": true,
	"RESTORE": true, "WAITFOR": true, "LOAD_FILE": true, "OUTFILE": true,
	"DUMPFILE": true, "RECONFIGURE": true,
}

// writeVerbs are rejected as whole words anywhere in the text, including
// literals, comments and quoted identifiers
var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "TRUNCATE": true,
}

// SQLValidator checks that a statement is a single read-only query
type SQLValidator struct {
	maxBytes int
}

func NewSQLValidator(maxBytes int) *SQLValidator {
	return &SQLValidator{maxBytes: maxBytes}
}

// Validate returns the rejection reason for sql, or empty string if OK
func (v *SQLValidator) Validate(sql string) string {
	if strings.TrimSpace(sql) == "" {
		return "SQL cannot be empty"
	}
	if v.maxBytes > 0 && len(sql) > v.maxBytes {
		return fmt.Sprintf("SQL too long: %d bytes (max %d)", len(sql), v.maxBytes)
	}

	stmts, err := scanStatements(sql)
	if err != nil {
		return err.Error()
	}
	switch len(stmts) {
	case 0:
		return "SQL cannot be empty"
	case 1:
	default:
		return fmt.Sprintf("exactly one statement is allowed, found %d", len(stmts))
	}

	words := stmts[0].words
	if words[0] != "SELECT" && words[0] != "WITH" {
		return "only SELECT queries are allowed"
	}
	for _, w := range words {
		if bannedKeywords[w] {
			return "forbidden keyword: " + w
		}
		if strings.HasPrefix(w, "XP_") || strings.HasPrefix(w, "SP_") {
			return "system procedure not allowed: " + w
		}
	}
	if w := embeddedWriteVerb(sql); w != "" {
		return "forbidden keyword in literal, comment or identifier: " + w
	}
	return ""
}

// embeddedWriteVerb returns the first write verb found as a whole word in
// the raw text. created_at and Update_Count are single words and pass.
func embeddedWriteVerb(sql string) string {
	for _, f := range strings.FieldsFunc(sql, func(r rune) bool { return !isWordRune(r) }) {
		if w := strings.ToUpper(f); writeVerbs[w] {
			return w
		}
	}
	return ""
}

// SplitStatements returns the non-empty top-level statements of sql.
// Semicolons inside literals, comments and quoted identifiers do not split.
func SplitStatements(sql string) ([]string, error) {
	stmts, err := scanStatements(sql)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.text
	}
	return out, nil
}

// LeadingKeyword returns the first keyword of sql in upper case
func LeadingKeyword(sql string) string {
	stmts, err := scanStatements(sql)
	if err != nil || len(stmts) == 0 {
		return ""
	}
	return stmts[0].words[0]
}

type statement struct {
	text  string
	words []string
}

// scanStatements tokenizes sql into statements and the bare words of each.
// It understands 'strings' with '' escapes, "quoted" and [bracketed] and
// `backtick` identifiers, -- line comments and nested /* */ comments. A #
// starts a word (T-SQL temp tables), never a comment.
func scanStatements(sql string) ([]statement, error) {
	var (
		out   []statement
		words []string
		start int
	)
	flush := func(end int) {
		if len(words) > 0 {
			out = append(out, statement{text: strings.TrimSpace(sql[start:end]), words: words})
		}
		words = nil
		start = end + 1
	}

	rs := []rune(sql)
	// byte offsets for each rune index, so statement text can be sliced
	offs := make([]int, len(rs)+1)
	{
		i := 0
		for idx := range sql {
			offs[i] = idx
			i++
		}
		offs[len(rs)] = len(sql)
	}

	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closeQuote(rs, i+1, c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted text")
			}
			i = end
		case c == '[':
			end := closeQuote(rs, i+1, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated bracketed identifier")
			}
			i = end
		case c == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(rs) && rs[i+1] == '*':
			depth := 1
			i += 2
			for ; i < len(rs) && depth > 0; i++ {
				switch {
				case rs[i] == '/' && i+1 < len(rs) && rs[i+1] == '*':
					depth++
					i++
				case rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/':
					depth--
					i++
				}
			}
			if depth > 0 {
				return nil, fmt.Errorf("unterminated comment")
			}
			i--
		case c == ';':
			flush(offs[i])
		case isWordRune(c):
			j := i
			for j < len(rs) && isWordRune(rs[j]) {
				j++
			}
			words = append(words, strings.ToUpper(string(rs[i:j])))
			i = j - 1
		}
	}
	flush(len(sql))
	return out, nil
}

// closeQuote returns the index of the closing quote q at or after i. A
// doubled quote is an escape.
func closeQuote(rs []rune, i int, q rune) int {
	for ; i < len(rs); i++ {
		if rs[i] != q {
			continue
		}
		if i+1 < len(rs) && rs[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}

func isWordRune(r rune) bool {
	return r == '_' || r == '@' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
