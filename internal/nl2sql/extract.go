package nl2sql

import (
	"regexp"
	"strings"
)

var (
	// first line starting a SELECT or CTE
	reStatementStart = regexp.MustCompile(`(?im)^\s*(SELECT|WITH)\b`)
	reBlankLine      = regexp.MustCompile(`\n\s*\n`)
	// a line that reads as SQL: statement verbs in any case, clause
	// keywords only in upper case so prose like "Where" stays prose
	reSQLLine = regexp.MustCompile(`(?m)^\s*(?:(?i:SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|MERGE|EXEC|EXECUTE|GRANT|REVOKE|DENY|DECLARE|BACKUP|RESTORE|DBCC|SHUTDOWN|WAITFOR|BULK)|WITH|FROM|WHERE|GROUP|ORDER|HAVING|UNION|JOIN|INNER|LEFT|RIGHT|FULL|CROSS|OUTER|LIMIT|OFFSET|SET|USE|CALL|KILL|GO)\b`)
)

// ExtractSQL pulls the statement out of raw model output. It never shortens
// what the model wrote: every fenced block is kept, joined as separate
// statements, and a bare statement runs through the last paragraph that
// still reads as SQL. Output with no recognisable statement is returned
// whole so the validator can explain the rejection.
func ExtractSQL(text string) string {
	// fenced blocks, minus a language tag line
	var blocks []string
	parts := strings.Split(text, "```")
	for i := 1; i < len(parts)-1; i += 2 {
		if sql := cleanStatement(stripLanguageTag(parts[i])); sql != "" {
			blocks = append(blocks, sql)
		}
	}
	if len(blocks) > 0 {
		return strings.Join(blocks, ";\n")
	}

	// bare statement in prose
	if loc := reStatementStart.FindStringIndex(text); loc != nil {
		rest := text[loc[0]:]
		if sql := cleanStatement(rest[:statementEnd(rest)]); sql != "" {
			return sql
		}
	}

	return cleanStatement(text)
}

// stripLanguageTag drops a leading ```sql style tag line
func stripLanguageTag(block string) string {
	nl := strings.Index(block, "\n")
	if nl == -1 {
		return block
	}
	first := strings.TrimSpace(block[:nl])
	up := strings.ToUpper(first)
	if first != "" && !strings.ContainsAny(first, " (*") && up != "SELECT" && up != "WITH" {
		return block[nl+1:]
	}
	return block
}

// statementEnd returns the end of the first paragraph of s, extended over
// every later paragraph that contains a SQL line
func statementEnd(s string) int {
	seps := reBlankLine.FindAllStringIndex(s, -1)
	if len(seps) == 0 {
		return len(s)
	}
	end := seps[0][0]
	for i, sep := range seps {
		next := len(s)
		if i+1 < len(seps) {
			next = seps[i+1][0]
		}
		if reSQLLine.MatchString(s[sep[1]:next]) {
			end = next
		}
	}
	return end
}

// cleanStatement trims whitespace and one trailing statement terminator
func cleanStatement(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}
