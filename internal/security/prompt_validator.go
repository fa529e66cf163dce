package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cortexai/finops-insight/internal/errs"
)

const MaxPromptLength = 2000

// dangerousPatterns catch prompt injection and attempts to smuggle shell or
// code execution through the question text
var dangerousPatterns = []*regexp.Regexp{
	// Prompt injection
	regexp.MustCompile(`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above)\s+(instructions|rules)`),
	regexp.MustCompile(`(?i)\b(new|change)\s+context\s*:`),
	regexp.MustCompile(`(?i)instead\s+of\s+the\s+above`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
	regexp.MustCompile(`(?i)\b(system|developer)\s+prompt\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)</?(system|assistant|instructions)>`),

	// Command and code execution
	regexp.MustCompile(`(?i)\brm\s+-`),
	regexp.MustCompile(`(?i)\b(curl|wget)\s+`),
	regexp.MustCompile(`(?i)\b(bash|sh)\s+-c\b`),
	regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
	regexp.MustCompile(`(?i)(eval|exec|system|__import__|subprocess)\s*\(`),
	regexp.MustCompile(`(?i)os\.system`),

	// File access
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`/etc/(passwd|shadow)`),
	regexp.MustCompile(`id_rsa|\.ssh/`),
}

var defaultSensitiveTerms = []string{
	"password", "ssn", "social security", "credit card",
	"private key", "access token", "api key", "connection string",
}

// PromptValidator screens natural-language questions before they reach a
// language model
type PromptValidator struct {
	maxLength int
	sensitive []string
}

func NewPromptValidator(maxLength int) *PromptValidator {
	if maxLength <= 0 {
		maxLength = MaxPromptLength
	}
	return &PromptValidator{maxLength: maxLength, sensitive: defaultSensitiveTerms}
}

// Validate returns an InvalidParameter error describing why question was
// refused, or nil
func (v *PromptValidator) Validate(question string) error {
	const op = "natural_language_to_sql"
	if strings.TrimSpace(question) == "" {
		return errs.InvalidParameter(op, "question cannot be empty")
	}
	if n := utf8.RuneCountInString(question); n > v.maxLength {
		return errs.InvalidParameter(op, "question too long: %d chars (max %d)", n, v.maxLength)
	}
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(question) {
			return errs.InvalidParameter(op, "question rejected: disallowed pattern %q", pattern.FindString(question))
		}
	}
	lower := strings.ToLower(question)
	for _, term := range v.sensitive {
		if strings.Contains(lower, term) {
			return errs.InvalidParameter(op, "question asks for sensitive data (%s)", term)
		}
	}
	return nil
}
