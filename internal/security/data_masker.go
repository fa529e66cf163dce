package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailLiteralRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	cardLiteralRe  = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)
	ssnLiteralRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phoneLiteralRe = regexp.MustCompile(`\+\d[\d -]{7,}\d|\(\d{3}\) ?\d{3}-\d{4}`)
	secretColumnRe = regexp.MustCompile(`(?i)(password|secret|token|api_key|access_key|private_key)\s*=\s*N?'[^']*'`)
)

// StatementMasker hides personal data that query history exposes through
// literals embedded in statement text
type StatementMasker struct {
	enabled bool
}

func NewStatementMasker(enabled bool) *StatementMasker {
	return &StatementMasker{enabled: enabled}
}

// Mask rewrites sensitive literals in sql. Structure and keywords are kept
// so optimization hints still apply to the masked text.
func (m *StatementMasker) Mask(sql string) string {
	if !m.enabled || sql == "" {
		return sql
	}
	out := secretColumnRe.ReplaceAllStringFunc(sql, func(s string) string {
		i := strings.Index(s, "'")
		return s[:i] + "'***'"
	})
	out = emailLiteralRe.ReplaceAllStringFunc(out, maskEmail)
	out = ssnLiteralRe.ReplaceAllString(out, "***-**-****")
	out = cardLiteralRe.ReplaceAllStringFunc(out, maskCreditCard)
	out = phoneLiteralRe.ReplaceAllStringFunc(out, maskPhone)
	return out
}

// maskEmail: "john.doe@example.com" → "jo***@***.com"
func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***"
	}
	local := parts[0]
	domain := parts[1]

	visible := 2
	if len(local) < visible {
		visible = len(local)
	}
	maskedLocal := local[:visible] + "***"

	domainParts := strings.Split(domain, ".")
	ext := domainParts[len(domainParts)-1]
	return fmt.Sprintf("%s@***.%s", maskedLocal, ext)
}

// maskPhone: any phone → "***-***-1234" (show last 4)
func maskPhone(phone string) string {
	digits := onlyDigits(phone)
	if len(digits) < 4 {
		return "***-***-****"
	}
	return "***-***-" + digits[len(digits)-4:]
}

// maskCreditCard: "4111111111111111" → "****-****-****-1111". Digit runs
// failing the Luhn check (ids, epoch millis) are left alone.
func maskCreditCard(cc string) string {
	digits := onlyDigits(cc)
	if !luhn(digits) {
		return cc
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

func luhn(digits string) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
