package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
)

const (
	DefaultLimit   = 20
	MaxLimit       = 100
	MaxTrendPoints = 744 // 31 days of hourly buckets
)

// Limits bound caller-supplied parameters
type Limits struct {
	MaxWindowDays int
	MaxSQLBytes   int
	MaxTimeout    time.Duration
}

// params reads typed values from a tool input. The first failure is kept
// and reported by err.
type params struct {
	tool  string
	input map[string]interface{}
}

func invalid(tool, format string, args ...any) error {
	return errs.InvalidParameter(tool, format, args...)
}

// checkKnown rejects parameters the tool does not declare
func checkKnown(tool string, schema map[string]interface{}, input map[string]interface{}) error {
	props, _ := schema["properties"].(map[string]interface{})
	for k := range input {
		if k == "timeout_seconds" {
			continue
		}
		if _, ok := props[k]; !ok {
			return invalid(tool, "unknown parameter %q", k)
		}
	}
	return nil
}

// integer accepts JSON numbers without a fractional part and numeric strings
func (p params) integer(name string) (int, bool, error) {
	v, ok := p.input[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, true, invalid(p.tool, "%s must be an integer, got %v", name, n)
		}
		return int(n), true, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, invalid(p.tool, "%s must be an integer, got %s", name, n)
		}
		return int(i), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, invalid(p.tool, "%s must be an integer, got %q", name, n)
		}
		return i, true, nil
	}
	return 0, true, invalid(p.tool, "%s must be an integer", name)
}

func (p params) number(name string) (float64, bool, error) {
	v, ok := p.input[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, invalid(p.tool, "%s must be a number, got %s", name, n)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, true, invalid(p.tool, "%s must be a number, got %q", name, n)
		}
		return f, true, nil
	}
	return 0, true, invalid(p.tool, "%s must be a number", name)
}

func (p params) str(name string) (string, bool, error) {
	v, ok := p.input[name]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, invalid(p.tool, "%s must be a string", name)
	}
	return s, true, nil
}

// window resolves either start/end (RFC3339) or days counted back from now
func (p params) window(now time.Time, defaultDays, maxDays int) (models.Window, error) {
	start, hasStart, err := p.str("start")
	if err != nil {
		return models.Window{}, err
	}
	end, hasEnd, err := p.str("end")
	if err != nil {
		return models.Window{}, err
	}
	maxSpan := time.Duration(maxDays) * 24 * time.Hour

	if hasStart || hasEnd {
		if _, hasDays := p.input["days"]; hasDays {
			return models.Window{}, invalid(p.tool, "use either days or start/end, not both")
		}
		if !hasStart || !hasEnd {
			return models.Window{}, invalid(p.tool, "start and end must be given together")
		}
		s, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return models.Window{}, invalid(p.tool, "start %q is not an RFC3339 timestamp", start)
		}
		e, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return models.Window{}, invalid(p.tool, "end %q is not an RFC3339 timestamp", end)
		}
		w := models.Window{Start: s.UTC(), End: e.UTC()}
		if !w.End.After(w.Start) {
			return models.Window{}, invalid(p.tool, "end must be after start")
		}
		if w.Start.After(now) {
			return models.Window{}, invalid(p.tool, "start must not be in the future")
		}
		if w.Duration() > maxSpan {
			return models.Window{}, invalid(p.tool, "window may span at most %d days", maxDays)
		}
		return w, nil
	}

	days, ok, err := p.integer("days")
	if err != nil {
		return models.Window{}, err
	}
	if !ok {
		days = defaultDays
	}
	if days < 1 || days > maxDays {
		return models.Window{}, invalid(p.tool, "days must be between 1 and %d, got %d", maxDays, days)
	}
	return models.LastDays(now, days), nil
}

func (p params) limit() (int, error) {
	n, ok, err := p.integer("limit")
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultLimit, nil
	}
	if n < 1 || n > MaxLimit {
		return 0, invalid(p.tool, "limit must be between 1 and %d, got %d", MaxLimit, n)
	}
	return n, nil
}

// granularity also caps how many buckets the window may produce
func (p params) granularity(w models.Window) (models.Granularity, error) {
	s, _, err := p.str("granularity")
	if err != nil {
		return "", err
	}
	g, ok := models.ParseGranularity(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return "", invalid(p.tool, "granularity must be one of hour, day, week, month, got %q", s)
	}
	if n := g.Buckets(w); n > MaxTrendPoints {
		return "", invalid(p.tool, "%s granularity over this window yields %d points, at most %d allowed", g, n, MaxTrendPoints)
	}
	return g, nil
}

func (p params) sql(maxBytes int) (string, error) {
	s, _, err := p.str("sql")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid(p.tool, "sql is required")
	}
	if maxBytes > 0 && len(s) > maxBytes {
		return "", invalid(p.tool, "sql is %d bytes, at most %d allowed", len(s), maxBytes)
	}
	return s, nil
}

func (p params) requiredString(name string) (string, error) {
	s, _, err := p.str(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid(p.tool, "%s is required", name)
	}
	return s, nil
}

// timeout reads timeout_seconds, falling back to def
func (p params) timeout(def, max time.Duration) (time.Duration, error) {
	n, ok, err := p.integer("timeout_seconds")
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	maxSeconds := int(max / time.Second)
	if n < 1 || n > maxSeconds {
		return 0, invalid(p.tool, "timeout_seconds must be between 1 and %d, got %d", maxSeconds, n)
	}
	return time.Duration(n) * time.Second, nil
}
