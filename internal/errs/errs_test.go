package errs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cortexai/finops-insight/internal/errs"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"nil", nil, ""},
		{"typed", errs.InvalidParameter("get_cost_summary", "days must be positive"), errs.KindInvalidParameter},
		{"wrapped", fmt.Errorf("outer: %w", errs.Unsupported("natural_language_to_sql", "nope")), errs.KindUnsupportedOperation},
		{"untyped", errors.New("boom"), errs.KindBackendUnavailable},
		{"timeout", errs.Timeout("get_cost_trends", context.DeadlineExceeded), errs.KindBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errs.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := errs.Timeout("analyze_query_cost", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Timeout should unwrap to context.DeadlineExceeded")
	}
	if !errs.IsContext(err) {
		t.Error("IsContext should see through the wrapper")
	}
}

func TestErrorIsKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", errs.New(errs.KindPermissionDenied, "bq", "access denied"))
	if !errors.Is(err, &errs.Error{Kind: errs.KindPermissionDenied}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &errs.Error{Kind: errs.KindInvalidQuery}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestMessage(t *testing.T) {
	err := errs.Wrap(errs.KindBackendUnavailable, "op", errors.New("dial tcp: refused"), "query failed")
	if got := errs.Message(err); got != "query failed: dial tcp: refused" {
		t.Errorf("Message() = %q", got)
	}
	if got := errs.Message(errs.Configuration("DATA_SOURCE_TYPE %q is not supported", "mongodb")); got != `DATA_SOURCE_TYPE "mongodb" is not supported` {
		t.Errorf("Message() = %q", got)
	}
}
