// Package tools exposes the data source capabilities as named tools with
// validated inputs and one response envelope for every outcome.
package tools

import (
	"context"

	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
)

// Tool is one callable operation. Execute receives already-decoded JSON
// arguments and returns a JSON-serialisable result.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`

	Execute func(ctx context.Context, input map[string]interface{}) (any, error) `json:"-"`
}

// Response statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is returned for every call, successful or not. Result may be
// set alongside Error when a failure still produced output, such as a
// rejected translation.
type Response struct {
	Tool       string         `json:"tool"`
	Backend    models.Backend `json:"backend"`
	Status     string         `json:"status"`
	Result     any            `json:"result,omitempty"`
	Error      *ErrorBody     `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// ErrorBody is the backend-neutral error shape
type ErrorBody struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

// OK reports whether the call succeeded
func (r Response) OK() bool {
	return r.Status == StatusOK
}
