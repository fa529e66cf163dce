package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/datasource"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/observability"
	"github.com/cortexai/finops-insight/internal/security"
)

// Options configure a Registry. Zero values fall back to defaults.
type Options struct {
	Limits
	DefaultTimeout time.Duration
	Audit          *security.AuditLogger
	Masker         *security.StatementMasker
	Now            func() time.Time
}

// Registry dispatches tool calls to the active data source
type Registry struct {
	ds    datasource.DataSource
	opts  Options
	tools map[string]Tool
	order []string
}

func NewRegistry(ds datasource.DataSource, opts Options) *Registry {
	if opts.MaxWindowDays <= 0 {
		opts.MaxWindowDays = 180
	}
	if opts.MaxSQLBytes <= 0 {
		opts.MaxSQLBytes = 100 * 1024
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 300 * time.Second
	}
	if opts.DefaultTimeout <= 0 || opts.DefaultTimeout > opts.MaxTimeout {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.Audit == nil {
		opts.Audit = security.NewAuditLogger(false, nil)
	}
	if opts.Masker == nil {
		opts.Masker = security.NewStatementMasker(true)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Registry{ds: ds, opts: opts, tools: map[string]Tool{}}
	for _, t := range r.finopsTools() {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t Tool) {
	if _, dup := r.tools[t.Name]; dup {
		panic(fmt.Sprintf("tool %q registered twice", t.Name))
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Backend is the backend every call is routed to
func (r *Registry) Backend() models.Backend {
	return r.ds.Backend()
}

// List returns the tools in registration order
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

type outcome struct {
	result any
	err    error
}

// Call validates and runs one tool under its own timeout. It never panics
// and never returns a backend-specific error type: every failure is
// folded into Response.Error. caller identifies the API key for audit.
func (r *Registry) Call(ctx context.Context, name string, input map[string]interface{}, caller string) Response {
	start := time.Now()
	resp := Response{Tool: name, Backend: r.ds.Backend()}
	if input == nil {
		input = map[string]interface{}{}
	}

	o := r.run(withCaller(ctx, caller), name, input)

	resp.DurationMs = time.Since(start).Milliseconds()
	resp.Result = o.result
	if o.err == nil {
		resp.Status = StatusOK
	} else {
		resp.Status = StatusError
		resp.Error = &ErrorBody{Kind: errs.KindOf(o.err), Message: errs.Message(o.err)}
		log.Warn().
			Str("tool", name).
			Str("backend", string(resp.Backend)).
			Str("kind", string(resp.Error.Kind)).
			Err(o.err).
			Msg("tool call failed")
	}

	kind := ""
	if resp.Error != nil {
		kind = string(resp.Error.Kind)
	}
	elapsed := time.Since(start)
	observability.ObserveToolCall(name, string(resp.Backend), resp.Status, kind, elapsed)
	r.opts.Audit.LogToolCall(name, string(resp.Backend), caller, resp.Status, kind, elapsed)
	return resp
}

func (r *Registry) run(ctx context.Context, name string, input map[string]interface{}) outcome {
	t, ok := r.tools[name]
	if !ok {
		return outcome{err: invalid(name, "unknown tool %q", name)}
	}
	if err := checkKnown(name, t.InputSchema, input); err != nil {
		return outcome{err: err}
	}
	timeout, err := params{tool: name, input: input}.timeout(r.opts.DefaultTimeout, r.opts.MaxTimeout)
	if err != nil {
		return outcome{err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Str("tool", name).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("tool panicked")
				done <- outcome{err: errs.New(errs.KindBackendUnavailable, name, "internal error while running %s", name)}
			}
		}()
		res, err := t.Execute(cctx, input)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && !isClassified(o.err) && errs.IsContext(o.err) {
			o.err = errs.Timeout(name, o.err)
		}
		return o
	case <-cctx.Done():
		return outcome{err: errs.Timeout(name, cctx.Err())}
	}
}

func isClassified(err error) bool {
	var e *errs.Error
	return errors.As(err, &e)
}
