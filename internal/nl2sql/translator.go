// Package nl2sql turns natural-language questions into validated, read-only
// SQL. Generated statements are returned to the caller and never executed.
package nl2sql

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/security"
)

const op = "natural_language_to_sql"

// Completer sends one system + user prompt pair to a language model
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Request is one translation request
type Request struct {
	Backend       models.Backend
	Question      string
	SchemaContext string
}

// Options tune a Translator. Zero values fall back to defaults.
type Options struct {
	Dialect           Dialect
	MaxRetries        int
	InitialBackoff    time.Duration
	AttemptTimeout    time.Duration
	MaxSQLBytes       int
	MaxQuestionLength int
}

// Translator validates the question, asks the model and validates the answer
type Translator struct {
	completer Completer
	sql       *security.SQLValidator
	questions *security.PromptValidator
	opts      Options
}

func NewTranslator(c Completer, opts Options) *Translator {
	if opts.Dialect == (Dialect{}) {
		opts.Dialect = DialectTSQL
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	return &Translator{
		completer: c,
		sql:       security.NewSQLValidator(opts.MaxSQLBytes),
		questions: security.NewPromptValidator(opts.MaxQuestionLength),
		opts:      opts,
	}
}

// Model is the identifier of the underlying model
func (t *Translator) Model() string {
	return t.completer.Model()
}

// ValidateQuestion checks question without contacting the model
func (t *Translator) ValidateQuestion(question string) error {
	return t.questions.Validate(question)
}

// Translate returns a safe result and nil, or a result alongside a
// ModelUnavailable or TranslationRejected error. Rejected results still
// carry the model output for audit.
func (t *Translator) Translate(ctx context.Context, req Request) (models.SQLTranslationResult, error) {
	result := models.SQLTranslationResult{
		Backend:       req.Backend,
		Question:      req.Question,
		SchemaContext: req.SchemaContext,
		Model:         t.completer.Model(),
	}
	if err := t.ValidateQuestion(req.Question); err != nil {
		return result, err
	}

	raw, err := t.complete(ctx, buildSystemPrompt(t.opts.Dialect), buildUserPrompt(req.Question, req.SchemaContext))
	if err != nil {
		result.Status = models.RejectedStatus("model unavailable")
		return result, errs.Wrap(errs.KindModelUnavailable, op, err, "language model request failed")
	}
	result.RawOutput = raw

	sql := ExtractSQL(raw)
	if sql == "" {
		result.Status = models.RejectedStatus("model returned no SQL")
		return result, errs.New(errs.KindTranslationRejected, op, "model returned no SQL")
	}
	result.SQL = sql

	if reason := t.sql.Validate(sql); reason != "" {
		log.Warn().Str("reason", reason).Str("model", result.Model).Msg("generated SQL rejected")
		result.Status = models.RejectedStatus(reason)
		return result, errs.New(errs.KindTranslationRejected, op, "%s", reason)
	}

	result.Status = models.TranslationSafe
	return result, nil
}

// complete retries only the model request, only on transient failures
func (t *Translator) complete(ctx context.Context, system, user string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.opts.InitialBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	var out string
	operation := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, t.opts.AttemptTimeout)
		defer cancel()

		text, err := t.completer.Complete(actx, system, user)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var me *ModelError
		if errors.As(err, &me) && !me.Transient() {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("language model request failed, retrying")
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return "", err
	}
	return out, nil
}
