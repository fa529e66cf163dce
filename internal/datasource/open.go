package datasource

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/datasource/azuresql"
	"github.com/cortexai/finops-insight/internal/datasource/bigquery"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/nl2sql"
)

var (
	_ DataSource = (*bigquery.Adapter)(nil)
	_ DataSource = (*azuresql.Adapter)(nil)
)

// Open validates cfg and builds the adapter it selects. Unknown kinds and
// missing settings fail here, before any tool call is accepted.
func Open(ctx context.Context, cfg config.DataSourceConfig) (DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case "bigquery":
		a, err := bigquery.Open(ctx, cfg.BigQuery)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("project", cfg.BigQuery.ProjectID).
			Str("region", cfg.BigQuery.Region).
			Float64("price_per_tib_usd", cfg.BigQuery.PricePerTiBUSD).
			Msg("bigquery data source ready")
		return a, nil

	case "azuresql":
		tr := NewTranslator(cfg.Model)
		a, err := azuresql.Open(cfg.AzureSQL, translatorOrNil(tr))
		if err != nil {
			return nil, err
		}
		ev := log.Info().
			Str("server", cfg.AzureSQL.Server).
			Str("database", cfg.AzureSQL.Database).
			Str("auth", cfg.AzureSQL.Auth)
		if tr != nil {
			ev = ev.Str("model", tr.Model())
		}
		ev.Msg("azuresql data source ready")
		return a, nil
	}
	return nil, errs.Configuration("DATA_SOURCE_TYPE %q is not supported", cfg.Kind)
}

// NewTranslator builds the translator for m, or nil when no model provider
// is configured
func NewTranslator(m config.ModelConfig) *nl2sql.Translator {
	var c nl2sql.Completer
	switch m.ResolvedProvider() {
	case config.ProviderAzureOpenAI:
		c = nl2sql.NewAzureOpenAICompleter(m.AzureEndpoint, m.AzureAPIKey, m.AzureDeployment, m.AzureAPIVersion)
	case config.ProviderAnthropic:
		c = nl2sql.NewAnthropicCompleter(m.AnthropicAPIKey, m.AnthropicModel, m.AnthropicBaseURL)
	default:
		return nil
	}
	return nl2sql.NewTranslator(c, nl2sql.Options{
		Dialect:           nl2sql.DialectTSQL,
		MaxRetries:        m.MaxRetries,
		AttemptTimeout:    m.Timeout,
		MaxSQLBytes:       config.DefaultMaxSQLBytes,
		MaxQuestionLength: m.MaxPromptLength,
	})
}

// translatorOrNil keeps a nil *Translator from becoming a non-nil interface
func translatorOrNil(t *nl2sql.Translator) azuresql.Translator {
	if t == nil {
		return nil
	}
	return t
}
