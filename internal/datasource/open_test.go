package datasource_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/datasource"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
)

func TestOpenRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DataSourceConfig
		want string
	}{
		{"unknown kind", config.DataSourceConfig{Kind: "mongodb"}, "mongodb"},
		{"empty kind", config.DataSourceConfig{}, "DATA_SOURCE_TYPE"},
		{"bigquery without project", config.DataSourceConfig{Kind: "bigquery", BigQuery: config.BigQueryConfig{Region: "us", PricePerTiBUSD: 6.25}}, "GCP_PROJECT_ID"},
		{"azuresql without server", config.DataSourceConfig{Kind: "azuresql", AzureSQL: config.AzureSQLConfig{Database: "db", User: "u", Password: "p"}}, "AZURE_SQL_SERVER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := datasource.Open(context.Background(), tt.cfg)
			if ds != nil {
				t.Error("data source returned for invalid config")
			}
			if !errs.IsKind(err, errs.KindConfiguration) {
				t.Fatalf("error = %v, want ConfigurationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %q", err, tt.want)
			}
		})
	}
}

func TestOpenAzureSQLIsLazy(t *testing.T) {
	ds, err := datasource.Open(context.Background(), config.DataSourceConfig{
		Kind: "azuresql",
		AzureSQL: config.AzureSQLConfig{
			Server:   "127.0.0.1",
			Port:     1,
			Database: "SalesDB",
			User:     "finops",
			Password: "secret",
			Auth:     config.AzureAuthSQL,
		},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ds.Close()

	if ds.Backend() != models.BackendAzureSQL {
		t.Errorf("Backend() = %s", ds.Backend())
	}
	_, err = ds.NaturalLanguageToSQL(context.Background(), "top queries", "x(y)")
	if !errs.IsKind(err, errs.KindUnsupportedOperation) {
		t.Errorf("translation without a model: %v, want UnsupportedOperation", err)
	}
}

func TestNewTranslator(t *testing.T) {
	if tr := datasource.NewTranslator(config.ModelConfig{}); tr != nil {
		t.Error("translator built without a provider")
	}
	tr := datasource.NewTranslator(config.ModelConfig{
		AzureEndpoint:   "https://acme.openai.azure.com",
		AzureAPIKey:     "k",
		AzureDeployment: "gpt4o",
	})
	if tr == nil || tr.Model() != "azure-openai/gpt4o" {
		t.Errorf("translator = %v", tr)
	}
	tr = datasource.NewTranslator(config.ModelConfig{AnthropicAPIKey: "sk", AnthropicModel: "claude-test"})
	if tr == nil || tr.Model() != "anthropic/claude-test" {
		t.Errorf("translator = %v", tr)
	}
}
