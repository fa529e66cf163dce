package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/errs"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FINOPS_CONFIG", "DATA_SOURCE_TYPE", "GCP_PROJECT_ID", "GCP_REGION",
		"AZURE_SQL_SERVER", "AZURE_SQL_DATABASE", "AZURE_SQL_USERNAME", "AZURE_SQL_PASSWORD",
		"AZURE_SQL_AUTH", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY",
		"AZURE_OPENAI_DEPLOYMENT_NAME", "ANTHROPIC_API_KEY", "NL2SQL_PROVIDER",
		"FINOPS_ENABLE_AUTH", "FINOPS_API_KEYS", "BIGQUERY_PRICE_PER_TIB_USD",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataSourceType != "bigquery" {
		t.Errorf("DataSourceType = %q, want bigquery", cfg.DataSourceType)
	}
	if cfg.GCPRegion != "us" {
		t.Errorf("GCPRegion = %q, want us", cfg.GCPRegion)
	}
	if cfg.BigQueryPricePerTiBUSD != config.DefaultPricePerTiBUSD {
		t.Errorf("BigQueryPricePerTiBUSD = %v", cfg.BigQueryPricePerTiBUSD)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE_TYPE", " AzureSQL ")
	t.Setenv("AZURE_SQL_SERVER", "srv.database.windows.net")
	t.Setenv("BIGQUERY_PRICE_PER_TIB_USD", "5")
	t.Setenv("FINOPS_API_KEYS", "a, b,,c")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataSourceType != "azuresql" {
		t.Errorf("DataSourceType = %q", cfg.DataSourceType)
	}
	if cfg.AzureSQLServer != "srv.database.windows.net" {
		t.Errorf("AzureSQLServer = %q", cfg.AzureSQLServer)
	}
	if cfg.BigQueryPricePerTiBUSD != 5 {
		t.Errorf("BigQueryPricePerTiBUSD = %v", cfg.BigQueryPricePerTiBUSD)
	}
	if strings.Join(cfg.APIKeys, "|") != "a|b|c" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "finops.yaml")
	body := "data_source_type: azuresql\nazure_sql_server: yaml-server\nazure_sql_database: finops\nport: 9100\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINOPS_CONFIG", path)
	t.Setenv("AZURE_SQL_DATABASE", "from-env")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AzureSQLServer != "yaml-server" || cfg.Port != 9100 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.AzureSQLDatabase != "from-env" {
		t.Errorf("env should override file, got %q", cfg.AzureSQLDatabase)
	}
}

func TestLoadJSONFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "finops.json")
	if err := os.WriteFile(path, []byte(`{"gcp_project_id":"acme-prod","max_window_days":30}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINOPS_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GCPProjectID != "acme-prod" || cfg.MaxWindowDays != 30 {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("FINOPS_CONFIG", filepath.Join(t.TempDir(), "nope.json"))
	_, err := config.Load()
	if !errs.IsKind(err, errs.KindConfiguration) {
		t.Fatalf("Load() error = %v, want ConfigurationError", err)
	}
}

func bigQuery() config.DataSourceConfig {
	return config.DataSourceConfig{
		Kind:     "bigquery",
		BigQuery: config.BigQueryConfig{ProjectID: "acme-prod", Region: "us", PricePerTiBUSD: 6.25},
	}
}

func azureSQL() config.DataSourceConfig {
	return config.DataSourceConfig{
		Kind: "azuresql",
		AzureSQL: config.AzureSQLConfig{
			Server: "srv", Database: "db", User: "u", Password: "p", Auth: config.AzureAuthSQL,
		},
	}
}

func TestDataSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.DataSourceConfig)
		base    func() config.DataSourceConfig
		wantErr string
	}{
		{"bigquery ok", func(*config.DataSourceConfig) {}, bigQuery, ""},
		{"azure ok", func(*config.DataSourceConfig) {}, azureSQL, ""},
		{"unknown kind", func(d *config.DataSourceConfig) { d.Kind = "mongodb" }, bigQuery, `"mongodb" is not supported`},
		{"empty kind", func(d *config.DataSourceConfig) { d.Kind = "" }, bigQuery, "DATA_SOURCE_TYPE is empty"},
		{"missing project", func(d *config.DataSourceConfig) { d.BigQuery.ProjectID = "" }, bigQuery, "GCP_PROJECT_ID"},
		{"bad project", func(d *config.DataSourceConfig) { d.BigQuery.ProjectID = "x`; DROP" }, bigQuery, "not a valid project id"},
		{"bad region", func(d *config.DataSourceConfig) { d.BigQuery.Region = "us east" }, bigQuery, "not a valid region"},
		{"zero price", func(d *config.DataSourceConfig) { d.BigQuery.PricePerTiBUSD = 0 }, bigQuery, "must be positive"},
		{
			"azure lists every missing value",
			func(d *config.DataSourceConfig) { d.AzureSQL = config.AzureSQLConfig{Auth: config.AzureAuthSQL} },
			azureSQL,
			"AZURE_SQL_SERVER, AZURE_SQL_DATABASE, AZURE_SQL_USERNAME, AZURE_SQL_PASSWORD",
		},
		{
			"azuread needs no password",
			func(d *config.DataSourceConfig) {
				d.AzureSQL.Auth = config.AzureAuthAzureAD
				d.AzureSQL.User, d.AzureSQL.Password = "", ""
			},
			azureSQL, "",
		},
		{"bad auth", func(d *config.DataSourceConfig) { d.AzureSQL.Auth = "kerberos" }, azureSQL, "AZURE_SQL_AUTH"},
		{
			"partial azure openai",
			func(d *config.DataSourceConfig) { d.Model.AzureEndpoint = "https://x.openai.azure.com" },
			azureSQL,
			"AZURE_OPENAI_API_KEY, AZURE_OPENAI_DEPLOYMENT_NAME",
		},
		{"unknown provider", func(d *config.DataSourceConfig) { d.Model.Provider = "cohere" }, azureSQL, "NL2SQL_PROVIDER"},
		{
			"model ignored for bigquery",
			func(d *config.DataSourceConfig) { d.Model.AzureEndpoint = "https://x.openai.azure.com" },
			bigQuery, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.base()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errs.IsKind(err, errs.KindConfiguration) {
				t.Fatalf("Validate() error = %v, want ConfigurationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvedProvider(t *testing.T) {
	tests := []struct {
		m    config.ModelConfig
		want string
	}{
		{config.ModelConfig{}, ""},
		{config.ModelConfig{AzureAPIKey: "k"}, config.ProviderAzureOpenAI},
		{config.ModelConfig{AnthropicAPIKey: "k"}, config.ProviderAnthropic},
		{config.ModelConfig{Provider: "anthropic", AzureAPIKey: "k"}, config.ProviderAnthropic},
	}
	for _, tt := range tests {
		if got := tt.m.ResolvedProvider(); got != tt.want {
			t.Errorf("ResolvedProvider(%+v) = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestConfigValidateAuth(t *testing.T) {
	clearEnv(t)
	t.Setenv("GCP_PROJECT_ID", "acme-prod")
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.EnableAuth = true
	cfg.APIKeys = nil
	if err := cfg.Validate(); !errs.IsKind(err, errs.KindConfiguration) {
		t.Errorf("Validate() error = %v, want ConfigurationError", err)
	}
	cfg.APIKeys = []string{"k"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigValidateMalformedEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"AZURE_SQL_PORT", "abc"},
		{"FINOPS_RATE_LIMIT_PER_MINUTE", "10/min"},
		{"FINOPS_ENABLE_AUTH", "yes please"},
		{"BIGQUERY_PRICE_PER_TIB_USD", "six"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GCP_PROJECT_ID", "acme-prod")
			t.Setenv(tt.key, tt.value)
			cfg, err := config.Load()
			if err != nil {
				t.Fatal(err)
			}
			cfg.APIKeys = []string{"k"}
			err = cfg.Validate()
			if !errs.IsKind(err, errs.KindConfiguration) {
				t.Fatalf("Validate() error = %v, want ConfigurationError", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoadParsesBools(t *testing.T) {
	clearEnv(t)
	t.Setenv("FINOPS_ENABLE_AUTH", "FALSE")
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EnableAuth {
		t.Error("EnableAuth = true, want false")
	}
}
