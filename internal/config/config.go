package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortexai/finops-insight/internal/errs"
)

type Config struct {
	// Server
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Environment string `json:"environment" yaml:"environment"`
	APIPrefix   string `json:"api_prefix" yaml:"api_prefix"`
	LogLevel    string `json:"log_level" yaml:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header" yaml:"api_key_header"`
	APIKeys      []string `json:"api_keys" yaml:"api_keys"`
	EnableAuth   bool     `json:"enable_auth" yaml:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// Tool calls
	CallTimeoutSeconds    int `json:"call_timeout_seconds" yaml:"call_timeout_seconds"`
	MaxCallTimeoutSeconds int `json:"max_call_timeout_seconds" yaml:"max_call_timeout_seconds"`
	MaxWindowDays         int `json:"max_window_days" yaml:"max_window_days"`
	MaxSQLBytes           int `json:"max_sql_bytes" yaml:"max_sql_bytes"`
	MaxPromptLength       int `json:"max_prompt_length" yaml:"max_prompt_length"`

	// Data source
	DataSourceType string `json:"data_source_type" yaml:"data_source_type"`

	// BigQuery
	GCPProjectID                 string  `json:"gcp_project_id" yaml:"gcp_project_id"`
	GCPRegion                    string  `json:"gcp_region" yaml:"gcp_region"`
	GoogleApplicationCredentials string  `json:"google_application_credentials" yaml:"google_application_credentials"`
	BigQueryLocation             string  `json:"bigquery_location" yaml:"bigquery_location"`
	BigQueryPricePerTiBUSD       float64 `json:"bigquery_price_per_tib_usd" yaml:"bigquery_price_per_tib_usd"`

	// Azure SQL
	AzureSQLServer       string `json:"azure_sql_server" yaml:"azure_sql_server"`
	AzureSQLPort         int    `json:"azure_sql_port" yaml:"azure_sql_port"`
	AzureSQLDatabase     string `json:"azure_sql_database" yaml:"azure_sql_database"`
	AzureSQLUsername     string `json:"azure_sql_username" yaml:"azure_sql_username"`
	AzureSQLPassword     string `json:"azure_sql_password" yaml:"azure_sql_password"`
	AzureSQLAuth         string `json:"azure_sql_auth" yaml:"azure_sql_auth"`
	AzureSQLMaxOpenConns int    `json:"azure_sql_max_open_conns" yaml:"azure_sql_max_open_conns"`
	AzureSchemaTables    int    `json:"azure_schema_tables" yaml:"azure_schema_tables"`

	// AI / LLM
	NL2SQLProvider        string `json:"nl2sql_provider" yaml:"nl2sql_provider"`
	NL2SQLMaxRetries      int    `json:"nl2sql_max_retries" yaml:"nl2sql_max_retries"`
	NL2SQLTimeout         int    `json:"nl2sql_timeout" yaml:"nl2sql_timeout"` // seconds
	AzureOpenAIEndpoint   string `json:"azure_openai_endpoint" yaml:"azure_openai_endpoint"`
	AzureOpenAIAPIKey     string `json:"azure_openai_api_key" yaml:"azure_openai_api_key"`
	AzureOpenAIDeployment string `json:"azure_openai_deployment_name" yaml:"azure_openai_deployment_name"`
	AzureOpenAIAPIVersion string `json:"azure_openai_api_version" yaml:"azure_openai_api_version"`
	AnthropicAPIKey       string `json:"anthropic_api_key" yaml:"anthropic_api_key"`
	AnthropicBaseURL      string `json:"anthropic_base_url" yaml:"anthropic_base_url"` // override for custom proxy
	AnthropicModel        string `json:"anthropic_model" yaml:"anthropic_model"`

	// Audit
	EnableAuditLogging bool `json:"enable_audit_logging" yaml:"enable_audit_logging"`

	// Elasticsearch audit sink
	ElasticsearchEnabled     bool   `json:"elasticsearch_enabled" yaml:"elasticsearch_enabled"`
	ElasticsearchHost        string `json:"elasticsearch_host" yaml:"elasticsearch_host"`
	ElasticsearchPort        int    `json:"elasticsearch_port" yaml:"elasticsearch_port"`
	ElasticsearchScheme      string `json:"elasticsearch_scheme" yaml:"elasticsearch_scheme"`
	ElasticsearchUser        string `json:"elasticsearch_user" yaml:"elasticsearch_user"`
	ElasticsearchPassword    string `json:"elasticsearch_password" yaml:"elasticsearch_password"`
	ElasticsearchVerifyCerts bool   `json:"elasticsearch_verify_certs" yaml:"elasticsearch_verify_certs"`
	ElasticsearchMaxRetries  int    `json:"elasticsearch_max_retries" yaml:"elasticsearch_max_retries"`
	ElasticsearchTimeout     int    `json:"elasticsearch_timeout" yaml:"elasticsearch_timeout"`
	ElasticsearchIndex       string `json:"elasticsearch_index" yaml:"elasticsearch_index"`

	// malformed environment values, reported by Validate
	envErrors []string `json:"-" yaml:"-"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		Environment:              DefaultEnvironment,
		APIPrefix:                DefaultAPIPrefix,
		LogLevel:                 DefaultLogLevel,
		CORSOrigins:              DefaultCORSOrigins,
		APIKeyHeader:             "X-API-Key",
		EnableAuth:               true,
		RateLimitPerMinute:       DefaultRateLimitPerMinute,
		CallTimeoutSeconds:       int(DefaultCallTimeout / time.Second),
		MaxCallTimeoutSeconds:    int(DefaultMaxCallTimeout / time.Second),
		MaxWindowDays:            DefaultMaxWindowDays,
		MaxSQLBytes:              DefaultMaxSQLBytes,
		MaxPromptLength:          DefaultMaxPromptLength,
		DataSourceType:           DefaultDataSourceType,
		GCPRegion:                DefaultGCPRegion,
		BigQueryLocation:         DefaultBigQueryLocation,
		BigQueryPricePerTiBUSD:   DefaultPricePerTiBUSD,
		AzureSQLPort:             DefaultAzureSQLPort,
		AzureSQLAuth:             DefaultAzureSQLAuth,
		AzureSQLMaxOpenConns:     DefaultAzureSQLMaxConns,
		AzureSchemaTables:        DefaultSchemaTables,
		NL2SQLMaxRetries:         DefaultNL2SQLRetries,
		NL2SQLTimeout:            DefaultNL2SQLTimeout,
		AzureOpenAIAPIVersion:    DefaultAzureOpenAIVersion,
		AnthropicModel:           DefaultAnthropicModel,
		EnableAuditLogging:       true,
		ElasticsearchPort:        DefaultElasticsearchPort,
		ElasticsearchScheme:      DefaultElasticsearchScheme,
		ElasticsearchVerifyCerts: true,
		ElasticsearchMaxRetries:  DefaultElasticsearchMaxRetries,
		ElasticsearchTimeout:     DefaultElasticsearchTimeout,
		ElasticsearchIndex:       DefaultElasticsearchIndex,
	}

	// Load from config file if specified
	if path := getEnv("FINOPS_CONFIG", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, "config", err, "read %s", path)
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("FINOPS_HOST", ""); v != "" {
		cfg.Host = v
	}
	cfg.envInt("FINOPS_PORT", &cfg.Port)
	if v := getEnv("FINOPS_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("FINOPS_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("FINOPS_API_KEYS", ""); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if v := getEnv("FINOPS_CORS_ORIGINS", ""); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.envBool("FINOPS_ENABLE_AUTH", &cfg.EnableAuth)
	cfg.envInt("FINOPS_RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)
	cfg.envInt("FINOPS_CALL_TIMEOUT_SECONDS", &cfg.CallTimeoutSeconds)
	cfg.envInt("FINOPS_MAX_CALL_TIMEOUT_SECONDS", &cfg.MaxCallTimeoutSeconds)
	cfg.envInt("FINOPS_MAX_WINDOW_DAYS", &cfg.MaxWindowDays)
	cfg.envInt("FINOPS_MAX_SQL_BYTES", &cfg.MaxSQLBytes)
	cfg.envInt("FINOPS_MAX_PROMPT_LENGTH", &cfg.MaxPromptLength)
	cfg.envBool("FINOPS_ENABLE_AUDIT_LOGGING", &cfg.EnableAuditLogging)

	if v := getEnv("DATA_SOURCE_TYPE", ""); v != "" {
		cfg.DataSourceType = strings.ToLower(strings.TrimSpace(v))
	}

	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GCP_REGION", ""); v != "" {
		cfg.GCPRegion = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("BIGQUERY_LOCATION", ""); v != "" {
		cfg.BigQueryLocation = v
	}
	if v := getEnv("BIGQUERY_PRICE_PER_TIB_USD", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BigQueryPricePerTiBUSD = f
		} else {
			cfg.envError("BIGQUERY_PRICE_PER_TIB_USD", v, "a number")
		}
	}

	if v := getEnv("AZURE_SQL_SERVER", ""); v != "" {
		cfg.AzureSQLServer = v
	}
	cfg.envInt("AZURE_SQL_PORT", &cfg.AzureSQLPort)
	cfg.envInt("AZURE_SQL_MAX_OPEN_CONNS", &cfg.AzureSQLMaxOpenConns)
	cfg.envInt("AZURE_SCHEMA_TABLES", &cfg.AzureSchemaTables)
	if v := getEnv("AZURE_SQL_DATABASE", ""); v != "" {
		cfg.AzureSQLDatabase = v
	}
	if v := getEnv("AZURE_SQL_USERNAME", ""); v != "" {
		cfg.AzureSQLUsername = v
	}
	if v := getEnv("AZURE_SQL_PASSWORD", ""); v != "" {
		cfg.AzureSQLPassword = v
	}
	if v := getEnv("AZURE_SQL_AUTH", ""); v != "" {
		cfg.AzureSQLAuth = strings.ToLower(v)
	}

	if v := getEnv("NL2SQL_PROVIDER", ""); v != "" {
		cfg.NL2SQLProvider = strings.ToLower(v)
	}
	cfg.envInt("NL2SQL_MAX_RETRIES", &cfg.NL2SQLMaxRetries)
	cfg.envInt("NL2SQL_TIMEOUT", &cfg.NL2SQLTimeout)
	if v := getEnv("AZURE_OPENAI_ENDPOINT", ""); v != "" {
		cfg.AzureOpenAIEndpoint = v
	}
	if v := getEnv("AZURE_OPENAI_API_KEY", ""); v != "" {
		cfg.AzureOpenAIAPIKey = v
	}
	if v := getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", ""); v != "" {
		cfg.AzureOpenAIDeployment = v
	}
	if v := getEnv("AZURE_OPENAI_API_VERSION", ""); v != "" {
		cfg.AzureOpenAIAPIVersion = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}

	cfg.envBool("ELASTICSEARCH_ENABLED", &cfg.ElasticsearchEnabled)
	if v := getEnv("ELASTICSEARCH_HOST", ""); v != "" {
		cfg.ElasticsearchHost = v
	}
	cfg.envInt("ELASTICSEARCH_PORT", &cfg.ElasticsearchPort)
	if v := getEnv("ELASTICSEARCH_SCHEME", ""); v != "" {
		cfg.ElasticsearchScheme = v
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("ELASTICSEARCH_INDEX", ""); v != "" {
		cfg.ElasticsearchIndex = v
	}
}

var (
	projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.:_-]*$`)
	regionPattern    = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
)

// Validate checks the server settings and the selected backend. Every
// missing variable is reported at once.
func (c *Config) Validate() error {
	if len(c.envErrors) > 0 {
		return errs.Configuration("invalid environment: %s", strings.Join(c.envErrors, "; "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errs.Configuration("FINOPS_PORT %d is out of range", c.Port)
	}
	if c.MaxWindowDays <= 0 {
		return errs.Configuration("FINOPS_MAX_WINDOW_DAYS must be positive")
	}
	if c.CallTimeoutSeconds <= 0 || c.CallTimeoutSeconds > c.MaxCallTimeoutSeconds {
		return errs.Configuration("FINOPS_CALL_TIMEOUT_SECONDS must be between 1 and %d", c.MaxCallTimeoutSeconds)
	}
	if c.EnableAuth && len(c.APIKeys) == 0 {
		return errs.Configuration("FINOPS_ENABLE_AUTH is set but FINOPS_API_KEYS is empty")
	}
	return c.DataSource().Validate()
}

// DataSource returns the immutable backend selection record
func (c *Config) DataSource() DataSourceConfig {
	return DataSourceConfig{
		Kind: c.DataSourceType,
		BigQuery: BigQueryConfig{
			ProjectID:       c.GCPProjectID,
			Region:          c.GCPRegion,
			Location:        c.BigQueryLocation,
			CredentialsFile: c.GoogleApplicationCredentials,
			PricePerTiBUSD:  c.BigQueryPricePerTiBUSD,
		},
		AzureSQL: AzureSQLConfig{
			Server:       c.AzureSQLServer,
			Port:         c.AzureSQLPort,
			Database:     c.AzureSQLDatabase,
			User:         c.AzureSQLUsername,
			Password:     c.AzureSQLPassword,
			Auth:         c.AzureSQLAuth,
			MaxOpenConns: c.AzureSQLMaxOpenConns,
			SchemaTables: c.AzureSchemaTables,
		},
		Model: ModelConfig{
			Provider:         c.NL2SQLProvider,
			AzureEndpoint:    c.AzureOpenAIEndpoint,
			AzureAPIKey:      c.AzureOpenAIAPIKey,
			AzureDeployment:  c.AzureOpenAIDeployment,
			AzureAPIVersion:  c.AzureOpenAIAPIVersion,
			AnthropicAPIKey:  c.AnthropicAPIKey,
			AnthropicBaseURL: c.AnthropicBaseURL,
			AnthropicModel:   c.AnthropicModel,
			MaxRetries:       c.NL2SQLMaxRetries,
			Timeout:          time.Duration(c.NL2SQLTimeout) * time.Second,
			MaxPromptLength:  c.MaxPromptLength,
		},
	}
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c *Config) MaxCallTimeout() time.Duration {
	return time.Duration(c.MaxCallTimeoutSeconds) * time.Second
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DataSourceConfig selects the backend kind plus its connection details.
// It is built once at startup and passed by value afterwards.
type DataSourceConfig struct {
	Kind     string
	BigQuery BigQueryConfig
	AzureSQL AzureSQLConfig
	Model    ModelConfig
}

type BigQueryConfig struct {
	ProjectID       string
	Region          string
	Location        string
	CredentialsFile string
	PricePerTiBUSD  float64
}

type AzureSQLConfig struct {
	Server       string
	Port         int
	Database     string
	User         string
	Password     string
	Auth         string
	MaxOpenConns int
	SchemaTables int
}

type ModelConfig struct {
	Provider         string
	AzureEndpoint    string
	AzureAPIKey      string
	AzureDeployment  string
	AzureAPIVersion  string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	MaxRetries       int
	Timeout          time.Duration
	MaxPromptLength  int
}

// ResolvedProvider returns the explicit provider or infers it from which
// credentials are present. Empty means translation is not configured.
func (m ModelConfig) ResolvedProvider() string {
	if m.Provider != "" {
		return m.Provider
	}
	if m.AzureEndpoint != "" || m.AzureAPIKey != "" || m.AzureDeployment != "" {
		return ProviderAzureOpenAI
	}
	if m.AnthropicAPIKey != "" {
		return ProviderAnthropic
	}
	return ""
}

func (m ModelConfig) validate() []string {
	var missing []string
	switch m.ResolvedProvider() {
	case "":
	case ProviderAzureOpenAI:
		if m.AzureEndpoint == "" {
			missing = append(missing, "AZURE_OPENAI_ENDPOINT")
		}
		if m.AzureAPIKey == "" {
			missing = append(missing, "AZURE_OPENAI_API_KEY")
		}
		if m.AzureDeployment == "" {
			missing = append(missing, "AZURE_OPENAI_DEPLOYMENT_NAME")
		}
	case ProviderAnthropic:
		if m.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	default:
		missing = append(missing, fmt.Sprintf("NL2SQL_PROVIDER (unknown %q)", m.Provider))
	}
	return missing
}

// Validate fails with a ConfigurationError when the kind is unknown or a
// required value for the selected backend is absent
func (d DataSourceConfig) Validate() error {
	var missing []string
	switch d.Kind {
	case "bigquery":
		b := d.BigQuery
		if b.ProjectID == "" {
			missing = append(missing, "GCP_PROJECT_ID")
		} else if !projectIDPattern.MatchString(b.ProjectID) {
			return errs.Configuration("GCP_PROJECT_ID %q is not a valid project id", b.ProjectID)
		}
		if b.Region == "" {
			missing = append(missing, "GCP_REGION")
		} else if !regionPattern.MatchString(b.Region) {
			return errs.Configuration("GCP_REGION %q is not a valid region", b.Region)
		}
		if b.PricePerTiBUSD <= 0 {
			return errs.Configuration("BIGQUERY_PRICE_PER_TIB_USD must be positive")
		}
	case "azuresql":
		a := d.AzureSQL
		if a.Server == "" {
			missing = append(missing, "AZURE_SQL_SERVER")
		}
		if a.Database == "" {
			missing = append(missing, "AZURE_SQL_DATABASE")
		}
		switch a.Auth {
		case AzureAuthSQL, "":
			if a.User == "" {
				missing = append(missing, "AZURE_SQL_USERNAME")
			}
			if a.Password == "" {
				missing = append(missing, "AZURE_SQL_PASSWORD")
			}
		case AzureAuthAzureAD:
		default:
			return errs.Configuration("AZURE_SQL_AUTH %q is not supported", a.Auth)
		}
		missing = append(missing, d.Model.validate()...)
	case "":
		return errs.Configuration("DATA_SOURCE_TYPE is empty")
	default:
		return errs.Configuration("DATA_SOURCE_TYPE %q is not supported (want bigquery or azuresql)", d.Kind)
	}
	if len(missing) > 0 {
		return errs.Configuration("missing required configuration for %s: %s", d.Kind, strings.Join(missing, ", "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) envInt(key string, dst *int) {
	if v := getEnv(key, ""); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			c.envError(key, v, "an integer")
			return
		}
		*dst = n
	}
}

func (c *Config) envBool(key string, dst *bool) {
	if v := getEnv(key, ""); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			c.envError(key, v, "true or false")
			return
		}
		*dst = b
	}
}

func (c *Config) envError(key, value, want string) {
	c.envErrors = append(c.envErrors, fmt.Sprintf("%s=%q is not %s", key, value, want))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
