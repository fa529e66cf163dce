package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultDataSourceType = "bigquery"

	DefaultGCPRegion          = "us"
	DefaultBigQueryLocation   = "US"
	DefaultPricePerTiBUSD     = 6.25
	DefaultCallTimeout        = 60 * time.Second
	DefaultMaxCallTimeout     = 300 * time.Second
	DefaultMaxWindowDays      = 180
	DefaultAzureSQLPort       = 1433
	DefaultAzureSQLAuth       = AzureAuthSQL
	DefaultAzureSQLMaxConns   = 10
	DefaultAzureOpenAIVersion = "2023-12-01-preview"

	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultNL2SQLRetries  = 3
	DefaultNL2SQLTimeout  = 30 // seconds
	DefaultSchemaTables   = 50

	DefaultElasticsearchPort       = 9200
	DefaultElasticsearchScheme     = "http"
	DefaultElasticsearchMaxRetries = 3
	DefaultElasticsearchTimeout    = 30
	DefaultElasticsearchIndex      = "finops-audit"

	DefaultMaxPromptLength = 2000
	DefaultMaxSQLBytes     = 100 * 1024

	DefaultCORSMaxAge = 300
)

// Azure SQL authentication modes
const (
	AzureAuthSQL     = "sql"
	AzureAuthAzureAD = "azuread"
)

// NL2SQL providers
const (
	ProviderAzureOpenAI = "azure_openai"
	ProviderAnthropic   = "anthropic"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}
