package models

import "time"

// Backend tags every result with the data source that produced it
type Backend string

const (
	BackendBigQuery Backend = "bigquery"
	BackendAzureSQL Backend = "azuresql"
)

// Unit names the measurement family of a value. BigQuery results are
// expressed in bytes/USD, Azure SQL results in CPU time and DTU percent;
// the two families are never converted into each other.
type Unit string

const (
	UnitUSD          Unit = "USD"
	UnitBytes        Unit = "bytes"
	UnitSlotMillis   Unit = "slot_ms"
	UnitCPUMillis    Unit = "cpu_ms"
	UnitPercent      Unit = "percent"
	UnitDTUPercent   Unit = "dtu_percent"
	UnitLogicalReads Unit = "logical_reads"
	UnitMillis       Unit = "ms"
	UnitSubtreeCost  Unit = "subtree_cost"
)

// Quantity is a unit-tagged value
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// Measurement is a named secondary metric
type Measurement struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// CostSummary is an aggregated snapshot over a window
type CostSummary struct {
	Backend     Backend       `json:"backend"`
	Window      Window        `json:"window"`
	Total       Quantity      `json:"total"`
	QueryCount  int64         `json:"query_count"`
	AvgPerQuery Quantity      `json:"avg_per_query"`
	Metrics     []Measurement `json:"metrics,omitempty"`
	Description string        `json:"description,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// QueryRecord is one observed query with its resource consumption
type QueryRecord struct {
	ID             string        `json:"id"`
	Statement      string        `json:"statement"`
	Principal      string        `json:"principal,omitempty"`
	Cost           Quantity      `json:"cost"`
	Usage          []Measurement `json:"usage,omitempty"`
	ExecutionCount int64         `json:"execution_count"`
	Timestamp      time.Time     `json:"timestamp"`
	Hint           *Hint         `json:"optimization,omitempty"`
}

// ExpensiveQueries is ordered most-expensive first
type ExpensiveQueries struct {
	Backend Backend       `json:"backend"`
	Unit    Unit          `json:"unit"`
	Window  Window        `json:"window"`
	Limit   int           `json:"limit"`
	Queries []QueryRecord `json:"queries"`
}

// ProjectCostEntry is the cost attributed to one project (BigQuery) or
// database (Azure SQL)
type ProjectCostEntry struct {
	Project    string            `json:"project"`
	Cost       Quantity          `json:"cost"`
	QueryCount int64             `json:"query_count"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ProjectCosts holds entries with unique keys ordered by descending cost
type ProjectCosts struct {
	Backend Backend            `json:"backend"`
	Unit    Unit               `json:"unit"`
	Window  Window             `json:"window"`
	Entries []ProjectCostEntry `json:"projects"`
}

// UserCostEntry is the cost attributed to one principal
type UserCostEntry struct {
	User       string        `json:"user"`
	Cost       Quantity      `json:"cost"`
	QueryCount int64         `json:"query_count"`
	Usage      []Measurement `json:"usage,omitempty"`
}

// UserCosts holds entries with unique keys ordered by descending cost
type UserCosts struct {
	Backend Backend         `json:"backend"`
	Unit    Unit            `json:"unit"`
	Window  Window          `json:"window"`
	Entries []UserCostEntry `json:"users"`
}

// TrendPoint is one bucket of a cost time series
type TrendPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	QueryCount int64     `json:"query_count"`
}

// CostTrend is an ascending time series bounded by Window
type CostTrend struct {
	Backend     Backend      `json:"backend"`
	Unit        Unit         `json:"unit"`
	Granularity Granularity  `json:"granularity"`
	Window      Window       `json:"window"`
	Points      []TrendPoint `json:"points"`
}

// QueryPlanEstimate is the projected cost of a statement that was never run
type QueryPlanEstimate struct {
	Backend          Backend  `json:"backend"`
	SQL              string   `json:"sql"`
	Valid            bool     `json:"valid"`
	EstimatedBytes   int64    `json:"estimated_bytes"`
	EstimatedRows    float64  `json:"estimated_rows"`
	EstimatedCost    Quantity `json:"estimated_cost"`
	StatementType    string   `json:"statement_type,omitempty"`
	ReferencedTables []string `json:"referenced_tables,omitempty"`
	Hint             *Hint    `json:"optimization,omitempty"`
	Reason           string   `json:"reason,omitempty"`
}

// Translation statuses
const (
	TranslationSafe     = "safe"
	translationRejected = "rejected: "
)

// RejectedStatus formats the rejected status string
func RejectedStatus(reason string) string {
	return translationRejected + reason
}

// SQLTranslationResult is the outcome of a natural-language translation
type SQLTranslationResult struct {
	Backend       Backend `json:"backend"`
	Question      string  `json:"question"`
	SQL           string  `json:"sql,omitempty"`
	RawOutput     string  `json:"raw_output,omitempty"`
	Status        string  `json:"status"`
	SchemaContext string  `json:"schema_context,omitempty"`
	Model         string  `json:"model,omitempty"`
}

// Safe reports whether the generated SQL passed validation
func (r SQLTranslationResult) Safe() bool {
	return r.Status == TranslationSafe
}

// Hint is an optimization suggestion for a statement
type Hint struct {
	Rule           string  `json:"rule"`
	Category       string  `json:"category"`
	Suggestion     string  `json:"suggestion"`
	Severity       string  `json:"severity"`
	SavingsPercent float64 `json:"savings_percent"`
}

// Recommendation pairs an expensive query with its estimated savings
type Recommendation struct {
	QueryID          string   `json:"query_id"`
	CurrentCost      Quantity `json:"current_cost"`
	Optimization     string   `json:"optimization"`
	Category         string   `json:"category"`
	EstimatedSavings Quantity `json:"estimated_savings"`
	Severity         string   `json:"severity"`
}

// Recommendations is the result of the optimization recommendations tool
type Recommendations struct {
	Backend               Backend          `json:"backend"`
	Window                Window           `json:"window"`
	TotalPotentialSavings Quantity         `json:"total_potential_savings"`
	QueriesAnalyzed       int              `json:"queries_analyzed"`
	Top                   []Recommendation `json:"top_recommendations"`
}

// CategorySavings is the savings attributable to one optimization category
type CategorySavings struct {
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	Savings        Quantity `json:"savings"`
	QueriesMatched int      `json:"queries_matched"`
}

// SavingsEstimate is the result of the savings estimation tool
type SavingsEstimate struct {
	Backend          Backend           `json:"backend"`
	Window           Window            `json:"window"`
	OptimizationType string            `json:"optimization_type"`
	Total            Quantity          `json:"total"`
	Breakdown        []CategorySavings `json:"breakdown"`
}
