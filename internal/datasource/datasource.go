// Package datasource defines the capability set every cost backend offers
// and selects the active backend from configuration.
package datasource

import (
	"context"

	"github.com/cortexai/finops-insight/internal/models"
)

// DataSource is one configured cost backend. Every method is safe for
// concurrent use and honours ctx cancellation.
//
// NaturalLanguageToSQL is optional: backends without a translator return
// an UnsupportedOperation error.
type DataSource interface {
	Backend() models.Backend

	CostSummary(ctx context.Context, w models.Window) (models.CostSummary, error)
	ExpensiveQueries(ctx context.Context, w models.Window, limit int) (models.ExpensiveQueries, error)
	ProjectCosts(ctx context.Context, w models.Window) (models.ProjectCosts, error)
	UserCosts(ctx context.Context, w models.Window) (models.UserCosts, error)
	CostTrends(ctx context.Context, w models.Window, g models.Granularity) (models.CostTrend, error)
	AnalyzeQueryCost(ctx context.Context, sql string) (models.QueryPlanEstimate, error)
	NaturalLanguageToSQL(ctx context.Context, question, schemaContext string) (models.SQLTranslationResult, error)

	// Ping checks the backend is reachable with the configured credentials
	Ping(ctx context.Context) error
	Close() error
}
