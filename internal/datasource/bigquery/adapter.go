// Package bigquery reads cost data from BigQuery job metadata and prices it
// at the on-demand rate.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/normalize"
)

// Adapter is the BigQuery data source
type Adapter struct {
	runner  Runner
	project string
	price   float64
	view    string
}

// Open connects to BigQuery with cfg
func Open(ctx context.Context, cfg config.BigQueryConfig) (*Adapter, error) {
	runner, err := NewClientRunner(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "bigquery.open", err, "cannot create BigQuery client")
	}
	return New(runner, cfg), nil
}

// New builds an adapter on an existing runner
func New(runner Runner, cfg config.BigQueryConfig) *Adapter {
	price := cfg.PricePerTiBUSD
	if price <= 0 {
		price = config.DefaultPricePerTiBUSD
	}
	return &Adapter{
		runner:  runner,
		project: cfg.ProjectID,
		price:   price,
		view:    jobsView(cfg.ProjectID, cfg.Region),
	}
}

func (a *Adapter) Backend() models.Backend {
	return models.BackendBigQuery
}

type summaryRow struct {
	QueryCount     int64 `bigquery:"query_count"`
	BytesProcessed int64 `bigquery:"bytes_processed"`
	BytesBilled    int64 `bigquery:"bytes_billed"`
	SlotMillis     int64 `bigquery:"slot_ms"`
}

type jobRow struct {
	JobID          string    `bigquery:"job_id"`
	ProjectID      string    `bigquery:"project_id"`
	UserEmail      string    `bigquery:"user_email"`
	Query          string    `bigquery:"query"`
	BytesProcessed int64     `bigquery:"bytes_processed"`
	BytesBilled    int64     `bigquery:"bytes_billed"`
	SlotMillis     int64     `bigquery:"slot_ms"`
	CacheHit       bool      `bigquery:"cache_hit"`
	CreationTime   time.Time `bigquery:"creation_time"`
}

type groupRow struct {
	Key            string `bigquery:"group_key"`
	QueryCount     int64  `bigquery:"query_count"`
	BytesProcessed int64  `bigquery:"bytes_processed"`
	BytesBilled    int64  `bigquery:"bytes_billed"`
	SlotMillis     int64  `bigquery:"slot_ms"`
}

type trendRow struct {
	Bucket      time.Time `bigquery:"bucket"`
	QueryCount  int64     `bigquery:"query_count"`
	BytesBilled int64     `bigquery:"bytes_billed"`
}

// CostSummary totals the bytes billed in w and prices them in USD
func (a *Adapter) CostSummary(ctx context.Context, w models.Window) (models.CostSummary, error) {
	const op = "get_cost_summary"
	if err := w.Validate(); err != nil {
		return models.CostSummary{}, errs.InvalidParameter(op, "%v", err)
	}

	rows, err := readRows[summaryRow](ctx, a.runner, summarySQL(a.view), windowParams(w))
	if err != nil {
		return models.CostSummary{}, classify(op, err, false)
	}
	var row summaryRow
	if len(rows) > 0 {
		row = rows[0]
	}

	total := models.Quantity{Value: normalize.BytesToUSD(row.BytesBilled, a.price), Unit: models.UnitUSD}
	s := normalize.Summarize(models.BackendBigQuery, w, total, row.QueryCount,
		models.Measurement{Name: "bytes_processed", Value: float64(row.BytesProcessed), Unit: models.UnitBytes},
		models.Measurement{Name: "bytes_billed", Value: float64(row.BytesBilled), Unit: models.UnitBytes},
		models.Measurement{Name: "slot_time", Value: float64(row.SlotMillis), Unit: models.UnitSlotMillis},
	)
	s.Description = fmt.Sprintf("On-demand cost of query jobs in project %s at $%.2f per TiB billed", a.project, a.price)
	return s, nil
}

// ExpensiveQueries ranks finished query jobs by bytes processed
func (a *Adapter) ExpensiveQueries(ctx context.Context, w models.Window, limit int) (models.ExpensiveQueries, error) {
	const op = "get_expensive_queries"
	if err := w.Validate(); err != nil {
		return models.ExpensiveQueries{}, errs.InvalidParameter(op, "%v", err)
	}
	if limit <= 0 {
		return models.ExpensiveQueries{}, errs.InvalidParameter(op, "limit must be positive, got %d", limit)
	}

	params := append(windowParams(w), bq.QueryParameter{Name: "limit", Value: int64(limit)})
	rows, err := readRows[jobRow](ctx, a.runner, expensiveSQL(a.view), params)
	if err != nil {
		return models.ExpensiveQueries{}, classify(op, err, false)
	}

	records := make([]models.QueryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, normalize.BigQueryQueryRecord(normalize.BigQueryJob{
			JobID:          r.JobID,
			ProjectID:      r.ProjectID,
			UserEmail:      r.UserEmail,
			Query:          r.Query,
			BytesProcessed: r.BytesProcessed,
			BytesBilled:    r.BytesBilled,
			SlotMillis:     r.SlotMillis,
			CacheHit:       r.CacheHit,
			CreationTime:   r.CreationTime,
		}, a.price))
	}

	return models.ExpensiveQueries{
		Backend: models.BackendBigQuery,
		Unit:    models.UnitBytes,
		Window:  w,
		Limit:   limit,
		Queries: normalize.RankQueries(records, limit),
	}, nil
}

// ProjectCosts groups job costs by the project that ran them
func (a *Adapter) ProjectCosts(ctx context.Context, w models.Window) (models.ProjectCosts, error) {
	const op = "get_project_costs"
	if err := w.Validate(); err != nil {
		return models.ProjectCosts{}, errs.InvalidParameter(op, "%v", err)
	}

	rows, err := readRows[groupRow](ctx, a.runner, groupedSQL(a.view, "project_id"), windowParams(w))
	if err != nil {
		return models.ProjectCosts{}, classify(op, err, false)
	}

	entries := make([]models.ProjectCostEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.ProjectCostEntry{
			Project:    r.Key,
			Cost:       models.Quantity{Value: normalize.BytesToUSD(r.BytesBilled, a.price), Unit: models.UnitUSD},
			QueryCount: r.QueryCount,
			Attributes: map[string]string{
				"bytes_processed": strconv.FormatInt(r.BytesProcessed, 10),
				"bytes_billed":    strconv.FormatInt(r.BytesBilled, 10),
				"slot_ms":         strconv.FormatInt(r.SlotMillis, 10),
			},
		})
	}

	return models.ProjectCosts{
		Backend: models.BackendBigQuery,
		Unit:    models.UnitUSD,
		Window:  w,
		Entries: normalize.MergeProjectCosts(entries),
	}, nil
}

// UserCosts groups job costs by the principal that submitted them
func (a *Adapter) UserCosts(ctx context.Context, w models.Window) (models.UserCosts, error) {
	const op = "get_cost_by_user"
	if err := w.Validate(); err != nil {
		return models.UserCosts{}, errs.InvalidParameter(op, "%v", err)
	}

	rows, err := readRows[groupRow](ctx, a.runner, groupedSQL(a.view, "user_email"), windowParams(w))
	if err != nil {
		return models.UserCosts{}, classify(op, err, false)
	}

	entries := make([]models.UserCostEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.UserCostEntry{
			User:       r.Key,
			Cost:       models.Quantity{Value: normalize.BytesToUSD(r.BytesBilled, a.price), Unit: models.UnitUSD},
			QueryCount: r.QueryCount,
			Usage: []models.Measurement{
				{Name: "bytes_processed", Value: float64(r.BytesProcessed), Unit: models.UnitBytes},
				{Name: "bytes_billed", Value: float64(r.BytesBilled), Unit: models.UnitBytes},
				{Name: "slot_time", Value: float64(r.SlotMillis), Unit: models.UnitSlotMillis},
			},
		})
	}

	return models.UserCosts{
		Backend: models.BackendBigQuery,
		Unit:    models.UnitUSD,
		Window:  w,
		Entries: normalize.MergeUserCosts(entries),
	}, nil
}

// CostTrends buckets priced job costs by g and zero-fills empty buckets
func (a *Adapter) CostTrends(ctx context.Context, w models.Window, g models.Granularity) (models.CostTrend, error) {
	const op = "get_cost_trends"
	if err := w.Validate(); err != nil {
		return models.CostTrend{}, errs.InvalidParameter(op, "%v", err)
	}
	sql, ok := trendSQL(a.view, g)
	if !ok {
		return models.CostTrend{}, errs.InvalidParameter(op, "unsupported granularity %q", g)
	}

	rows, err := readRows[trendRow](ctx, a.runner, sql, windowParams(w))
	if err != nil {
		return models.CostTrend{}, classify(op, err, false)
	}

	points := make([]models.TrendPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.TrendPoint{
			Timestamp:  r.Bucket.UTC(),
			Value:      normalize.BytesToUSD(r.BytesBilled, a.price),
			QueryCount: r.QueryCount,
		})
	}

	return models.CostTrend{
		Backend:     models.BackendBigQuery,
		Unit:        models.UnitUSD,
		Granularity: g,
		Window:      w,
		Points:      normalize.FillTrend(points, w, g),
	}, nil
}

// AnalyzeQueryCost dry-runs sql and projects the cost of the bytes it
// would process
func (a *Adapter) AnalyzeQueryCost(ctx context.Context, sql string) (models.QueryPlanEstimate, error) {
	const op = "analyze_query_cost"
	if strings.TrimSpace(sql) == "" {
		return models.QueryPlanEstimate{}, errs.InvalidParameter(op, "sql is required")
	}

	stats, err := a.runner.DryRun(ctx, sql)
	if err != nil {
		return models.QueryPlanEstimate{}, classify(op, err, true)
	}

	log.Debug().
		Int64("bytes", stats.TotalBytesProcessed).
		Str("statement_type", stats.StatementType).
		Msg("bigquery dry run")

	return models.QueryPlanEstimate{
		Backend:          models.BackendBigQuery,
		SQL:              sql,
		Valid:            true,
		EstimatedBytes:   stats.TotalBytesProcessed,
		EstimatedCost:    models.Quantity{Value: normalize.BytesToUSD(stats.TotalBytesProcessed, a.price), Unit: models.UnitUSD},
		StatementType:    stats.StatementType,
		ReferencedTables: stats.ReferencedTables,
	}, nil
}

// NaturalLanguageToSQL is not offered for BigQuery
func (a *Adapter) NaturalLanguageToSQL(ctx context.Context, question, schemaContext string) (models.SQLTranslationResult, error) {
	return models.SQLTranslationResult{}, errs.Unsupported("natural_language_to_sql",
		"natural language to SQL is not available for the bigquery backend")
}

// Ping runs a trivial query
func (a *Adapter) Ping(ctx context.Context) error {
	type one struct {
		V int64 `bigquery:"v"`
	}
	if _, err := readRows[one](ctx, a.runner, "SELECT 1 AS v", nil); err != nil {
		return classify("ping", err, false)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.runner.Close()
}

func windowParams(w models.Window) []bq.QueryParameter {
	return []bq.QueryParameter{
		{Name: "start", Value: w.Start.UTC()},
		{Name: "end", Value: w.End.UTC()},
	}
}

func readRows[T any](ctx context.Context, r Runner, sql string, params []bq.QueryParameter) ([]T, error) {
	it, err := r.Read(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	var rows []T
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// classify maps SDK failures onto the error taxonomy. invalidQuery is only
// the caller's fault when the caller supplied the statement.
func classify(op string, err error, callerSQL bool) error {
	if errs.IsContext(err) {
		return errs.Timeout(op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := ""
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden || reason == "accessDenied":
			return errs.Wrap(errs.KindPermissionDenied, op, err, "access denied by BigQuery")
		case callerSQL && (reason == "invalidQuery" || reason == "invalid" || gerr.Code == http.StatusBadRequest):
			return errs.Wrap(errs.KindInvalidQuery, op, err, "statement rejected by BigQuery")
		}
		return errs.Wrap(errs.KindBackendUnavailable, op, err, "BigQuery request failed")
	}

	var jerr *bq.Error
	if errors.As(err, &jerr) {
		switch {
		case jerr.Reason == "accessDenied":
			return errs.Wrap(errs.KindPermissionDenied, op, err, "access denied by BigQuery")
		case callerSQL && (jerr.Reason == "invalidQuery" || jerr.Reason == "invalid"):
			return errs.Wrap(errs.KindInvalidQuery, op, err, "statement rejected by BigQuery")
		}
	}

	return errs.Wrap(errs.KindBackendUnavailable, op, err, "BigQuery request failed")
}
