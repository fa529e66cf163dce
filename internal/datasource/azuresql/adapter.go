// Package azuresql reads resource consumption from Azure SQL Database
// dynamic management views and Query Store. Costs are CPU time and DTU
// utilisation, never currency.
package azuresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/nl2sql"
	"github.com/cortexai/finops-insight/internal/normalize"
	"github.com/cortexai/finops-insight/internal/security"
)

// Translator turns questions into validated SQL
type Translator interface {
	ValidateQuestion(question string) error
	Translate(ctx context.Context, req nl2sql.Request) (models.SQLTranslationResult, error)
}

// Adapter is the Azure SQL data source
type Adapter struct {
	db           *sql.DB
	database     string
	schemaTables int
	translator   Translator
	validator    *security.SQLValidator
}

// Open creates the connection pool for cfg. No connection is made until the
// first call. translator may be nil when no model is configured.
func Open(cfg config.AzureSQLConfig, translator Translator) (*Adapter, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "azuresql.open", err, "cannot open Azure SQL pool")
	}
	return New(db, cfg, translator), nil
}

// New builds an adapter on an existing pool
func New(db *sql.DB, cfg config.AzureSQLConfig, translator Translator) *Adapter {
	tables := cfg.SchemaTables
	if tables <= 0 {
		tables = config.DefaultSchemaTables
	}
	return &Adapter{
		db:           db,
		database:     cfg.Database,
		schemaTables: tables,
		translator:   translator,
		validator:    security.NewSQLValidator(config.DefaultMaxSQLBytes),
	}
}

func (a *Adapter) Backend() models.Backend {
	return models.BackendAzureSQL
}

type queryStoreTotals struct {
	executions   int64
	cpuMillis    float64
	logicalReads float64
}

type resourceUsage struct {
	samples     int
	avgCPU      float64
	avgDataIO   float64
	avgLogWrite float64
	avgDTU      float64
	peakDTU     float64
}

func windowArgs(w models.Window) []any {
	return []any{sql.Named("start", w.Start.UTC()), sql.Named("end", w.End.UTC())}
}

func (a *Adapter) totals(ctx context.Context, w models.Window) (queryStoreTotals, error) {
	var t queryStoreTotals
	err := a.db.QueryRowContext(ctx, queryStoreTotalsSQL, windowArgs(w)...).
		Scan(&t.executions, &t.cpuMillis, &t.logicalReads)
	return t, err
}

func (a *Adapter) resourceUsage(ctx context.Context, w models.Window) (resourceUsage, error) {
	rows, err := a.db.QueryContext(ctx, resourceStatsSQL, windowArgs(w)...)
	if err != nil {
		return resourceUsage{}, err
	}
	defer rows.Close()

	var u resourceUsage
	for rows.Next() {
		var (
			end                time.Time
			cpu, dataIO, logIO float64
		)
		if err := rows.Scan(&end, &cpu, &dataIO, &logIO); err != nil {
			return resourceUsage{}, err
		}
		dtu := normalize.DTUPercent(cpu, dataIO, logIO)
		u.samples++
		u.avgCPU += cpu
		u.avgDataIO += dataIO
		u.avgLogWrite += logIO
		u.avgDTU += dtu
		if dtu > u.peakDTU {
			u.peakDTU = dtu
		}
	}
	if err := rows.Err(); err != nil {
		return resourceUsage{}, err
	}
	if u.samples > 0 {
		n := float64(u.samples)
		u.avgCPU /= n
		u.avgDataIO /= n
		u.avgLogWrite /= n
		u.avgDTU /= n
	}
	return u, nil
}

// CostSummary reports Query Store CPU time for w alongside DTU utilisation
func (a *Adapter) CostSummary(ctx context.Context, w models.Window) (models.CostSummary, error) {
	const op = "get_cost_summary"
	if err := w.Validate(); err != nil {
		return models.CostSummary{}, errs.InvalidParameter(op, "%v", err)
	}

	var (
		totals queryStoreTotals
		usage  resourceUsage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = a.totals(gctx, w)
		return err
	})
	g.Go(func() error {
		var err error
		usage, err = a.resourceUsage(gctx, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.CostSummary{}, classify(op, err, false)
	}

	s := normalize.Summarize(models.BackendAzureSQL, w,
		models.Quantity{Value: totals.cpuMillis, Unit: models.UnitCPUMillis},
		totals.executions,
		models.Measurement{Name: "logical_reads", Value: totals.logicalReads, Unit: models.UnitLogicalReads},
		models.Measurement{Name: "avg_cpu_percent", Value: usage.avgCPU, Unit: models.UnitPercent},
		models.Measurement{Name: "avg_data_io_percent", Value: usage.avgDataIO, Unit: models.UnitPercent},
		models.Measurement{Name: "avg_log_write_percent", Value: usage.avgLogWrite, Unit: models.UnitPercent},
		models.Measurement{Name: "avg_dtu_percent", Value: usage.avgDTU, Unit: models.UnitDTUPercent},
		models.Measurement{Name: "peak_dtu_percent", Value: usage.peakDTU, Unit: models.UnitDTUPercent},
	)
	s.Description = fmt.Sprintf("Resource consumption of database %s: Query Store CPU time and DTU utilisation from %d resource samples", a.database, usage.samples)
	return s, nil
}

// ExpensiveQueries ranks Query Store queries by cumulative CPU time
func (a *Adapter) ExpensiveQueries(ctx context.Context, w models.Window, limit int) (models.ExpensiveQueries, error) {
	const op = "get_expensive_queries"
	if err := w.Validate(); err != nil {
		return models.ExpensiveQueries{}, errs.InvalidParameter(op, "%v", err)
	}
	if limit <= 0 {
		return models.ExpensiveQueries{}, errs.InvalidParameter(op, "limit must be positive, got %d", limit)
	}

	args := append(windowArgs(w), sql.Named("limit", limit))
	rows, err := a.db.QueryContext(ctx, expensiveQueriesSQL, args...)
	if err != nil {
		return models.ExpensiveQueries{}, classify(op, err, false)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var s normalize.AzureQueryStat
		if err := rows.Scan(&s.QueryID, &s.QueryText, &s.Executions, &s.TotalCPUMillis,
			&s.AvgCPUMillis, &s.LogicalReads, &s.DurationMillis, &s.LastExecution); err != nil {
			return models.ExpensiveQueries{}, classify(op, err, false)
		}
		records = append(records, normalize.AzureQueryRecord(s))
	}
	if err := rows.Err(); err != nil {
		return models.ExpensiveQueries{}, classify(op, err, false)
	}

	return models.ExpensiveQueries{
		Backend: models.BackendAzureSQL,
		Unit:    models.UnitCPUMillis,
		Window:  w,
		Limit:   limit,
		Queries: normalize.RankQueries(records, limit),
	}, nil
}

// ProjectCosts treats the connected database as the single project
func (a *Adapter) ProjectCosts(ctx context.Context, w models.Window) (models.ProjectCosts, error) {
	const op = "get_project_costs"
	if err := w.Validate(); err != nil {
		return models.ProjectCosts{}, errs.InvalidParameter(op, "%v", err)
	}

	entry := models.ProjectCostEntry{Project: a.database, Attributes: map[string]string{}}
	var totals queryStoreTotals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var (
			name, edition, objective, pool string
			sizeMB                         sql.NullInt64
		)
		err := a.db.QueryRowContext(gctx, databaseSQL).Scan(&name, &edition, &objective, &pool, &sizeMB)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		entry.Project = name
		entry.Attributes["edition"] = edition
		entry.Attributes["service_objective"] = objective
		if pool != "" {
			entry.Attributes["elastic_pool"] = pool
		}
		if sizeMB.Valid {
			entry.Attributes["size_mb"] = strconv.FormatInt(sizeMB.Int64, 10)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		totals, err = a.totals(gctx, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.ProjectCosts{}, classify(op, err, false)
	}

	entry.Cost = models.Quantity{Value: totals.cpuMillis, Unit: models.UnitCPUMillis}
	entry.QueryCount = totals.executions

	return models.ProjectCosts{
		Backend: models.BackendAzureSQL,
		Unit:    models.UnitCPUMillis,
		Window:  w,
		Entries: normalize.MergeProjectCosts([]models.ProjectCostEntry{entry}),
	}, nil
}

// UserCosts groups user sessions active in w by login
func (a *Adapter) UserCosts(ctx context.Context, w models.Window) (models.UserCosts, error) {
	const op = "get_cost_by_user"
	if err := w.Validate(); err != nil {
		return models.UserCosts{}, errs.InvalidParameter(op, "%v", err)
	}

	rows, err := a.db.QueryContext(ctx, userCostsSQL, windowArgs(w)...)
	if err != nil {
		return models.UserCosts{}, classify(op, err, false)
	}
	defer rows.Close()

	var entries []models.UserCostEntry
	for rows.Next() {
		var (
			login                         string
			sessions, cpu, reads, elapsed int64
		)
		if err := rows.Scan(&login, &sessions, &cpu, &reads, &elapsed); err != nil {
			return models.UserCosts{}, classify(op, err, false)
		}
		entries = append(entries, models.UserCostEntry{
			User:       login,
			Cost:       models.Quantity{Value: float64(cpu), Unit: models.UnitCPUMillis},
			QueryCount: sessions,
			Usage: []models.Measurement{
				{Name: "logical_reads", Value: float64(reads), Unit: models.UnitLogicalReads},
				{Name: "elapsed_time", Value: float64(elapsed), Unit: models.UnitMillis},
			},
		})
	}
	if err := rows.Err(); err != nil {
		return models.UserCosts{}, classify(op, err, false)
	}

	return models.UserCosts{
		Backend: models.BackendAzureSQL,
		Unit:    models.UnitCPUMillis,
		Window:  w,
		Entries: normalize.MergeUserCosts(entries),
	}, nil
}

// CostTrends buckets Query Store CPU time by g and zero-fills empty buckets
func (a *Adapter) CostTrends(ctx context.Context, w models.Window, g models.Granularity) (models.CostTrend, error) {
	const op = "get_cost_trends"
	if err := w.Validate(); err != nil {
		return models.CostTrend{}, errs.InvalidParameter(op, "%v", err)
	}
	query, ok := trendSQL(g)
	if !ok {
		return models.CostTrend{}, errs.InvalidParameter(op, "unsupported granularity %q", g)
	}

	rows, err := a.db.QueryContext(ctx, query, windowArgs(w)...)
	if err != nil {
		return models.CostTrend{}, classify(op, err, false)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Timestamp, &p.QueryCount, &p.Value); err != nil {
			return models.CostTrend{}, classify(op, err, false)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return models.CostTrend{}, classify(op, err, false)
	}

	return models.CostTrend{
		Backend:     models.BackendAzureSQL,
		Unit:        models.UnitCPUMillis,
		Granularity: g,
		Window:      w,
		Points:      normalize.FillTrend(points, w, g),
	}, nil
}

// AnalyzeQueryCost compiles sql under SHOWPLAN_XML on a dedicated
// connection. The statement is never executed.
func (a *Adapter) AnalyzeQueryCost(ctx context.Context, query string) (models.QueryPlanEstimate, error) {
	const op = "analyze_query_cost"
	if strings.TrimSpace(query) == "" {
		return models.QueryPlanEstimate{}, errs.InvalidParameter(op, "sql is required")
	}
	if reason := a.validator.Validate(query); reason != "" {
		return models.QueryPlanEstimate{}, errs.New(errs.KindInvalidQuery, op, "statement cannot be estimated: %s", reason)
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return models.QueryPlanEstimate{}, classify(op, err, false)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_XML ON"); err != nil {
		return models.QueryPlanEstimate{}, classify(op, err, false)
	}
	plan, planErr := readPlan(ctx, conn, query)
	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_XML OFF"); err != nil {
		// a connection left in showplan mode must not go back to the pool
		log.Warn().Err(err).Msg("showplan reset failed, discarding connection")
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	if planErr != nil {
		return models.QueryPlanEstimate{}, classify(op, planErr, true)
	}

	summary, err := parseShowPlan(plan)
	if err != nil {
		return models.QueryPlanEstimate{}, errs.Wrap(errs.KindBackendUnavailable, op, err, "unreadable execution plan")
	}

	return models.QueryPlanEstimate{
		Backend:          models.BackendAzureSQL,
		SQL:              query,
		Valid:            true,
		EstimatedRows:    summary.EstimatedRows,
		EstimatedCost:    models.Quantity{Value: summary.SubtreeCost, Unit: models.UnitSubtreeCost},
		StatementType:    summary.StatementType,
		ReferencedTables: summary.Tables,
	}, nil
}

func readPlan(ctx context.Context, conn *sql.Conn, query string) (string, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var part string
		if err := rows.Scan(&part); err != nil {
			return "", err
		}
		plan.WriteString(part)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return plan.String(), nil
}

// NaturalLanguageToSQL translates question into a validated statement. The
// statement is returned, never run. Without schemaContext the database's
// own table and column names are used.
func (a *Adapter) NaturalLanguageToSQL(ctx context.Context, question, schemaContext string) (models.SQLTranslationResult, error) {
	const op = "natural_language_to_sql"
	if a.translator == nil {
		return models.SQLTranslationResult{}, errs.Unsupported(op,
			"natural language to SQL is not configured: set AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_DEPLOYMENT_NAME or ANTHROPIC_API_KEY")
	}
	if err := a.translator.ValidateQuestion(question); err != nil {
		return models.SQLTranslationResult{Backend: models.BackendAzureSQL, Question: question}, err
	}

	if strings.TrimSpace(schemaContext) == "" {
		sc, err := a.SchemaContext(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("schema context unavailable, translating without it")
		} else {
			schemaContext = sc
		}
	}

	return a.translator.Translate(ctx, nl2sql.Request{
		Backend:       models.BackendAzureSQL,
		Question:      question,
		SchemaContext: schemaContext,
	})
}

// SchemaContext lists user tables as "schema.table(col, col)" lines
func (a *Adapter) SchemaContext(ctx context.Context) (string, error) {
	rows, err := a.db.QueryContext(ctx, schemaSQL, sql.Named("limit", a.schemaTables))
	if err != nil {
		return "", classify("schema_context", err, false)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var schema, table, columns string
		if err := rows.Scan(&schema, &table, &columns); err != nil {
			return "", classify("schema_context", err, false)
		}
		lines = append(lines, fmt.Sprintf("%s.%s(%s)", schema, table, columns))
	}
	if err := rows.Err(); err != nil {
		return "", classify("schema_context", err, false)
	}
	return strings.Join(lines, "\n"), nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return classify("ping", err, false)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
