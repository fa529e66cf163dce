package tools

import (
	"context"
	"time"

	"github.com/cortexai/finops-insight/internal/advisor"
	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/observability"
)

type callerKey struct{}

func withCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	props["timeout_seconds"] = map[string]interface{}{
		"type":        "integer",
		"description": "Abort the backend call after this many seconds (1-300)",
		"minimum":     1,
		"maximum":     300,
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func windowProps(defaultDays, maxDays int) map[string]interface{} {
	return map[string]interface{}{
		"days": map[string]interface{}{
			"type":        "integer",
			"description": "Window length in days ending now",
			"default":     defaultDays,
			"minimum":     1,
			"maximum":     maxDays,
		},
		"start": map[string]interface{}{
			"type":        "string",
			"format":      "date-time",
			"description": "Window start (RFC3339); requires end",
		},
		"end": map[string]interface{}{
			"type":        "string",
			"format":      "date-time",
			"description": "Window end, exclusive (RFC3339); requires start",
		},
	}
}

func (r *Registry) window(p params, defaultDays int) (models.Window, error) {
	return p.window(r.opts.Now(), defaultDays, r.opts.MaxWindowDays)
}

func (r *Registry) finopsTools() []Tool {
	maxDays := r.opts.MaxWindowDays
	return []Tool{
		r.costSummaryTool(maxDays),
		r.expensiveQueriesTool(maxDays),
		r.projectCostsTool(maxDays),
		r.costTrendsTool(maxDays),
		r.analyzeQueryCostTool(),
		r.costByUserTool(maxDays),
		r.naturalLanguageToSQLTool(),
		r.recommendationsTool(maxDays),
		r.estimateSavingsTool(maxDays),
	}
}

func (r *Registry) costSummaryTool(maxDays int) Tool {
	const name = "get_cost_summary"
	return Tool{
		Name:        name,
		Description: "Total cost or resource consumption of the active backend over a time window, with query count and per-query average. Every figure carries its unit.",
		InputSchema: objectSchema(windowProps(30, maxDays)),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			w, err := r.window(params{tool: name, input: input}, 30)
			if err != nil {
				return nil, err
			}
			s, err := r.ds.CostSummary(ctx, w)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

func (r *Registry) expensiveQueriesTool(maxDays int) Tool {
	const name = "get_expensive_queries"
	props := windowProps(7, maxDays)
	props["limit"] = map[string]interface{}{
		"type":        "integer",
		"description": "Number of queries to return",
		"default":     DefaultLimit,
		"minimum":     1,
		"maximum":     MaxLimit,
	}
	return Tool{
		Name:        name,
		Description: "Most expensive queries in a time window, ordered by descending cost (bytes processed on BigQuery, CPU time on Azure SQL), each with an optimization hint.",
		InputSchema: objectSchema(props),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			p := params{tool: name, input: input}
			w, err := r.window(p, 7)
			if err != nil {
				return nil, err
			}
			limit, err := p.limit()
			if err != nil {
				return nil, err
			}
			eq, err := r.ds.ExpensiveQueries(ctx, w, limit)
			if err != nil {
				return nil, err
			}
			for i := range eq.Queries {
				q := &eq.Queries[i]
				hint := advisor.AnalyzeRecord(*q)
				q.Hint = &hint
				q.Statement = r.opts.Masker.Mask(q.Statement)
			}
			return eq, nil
		},
	}
}

func (r *Registry) projectCostsTool(maxDays int) Tool {
	const name = "get_project_costs"
	return Tool{
		Name:        name,
		Description: "Cost per project (BigQuery) or per database (Azure SQL) over a time window, ordered by descending cost.",
		InputSchema: objectSchema(windowProps(30, maxDays)),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			w, err := r.window(params{tool: name, input: input}, 30)
			if err != nil {
				return nil, err
			}
			pc, err := r.ds.ProjectCosts(ctx, w)
			if err != nil {
				return nil, err
			}
			return pc, nil
		},
	}
}

func (r *Registry) costTrendsTool(maxDays int) Tool {
	const name = "get_cost_trends"
	props := windowProps(30, maxDays)
	props["granularity"] = map[string]interface{}{
		"type":        "string",
		"description": "Bucket size; weeks start on Monday",
		"enum":        []string{"hour", "day", "week", "month"},
		"default":     "day",
	}
	return Tool{
		Name:        name,
		Description: "Cost over time bucketed by hour, day, week or month. Buckets without activity are reported as zero.",
		InputSchema: objectSchema(props),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			p := params{tool: name, input: input}
			w, err := r.window(p, 30)
			if err != nil {
				return nil, err
			}
			g, err := p.granularity(w)
			if err != nil {
				return nil, err
			}
			trend, err := r.ds.CostTrends(ctx, w, g)
			if err != nil {
				return nil, err
			}
			return trend, nil
		},
	}
}

func (r *Registry) analyzeQueryCostTool() Tool {
	const name = "analyze_query_cost"
	return Tool{
		Name:        name,
		Description: "Estimate the cost of a statement without running it: a dry run on BigQuery (projected USD), an estimated execution plan on Azure SQL (subtree cost).",
		InputSchema: objectSchema(map[string]interface{}{
			"sql": map[string]interface{}{
				"type":        "string",
				"description": "Statement to estimate",
			},
		}, "sql"),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			sql, err := params{tool: name, input: input}.sql(r.opts.MaxSQLBytes)
			if err != nil {
				return nil, err
			}
			est, err := r.ds.AnalyzeQueryCost(ctx, sql)
			if err != nil {
				return nil, err
			}
			hint := advisor.Analyze(sql)
			est.Hint = &hint
			if len(est.ReferencedTables) == 0 {
				est.ReferencedTables = advisor.Tables(sql)
			}
			est.SQL = r.opts.Masker.Mask(est.SQL)
			return est, nil
		},
	}
}

func (r *Registry) costByUserTool(maxDays int) Tool {
	const name = "get_cost_by_user"
	return Tool{
		Name:        name,
		Description: "Cost per principal (BigQuery user email, Azure SQL login) over a time window, ordered by descending cost.",
		InputSchema: objectSchema(windowProps(30, maxDays)),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			w, err := r.window(params{tool: name, input: input}, 30)
			if err != nil {
				return nil, err
			}
			uc, err := r.ds.UserCosts(ctx, w)
			if err != nil {
				return nil, err
			}
			return uc, nil
		},
	}
}

func (r *Registry) naturalLanguageToSQLTool() Tool {
	const name = "natural_language_to_sql"
	return Tool{
		Name:        name,
		Description: "Translate a question into a single validated read-only SQL statement. The statement is returned, never executed. Azure SQL only.",
		InputSchema: objectSchema(map[string]interface{}{
			"question": map[string]interface{}{
				"type":        "string",
				"description": "Question in natural language",
			},
			"schema_context": map[string]interface{}{
				"type":        "string",
				"description": "Optional table and column description; the database schema is used when omitted",
			},
		}, "question"),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			p := params{tool: name, input: input}
			question, err := p.requiredString("question")
			if err != nil {
				observability.ObserveTranslation("invalid")
				return nil, err
			}
			schema, _, err := p.str("schema_context")
			if err != nil {
				observability.ObserveTranslation("invalid")
				return nil, err
			}

			start := time.Now()
			res, err := r.ds.NaturalLanguageToSQL(ctx, question, schema)
			outcome := translationOutcome(err)
			observability.ObserveTranslation(outcome)
			if outcome != "unsupported" && outcome != "invalid" {
				r.opts.Audit.LogTranslation(question, res.SQL, callerFrom(ctx), outcome, time.Since(start))
			}
			if res.Status == "" {
				return nil, err
			}
			return res, err
		},
	}
}

func translationOutcome(err error) string {
	switch errs.KindOf(err) {
	case "":
		return "safe"
	case errs.KindTranslationRejected:
		return "rejected"
	case errs.KindModelUnavailable:
		return "model_unavailable"
	case errs.KindInvalidParameter:
		return "invalid"
	case errs.KindUnsupportedOperation:
		return "unsupported"
	}
	return "error"
}

func (r *Registry) recommendationsTool(maxDays int) Tool {
	const name = "get_optimization_recommendations"
	props := windowProps(30, maxDays)
	props["min_cost"] = map[string]interface{}{
		"type":        "number",
		"description": "Ignore queries cheaper than this, in the backend's primary unit (USD on BigQuery, CPU ms on Azure SQL)",
		"default":     0,
		"minimum":     0,
	}
	return Tool{
		Name:        name,
		Description: "Top optimization opportunities among the window's most expensive queries, ranked by estimated savings.",
		InputSchema: objectSchema(props),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			p := params{tool: name, input: input}
			w, err := r.window(p, 30)
			if err != nil {
				return nil, err
			}
			minCost, _, err := p.number("min_cost")
			if err != nil {
				return nil, err
			}
			if minCost < 0 {
				return nil, invalid(name, "min_cost must not be negative")
			}
			eq, err := r.ds.ExpensiveQueries(ctx, w, MaxLimit)
			if err != nil {
				return nil, err
			}
			recs := advisor.Recommend(eq.Queries, minCost)
			recs.Backend = eq.Backend
			recs.Window = w
			return recs, nil
		},
	}
}

func (r *Registry) estimateSavingsTool(maxDays int) Tool {
	const name = "estimate_savings"
	props := windowProps(30, maxDays)
	props["optimization_type"] = map[string]interface{}{
		"type":    "string",
		"enum":    append([]string{advisor.CategoryAll}, advisor.Categories...),
		"default": advisor.CategoryAll,
	}
	return Tool{
		Name:        name,
		Description: "Estimated savings per optimization category across the window's most expensive queries.",
		InputSchema: objectSchema(props),
		Execute: func(ctx context.Context, input map[string]interface{}) (any, error) {
			p := params{tool: name, input: input}
			w, err := r.window(p, 30)
			if err != nil {
				return nil, err
			}
			category, ok, err := p.str("optimization_type")
			if err != nil {
				return nil, err
			}
			if !ok || category == "" {
				category = advisor.CategoryAll
			}
			if !advisor.ValidCategory(category) {
				return nil, invalid(name, "optimization_type %q is not one of all, partitioning, clustering, materialized_views, query_optimization", category)
			}
			eq, err := r.ds.ExpensiveQueries(ctx, w, MaxLimit)
			if err != nil {
				return nil, err
			}
			est := advisor.EstimateSavings(eq.Queries, category)
			est.Backend = eq.Backend
			est.Window = w
			return est, nil
		},
	}
}
