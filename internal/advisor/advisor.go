// Package advisor derives optimization hints and savings estimates from
// query text. Statements the MySQL-dialect parser understands are inspected
// through their AST; anything else (T-SQL TOP, bracketed identifiers,
// BigQuery-only syntax) falls back to a keyword scan.
package advisor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/normalize"
)

// Categories accepted by EstimateSavings
const (
	CategoryPartitioning      = "partitioning"
	CategoryClustering        = "clustering"
	CategoryMaterializedViews = "materialized_views"
	CategoryQueryOptimization = "query_optimization"
	CategoryAll               = "all"
	CategoryNone              = "none"
)

var categoryDescriptions = map[string]string{
	CategoryPartitioning:      "Add date-based partitioning and filter on the partition column",
	CategoryClustering:        "Add clustering keys on filtered and sorted columns",
	CategoryMaterializedViews: "Cache frequently aggregated results",
	CategoryQueryOptimization: "Select specific columns and avoid cartesian joins",
}

// Categories lists the concrete optimization categories in report order
var Categories = []string{
	CategoryPartitioning,
	CategoryClustering,
	CategoryMaterializedViews,
	CategoryQueryOptimization,
}

// MaxRecommendations bounds the top list returned by Recommend
const MaxRecommendations = 10

// RepeatedExecutions is the execution count from which an aggregating
// query is considered a materialized view candidate
const RepeatedExecutions = 5

var (
	hintSelectStar = models.Hint{
		Rule: "select_star", Category: CategoryQueryOptimization, Severity: "high", SavingsPercent: 40,
		Suggestion: "Replace SELECT * with specific columns to reduce data scanned",
	}
	hintCrossJoin = models.Hint{
		Rule: "cross_join", Category: CategoryQueryOptimization, Severity: "critical", SavingsPercent: 90,
		Suggestion: "Replace CROSS JOIN with a proper JOIN condition to avoid a cartesian product",
	}
	hintNoFilter = models.Hint{
		Rule: "missing_filter", Category: CategoryPartitioning, Severity: "high", SavingsPercent: 70,
		Suggestion: "Add WHERE clause with partition filter to reduce data scanned",
	}
	hintClustering = models.Hint{
		Rule: "clustering", Category: CategoryClustering, Severity: "medium", SavingsPercent: 30,
		Suggestion: "Consider adding clustering on frequently filtered columns",
	}
	hintMaterialize = models.Hint{
		Rule: "repeated_aggregation", Category: CategoryMaterializedViews, Severity: "medium", SavingsPercent: 50,
		Suggestion: "Serve this repeated aggregation from a materialized view",
	}
	hintOptimized = models.Hint{
		Rule: "optimized", Category: CategoryNone, Severity: "low", SavingsPercent: 5,
		Suggestion: "Query appears optimized",
	}
)

type features struct {
	parsed       bool
	selectStar   bool
	crossJoin    bool
	hasWhere     bool
	hasPartition bool
	readsTable   bool
	groupBy      bool
	orderBy      bool
	tables       []string
}

// Analyze returns the highest priority hint for sql
func Analyze(sql string) models.Hint {
	return Findings(sql)[0]
}

// Findings returns every hint that applies to sql in priority order. The
// result is never empty: a statement nothing applies to is "optimized".
func Findings(sql string) []models.Hint {
	return findings(inspect(sql), 0)
}

// AnalyzeRecord is Analyze for an observed query. Its execution count
// enables the repeated aggregation rule.
func AnalyzeRecord(r models.QueryRecord) models.Hint {
	return findings(inspect(r.Statement), r.ExecutionCount)[0]
}

// Tables returns the table names referenced by sql when it parses
func Tables(sql string) []string {
	return inspect(sql).tables
}

func findings(f features, executions int64) []models.Hint {
	var out []models.Hint
	if f.selectStar {
		out = append(out, hintSelectStar)
	}
	if f.crossJoin {
		out = append(out, hintCrossJoin)
	}
	if f.readsTable && !f.hasWhere && !f.hasPartition {
		out = append(out, hintNoFilter)
	}
	if f.groupBy || f.orderBy {
		out = append(out, hintClustering)
	}
	if f.groupBy && executions >= RepeatedExecutions {
		out = append(out, hintMaterialize)
	}
	if len(out) == 0 {
		out = append(out, hintOptimized)
	}
	return out
}

func inspect(sql string) features {
	upper := strings.ToUpper(collapseSpace(sql))
	f := features{hasPartition: strings.Contains(upper, "PARTITION")}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return scan(upper, f)
	}
	f.parsed = true
	seen := map[string]bool{}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Select:
			for _, e := range n.SelectExprs {
				if _, ok := e.(*sqlparser.StarExpr); ok {
					f.selectStar = true
				}
			}
			if n.Where != nil {
				f.hasWhere = true
			}
			if len(n.GroupBy) > 0 {
				f.groupBy = true
			}
			if len(n.OrderBy) > 0 {
				f.orderBy = true
			}
			if len(n.From) > 1 && n.Where == nil {
				f.crossJoin = true
			}
		case *sqlparser.JoinTableExpr:
			if n.Join == sqlparser.JoinStr && n.Condition.On == nil && len(n.Condition.Using) == 0 {
				f.crossJoin = true
			}
		case *sqlparser.AliasedTableExpr:
			tn, ok := n.Expr.(sqlparser.TableName)
			if !ok || tn.IsEmpty() || strings.EqualFold(tn.Name.String(), "dual") {
				return true, nil
			}
			f.readsTable = true
			name := tn.Name.String()
			if !tn.Qualifier.IsEmpty() {
				name = tn.Qualifier.String() + "." + name
			}
			if !seen[name] {
				seen[name] = true
				f.tables = append(f.tables, name)
			}
		}
		return true, nil
	}, stmt)
	return f
}

var (
	wordWhere   = regexp.MustCompile(`\bWHERE\b`)
	wordFrom    = regexp.MustCompile(`\bFROM\b`)
	wordGroupBy = regexp.MustCompile(`\bGROUP BY\b`)
	wordOrderBy = regexp.MustCompile(`\bORDER BY\b`)
	wordCross   = regexp.MustCompile(`\bCROSS (JOIN|APPLY)\b`)
	selectStar  = regexp.MustCompile(`\bSELECT (DISTINCT |TOP \(?\d+\)? )?\*`)
)

func scan(upper string, f features) features {
	f.selectStar = selectStar.MatchString(upper)
	f.crossJoin = wordCross.MatchString(upper)
	f.hasWhere = wordWhere.MatchString(upper)
	f.readsTable = wordFrom.MatchString(upper)
	f.groupBy = wordGroupBy.MatchString(upper)
	f.orderBy = wordOrderBy.MatchString(upper)
	return f
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Recommend filters records by primary cost >= minCost, attaches the
// savings of each record's top hint and returns the best MaxRecommendations
func Recommend(records []models.QueryRecord, minCost float64) models.Recommendations {
	var (
		recs  []models.Recommendation
		total models.Quantity
	)
	for _, r := range records {
		cost := normalize.PrimaryCost(r)
		if cost.Value < minCost {
			continue
		}
		hint := findings(inspect(r.Statement), r.ExecutionCount)[0]
		savings := models.Quantity{Value: cost.Value * hint.SavingsPercent / 100, Unit: cost.Unit}
		total.Unit = cost.Unit
		total.Value += savings.Value
		recs = append(recs, models.Recommendation{
			QueryID:          r.ID,
			CurrentCost:      cost,
			Optimization:     hint.Suggestion,
			Category:         hint.Category,
			EstimatedSavings: savings,
			Severity:         hint.Severity,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].EstimatedSavings.Value > recs[j].EstimatedSavings.Value
	})
	analyzed := len(recs)
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return models.Recommendations{
		TotalPotentialSavings: total,
		QueriesAnalyzed:       analyzed,
		Top:                   recs,
	}
}

// ValidCategory reports whether c is accepted by EstimateSavings
func ValidCategory(c string) bool {
	if c == CategoryAll {
		return true
	}
	_, ok := categoryDescriptions[c]
	return ok
}

// EstimateSavings sums, per category, the savings of the strongest hint of
// that category on each record. For CategoryAll the total compounds the
// categories of a record so a query never saves more than it costs.
func EstimateSavings(records []models.QueryRecord, category string) models.SavingsEstimate {
	wanted := Categories
	if category != CategoryAll {
		wanted = []string{category}
	}
	breakdown := make([]models.CategorySavings, len(wanted))
	pos := make(map[string]int, len(wanted))
	for i, c := range wanted {
		breakdown[i] = models.CategorySavings{Category: c, Description: categoryDescriptions[c]}
		pos[c] = i
	}

	var total models.Quantity
	for _, r := range records {
		cost := normalize.PrimaryCost(r)
		total.Unit = cost.Unit
		best := map[string]float64{}
		for _, h := range findings(inspect(r.Statement), r.ExecutionCount) {
			if _, ok := pos[h.Category]; ok && h.SavingsPercent > best[h.Category] {
				best[h.Category] = h.SavingsPercent
			}
		}
		remaining := 1.0
		for c, pct := range best {
			b := &breakdown[pos[c]]
			b.Savings.Unit = cost.Unit
			b.Savings.Value += cost.Value * pct / 100
			b.QueriesMatched++
			remaining *= 1 - pct/100
		}
		total.Value += cost.Value * (1 - remaining)
	}
	for i := range breakdown {
		if breakdown[i].Savings.Unit == "" {
			breakdown[i].Savings.Unit = total.Unit
		}
	}
	return models.SavingsEstimate{
		OptimizationType: category,
		Total:            total,
		Breakdown:        breakdown,
	}
}
