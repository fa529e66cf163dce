package tools_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/tools"
)

var now = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

type fakeDS struct {
	mu          sync.Mutex
	backend     models.Backend
	calls       []string
	window      models.Window
	limit       int
	granularity models.Granularity
	sql         string
	question    string
	schema      string
	records     []models.QueryRecord
	translation models.SQLTranslationResult
	err         error
	block       bool
	panics      bool
}

func (f *fakeDS) record(ctx context.Context, op string, w models.Window) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.window = w
	block, panics, err := f.block, f.panics, f.err
	f.mu.Unlock()
	if panics {
		panic("adapter bug")
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeDS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDS) Backend() models.Backend { return f.backend }

func (f *fakeDS) CostSummary(ctx context.Context, w models.Window) (models.CostSummary, error) {
	if err := f.record(ctx, "summary", w); err != nil {
		return models.CostSummary{}, err
	}
	return models.CostSummary{Backend: f.backend, Window: w, Total: models.Quantity{Value: 12.5, Unit: models.UnitUSD}}, nil
}

func (f *fakeDS) ExpensiveQueries(ctx context.Context, w models.Window, limit int) (models.ExpensiveQueries, error) {
	f.mu.Lock()
	f.limit = limit
	f.mu.Unlock()
	if err := f.record(ctx, "expensive", w); err != nil {
		return models.ExpensiveQueries{}, err
	}
	out := make([]models.QueryRecord, len(f.records))
	copy(out, f.records)
	return models.ExpensiveQueries{Backend: f.backend, Unit: models.UnitBytes, Window: w, Limit: limit, Queries: out}, nil
}

func (f *fakeDS) ProjectCosts(ctx context.Context, w models.Window) (models.ProjectCosts, error) {
	return models.ProjectCosts{Backend: f.backend, Window: w}, f.record(ctx, "projects", w)
}

func (f *fakeDS) UserCosts(ctx context.Context, w models.Window) (models.UserCosts, error) {
	return models.UserCosts{Backend: f.backend, Window: w}, f.record(ctx, "users", w)
}

func (f *fakeDS) CostTrends(ctx context.Context, w models.Window, g models.Granularity) (models.CostTrend, error) {
	f.mu.Lock()
	f.granularity = g
	f.mu.Unlock()
	return models.CostTrend{Backend: f.backend, Granularity: g, Window: w}, f.record(ctx, "trends", w)
}

func (f *fakeDS) AnalyzeQueryCost(ctx context.Context, sql string) (models.QueryPlanEstimate, error) {
	f.mu.Lock()
	f.sql = sql
	f.mu.Unlock()
	if err := f.record(ctx, "analyze", models.Window{}); err != nil {
		return models.QueryPlanEstimate{}, err
	}
	return models.QueryPlanEstimate{Backend: f.backend, SQL: sql, Valid: true, EstimatedBytes: 1024}, nil
}

func (f *fakeDS) NaturalLanguageToSQL(ctx context.Context, question, schemaContext string) (models.SQLTranslationResult, error) {
	f.mu.Lock()
	f.question, f.schema = question, schemaContext
	f.mu.Unlock()
	err := f.record(ctx, "nl2sql", models.Window{})
	return f.translation, err
}

func (f *fakeDS) Ping(ctx context.Context) error { return nil }
func (f *fakeDS) Close() error                   { return nil }

func newRegistry(ds *fakeDS) *tools.Registry {
	return tools.NewRegistry(ds, tools.Options{
		Limits:         tools.Limits{MaxWindowDays: 180, MaxSQLBytes: 100 * 1024, MaxTimeout: 300 * time.Second},
		DefaultTimeout: 2 * time.Second,
		Now:            func() time.Time { return now },
	})
}

func TestListTools(t *testing.T) {
	r := newRegistry(&fakeDS{backend: models.BackendBigQuery})
	want := []string{
		"get_cost_summary", "get_expensive_queries", "get_project_costs", "get_cost_trends",
		"analyze_query_cost", "get_cost_by_user", "natural_language_to_sql",
		"get_optimization_recommendations", "estimate_savings",
	}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("tools = %d, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Errorf("tool[%d] = %s, want %s", i, tool.Name, want[i])
		}
		if tool.Description == "" || tool.InputSchema["type"] != "object" {
			t.Errorf("tool %s lacks description or schema", tool.Name)
		}
	}
}

func TestCallDefaultsWindow(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery}
	resp := newRegistry(ds).Call(context.Background(), "get_cost_summary", nil, "key-1")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp)
	}
	if !ds.window.End.Equal(now) || !ds.window.Start.Equal(now.AddDate(0, 0, -30)) {
		t.Errorf("window = %s", ds.window)
	}
	if resp.Backend != models.BackendBigQuery || resp.Tool != "get_cost_summary" {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestCallExplicitWindow(t *testing.T) {
	ds := &fakeDS{backend: models.BackendAzureSQL}
	resp := newRegistry(ds).Call(context.Background(), "get_cost_by_user", map[string]interface{}{
		"start": "2024-03-01T00:00:00Z",
		"end":   "2024-03-02T00:00:00+02:00",
	}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	if !ds.window.End.Equal(time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)) || ds.window.End.Location() != time.UTC {
		t.Errorf("end = %s, want UTC", ds.window.End)
	}
}

func TestInvalidParametersNeverReachBackend(t *testing.T) {
	big := strings.Repeat("x", 100*1024+1)
	tests := []struct {
		name  string
		tool  string
		input map[string]interface{}
	}{
		{"zero days", "get_cost_summary", map[string]interface{}{"days": 0}},
		{"too many days", "get_cost_summary", map[string]interface{}{"days": 181.0}},
		{"fractional days", "get_project_costs", map[string]interface{}{"days": 1.5}},
		{"days as bool", "get_project_costs", map[string]interface{}{"days": true}},
		{"start only", "get_cost_by_user", map[string]interface{}{"start": "2024-03-01T00:00:00Z"}},
		{"end before start", "get_cost_by_user", map[string]interface{}{"start": "2024-03-02T00:00:00Z", "end": "2024-03-01T00:00:00Z"}},
		{"future start", "get_cost_by_user", map[string]interface{}{"start": "2024-04-01T00:00:00Z", "end": "2024-04-02T00:00:00Z"}},
		{"days and start", "get_cost_by_user", map[string]interface{}{"days": 3, "start": "2024-03-01T00:00:00Z", "end": "2024-03-02T00:00:00Z"}},
		{"bad timestamp", "get_cost_by_user", map[string]interface{}{"start": "yesterday", "end": "2024-03-02T00:00:00Z"}},
		{"zero limit", "get_expensive_queries", map[string]interface{}{"limit": 0}},
		{"huge limit", "get_expensive_queries", map[string]interface{}{"limit": 101}},
		{"unknown granularity", "get_cost_trends", map[string]interface{}{"granularity": "minute"}},
		{"too many hourly points", "get_cost_trends", map[string]interface{}{"granularity": "hour", "days": 60}},
		{"empty sql", "analyze_query_cost", map[string]interface{}{"sql": "   "}},
		{"missing sql", "analyze_query_cost", map[string]interface{}{}},
		{"sql too large", "analyze_query_cost", map[string]interface{}{"sql": big}},
		{"sql not a string", "analyze_query_cost", map[string]interface{}{"sql": 42.0}},
		{"empty question", "natural_language_to_sql", map[string]interface{}{"question": ""}},
		{"unknown parameter", "get_cost_summary", map[string]interface{}{"dayz": 3}},
		{"timeout too long", "get_cost_summary", map[string]interface{}{"timeout_seconds": 301}},
		{"negative min cost", "get_optimization_recommendations", map[string]interface{}{"min_cost": -1}},
		{"unknown category", "estimate_savings", map[string]interface{}{"optimization_type": "indexing"}},
		{"unknown tool", "drop_everything", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &fakeDS{backend: models.BackendBigQuery}
			resp := newRegistry(ds).Call(context.Background(), tt.tool, tt.input, "")
			if resp.OK() || resp.Error == nil || resp.Error.Kind != errs.KindInvalidParameter {
				t.Fatalf("response = %+v, want InvalidParameter", resp)
			}
			if resp.Error.Message == "" {
				t.Error("empty error message")
			}
			if n := ds.callCount(); n != 0 {
				t.Errorf("backend called %d times", n)
			}
		})
	}
}

func TestExpensiveQueriesAttachHintsAndMask(t *testing.T) {
	ds := &fakeDS{
		backend: models.BackendBigQuery,
		records: []models.QueryRecord{{
			ID:             "job-1",
			Statement:      "SELECT * FROM crm.contacts WHERE email = 'jane.doe@acme.io'",
			Cost:           models.Quantity{Value: 1200, Unit: models.UnitBytes},
			ExecutionCount: 1,
		}},
	}
	resp := newRegistry(ds).Call(context.Background(), "get_expensive_queries", map[string]interface{}{"limit": 5.0}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	if ds.limit != 5 {
		t.Errorf("limit = %d", ds.limit)
	}
	eq := resp.Result.(models.ExpensiveQueries)
	q := eq.Queries[0]
	if q.Hint == nil || q.Hint.Rule != "select_star" {
		t.Errorf("hint = %+v", q.Hint)
	}
	if strings.Contains(q.Statement, "jane.doe@acme.io") {
		t.Errorf("statement not masked: %s", q.Statement)
	}
	if ds.records[0].Statement != "SELECT * FROM crm.contacts WHERE email = 'jane.doe@acme.io'" {
		t.Error("adapter records mutated")
	}
}

func TestCostTrendsGranularity(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery}
	r := newRegistry(ds)

	resp := r.Call(context.Background(), "get_cost_trends", map[string]interface{}{"granularity": "Weekly", "days": "90"}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	if ds.granularity != models.GranularityWeek {
		t.Errorf("granularity = %s", ds.granularity)
	}

	resp = r.Call(context.Background(), "get_cost_trends", map[string]interface{}{"granularity": "hour", "days": 31}, "")
	if !resp.OK() {
		t.Errorf("31 days hourly should fit: %+v", resp.Error)
	}
}

func TestAnalyzeQueryCostAddsHint(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery}
	resp := newRegistry(ds).Call(context.Background(), "analyze_query_cost", map[string]interface{}{
		"sql": "SELECT a.id FROM sales.orders a CROSS JOIN sales.items b",
	}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	est := resp.Result.(models.QueryPlanEstimate)
	if est.Hint == nil || est.Hint.Rule != "cross_join" || est.Hint.Severity != "critical" {
		t.Errorf("hint = %+v", est.Hint)
	}
	if len(est.ReferencedTables) == 0 {
		t.Error("referenced tables not derived from the statement")
	}
}

func TestBackendErrorsKeepTheirKind(t *testing.T) {
	ds := &fakeDS{backend: models.BackendAzureSQL, err: errs.New(errs.KindPermissionDenied, "get_cost_by_user", "VIEW DATABASE STATE permission denied")}
	resp := newRegistry(ds).Call(context.Background(), "get_cost_by_user", nil, "")
	if resp.OK() || resp.Error.Kind != errs.KindPermissionDenied {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Result != nil {
		t.Errorf("result alongside backend error: %+v", resp.Result)
	}
}

func TestTimeoutReturnsBackendUnavailable(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery, block: true}
	r := tools.NewRegistry(ds, tools.Options{DefaultTimeout: 20 * time.Millisecond, Now: func() time.Time { return now }})

	start := time.Now()
	resp := r.Call(context.Background(), "get_cost_summary", nil, "")
	if resp.OK() || resp.Error.Kind != errs.KindBackendUnavailable {
		t.Fatalf("response = %+v", resp)
	}
	if time.Since(start) > time.Second {
		t.Errorf("call blocked for %s", time.Since(start))
	}
}

func TestPanicBecomesErrorResponse(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery, panics: true}
	resp := newRegistry(ds).Call(context.Background(), "get_project_costs", nil, "")
	if resp.OK() || resp.Error.Kind != errs.KindBackendUnavailable {
		t.Fatalf("response = %+v", resp)
	}
}

func TestNaturalLanguageUnsupportedOnBigQuery(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery, err: errs.Unsupported("natural_language_to_sql", "not available for the bigquery backend")}
	resp := newRegistry(ds).Call(context.Background(), "natural_language_to_sql", map[string]interface{}{"question": "top users"}, "")
	if resp.OK() || resp.Error.Kind != errs.KindUnsupportedOperation {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Result != nil {
		t.Errorf("result = %+v", resp.Result)
	}
}

func TestNaturalLanguageRejectedKeepsResult(t *testing.T) {
	ds := &fakeDS{
		backend: models.BackendAzureSQL,
		translation: models.SQLTranslationResult{
			Backend:  models.BackendAzureSQL,
			Question: "delete all rows from sales",
			SQL:      "DELETE FROM sales",
			Status:   models.RejectedStatus("statement must start with SELECT or WITH"),
		},
		err: errs.New(errs.KindTranslationRejected, "natural_language_to_sql", "statement must start with SELECT or WITH"),
	}
	resp := newRegistry(ds).Call(context.Background(), "natural_language_to_sql", map[string]interface{}{
		"question":       "delete all rows from sales",
		"schema_context": "sales(id)",
	}, "")
	if resp.OK() || resp.Error.Kind != errs.KindTranslationRejected {
		t.Fatalf("response = %+v", resp)
	}
	res, ok := resp.Result.(models.SQLTranslationResult)
	if !ok || res.Safe() || res.SQL != "DELETE FROM sales" {
		t.Errorf("result = %+v", resp.Result)
	}
	if ds.schema != "sales(id)" {
		t.Errorf("schema context = %q", ds.schema)
	}
}

func TestRecommendationsAndSavings(t *testing.T) {
	usd := func(v float64) []models.Measurement {
		return []models.Measurement{{Name: "estimated_cost", Value: v, Unit: models.UnitUSD}}
	}
	ds := &fakeDS{
		backend: models.BackendBigQuery,
		records: []models.QueryRecord{
			{ID: "a", Statement: "SELECT * FROM sales.orders WHERE created > '2024-01-01'", Usage: usd(100), ExecutionCount: 1},
			{ID: "b", Statement: "SELECT id FROM sales.orders", Usage: usd(10), ExecutionCount: 1},
		},
	}
	r := newRegistry(ds)

	resp := r.Call(context.Background(), "get_optimization_recommendations", map[string]interface{}{"min_cost": 50}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	recs := resp.Result.(models.Recommendations)
	if recs.Backend != models.BackendBigQuery || len(recs.Top) != 1 || recs.Top[0].QueryID != "a" {
		t.Errorf("recommendations = %+v", recs)
	}
	if ds.limit != tools.MaxLimit {
		t.Errorf("limit = %d, want %d", ds.limit, tools.MaxLimit)
	}

	resp = r.Call(context.Background(), "estimate_savings", map[string]interface{}{"optimization_type": "partitioning"}, "")
	if !resp.OK() {
		t.Fatalf("response = %+v", resp.Error)
	}
	est := resp.Result.(models.SavingsEstimate)
	if est.OptimizationType != "partitioning" || len(est.Breakdown) != 1 || est.Breakdown[0].QueriesMatched != 1 {
		t.Errorf("estimate = %+v", est)
	}
}

func TestResources(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery}
	r := newRegistry(ds)
	if len(r.Resources()) != 4 {
		t.Fatalf("resources = %+v", r.Resources())
	}

	resp, ok := r.ReadResource(context.Background(), "finops://cost-trends", "")
	if !ok || !resp.OK() || resp.Tool != "get_cost_trends" {
		t.Fatalf("resource response = %+v", resp)
	}
	if ds.granularity != models.GranularityDay {
		t.Errorf("granularity = %s", ds.granularity)
	}
	if _, ok := r.ReadResource(context.Background(), "secrets", ""); ok {
		t.Error("unknown resource resolved")
	}
}

func TestResponseJSONShape(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery, err: errs.New(errs.KindPermissionDenied, "get_cost_summary", "denied")}
	resp := newRegistry(ds).Call(context.Background(), "get_cost_summary", nil, "")

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "error" || m["backend"] != "bigquery" {
		t.Errorf("envelope = %s", b)
	}
	e, _ := m["error"].(map[string]any)
	if e["kind"] != "PermissionDenied" || e["message"] != "denied" {
		t.Errorf("error body = %v", e)
	}
	if _, ok := m["result"]; ok {
		t.Errorf("result present on error: %s", b)
	}
}

func TestConcurrentCalls(t *testing.T) {
	ds := &fakeDS{backend: models.BackendBigQuery}
	r := newRegistry(ds)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := r.Call(context.Background(), "get_cost_summary", map[string]interface{}{"days": 7}, ""); !resp.OK() {
				t.Errorf("response = %+v", resp.Error)
			}
		}()
	}
	wg.Wait()
	if ds.callCount() != 16 {
		t.Errorf("calls = %d", ds.callCount())
	}
}
