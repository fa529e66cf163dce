package azuresql

import (
	"fmt"

	"github.com/cortexai/finops-insight/internal/models"
)

// Query Store keeps runtime stats per plan and interval. avg_* columns are
// microseconds; totals are avg * count_executions.
const queryStoreFrom = `FROM sys.query_store_runtime_stats AS rs
JOIN sys.query_store_runtime_stats_interval AS rsi
  ON rs.runtime_stats_interval_id = rsi.runtime_stats_interval_id
JOIN sys.query_store_plan AS p ON rs.plan_id = p.plan_id
JOIN sys.query_store_query AS q ON p.query_id = q.query_id
WHERE rsi.start_time >= @start AND rsi.start_time < @end`

const queryStoreTotalsSQL = `SELECT
  ISNULL(SUM(rs.count_executions), 0) AS executions,
  ISNULL(SUM(rs.avg_cpu_time * rs.count_executions), 0) / 1000.0 AS cpu_ms,
  ISNULL(SUM(rs.avg_logical_io_reads * rs.count_executions), 0) AS logical_reads
` + queryStoreFrom

const expensiveQueriesSQL = `SELECT TOP (@limit)
  q.query_id,
  MAX(qt.query_sql_text) AS query_text,
  SUM(rs.count_executions) AS executions,
  SUM(rs.avg_cpu_time * rs.count_executions) / 1000.0 AS total_cpu_ms,
  ISNULL(SUM(rs.avg_cpu_time * rs.count_executions) / NULLIF(SUM(rs.count_executions), 0), 0) / 1000.0 AS avg_cpu_ms,
  SUM(rs.avg_logical_io_reads * rs.count_executions) AS logical_reads,
  SUM(rs.avg_duration * rs.count_executions) / 1000.0 AS duration_ms,
  MAX(rs.last_execution_time) AS last_execution
FROM sys.query_store_runtime_stats AS rs
JOIN sys.query_store_runtime_stats_interval AS rsi
  ON rs.runtime_stats_interval_id = rsi.runtime_stats_interval_id
JOIN sys.query_store_plan AS p ON rs.plan_id = p.plan_id
JOIN sys.query_store_query AS q ON p.query_id = q.query_id
JOIN sys.query_store_query_text AS qt ON q.query_text_id = qt.query_text_id
WHERE rsi.start_time >= @start AND rsi.start_time < @end
GROUP BY q.query_id
ORDER BY total_cpu_ms DESC, q.query_id`

// sys.dm_db_resource_stats holds one sample every 15 seconds for about an
// hour
const resourceStatsSQL = `SELECT
  end_time,
  ISNULL(avg_cpu_percent, 0) AS avg_cpu_percent,
  ISNULL(avg_data_io_percent, 0) AS avg_data_io_percent,
  ISNULL(avg_log_write_percent, 0) AS avg_log_write_percent
FROM sys.dm_db_resource_stats
WHERE end_time >= @start AND end_time < @end
ORDER BY end_time`

const databaseSQL = `SELECT
  d.name,
  ISNULL(dso.edition, '') AS edition,
  ISNULL(dso.service_objective, '') AS service_objective,
  ISNULL(dso.elastic_pool_name, '') AS elastic_pool,
  (SELECT CAST(SUM(CAST(size AS bigint)) * 8 / 1024 AS bigint) FROM sys.database_files) AS size_mb
FROM sys.database_service_objectives AS dso
JOIN sys.databases AS d ON d.database_id = dso.database_id
WHERE d.name = DB_NAME()`

const userCostsSQL = `SELECT
  login_name,
  COUNT(*) AS session_count,
  ISNULL(SUM(CAST(cpu_time AS bigint)), 0) AS cpu_ms,
  ISNULL(SUM(logical_reads), 0) AS logical_reads,
  ISNULL(SUM(CAST(total_elapsed_time AS bigint)), 0) AS elapsed_ms
FROM sys.dm_exec_sessions
WHERE is_user_process = 1
  AND login_time < @end
  AND last_request_start_time >= @start
GROUP BY login_name
ORDER BY cpu_ms DESC, login_name`

const schemaSQL = `SELECT TOP (@limit)
  TABLE_SCHEMA,
  TABLE_NAME,
  STRING_AGG(CAST(COLUMN_NAME AS nvarchar(max)), ', ') WITHIN GROUP (ORDER BY ORDINAL_POSITION) AS columns
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
GROUP BY TABLE_SCHEMA, TABLE_NAME
ORDER BY TABLE_SCHEMA, TABLE_NAME`

// datetruncParts maps a granularity to its DATETRUNC date part
var datetruncParts = map[models.Granularity]string{
	models.GranularityHour:  "hour",
	models.GranularityDay:   "day",
	models.GranularityWeek:  "iso_week",
	models.GranularityMonth: "month",
}

func trendSQL(g models.Granularity) (string, bool) {
	part, ok := datetruncParts[g]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(`SELECT
  DATETRUNC(%[1]s, rsi.start_time) AS bucket,
  ISNULL(SUM(rs.count_executions), 0) AS executions,
  ISNULL(SUM(rs.avg_cpu_time * rs.count_executions), 0) / 1000.0 AS cpu_ms
%[2]s
GROUP BY DATETRUNC(%[1]s, rsi.start_time)
ORDER BY bucket`, part, queryStoreFrom), true
}
