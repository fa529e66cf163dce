package bigquery

import (
	"fmt"

	"github.com/cortexai/finops-insight/internal/models"
)

// jobsFilter limits job metadata to finished query jobs created inside the
// window. Script parents are excluded so their children are not counted
// twice.
const jobsFilter = `creation_time >= @start
  AND creation_time < @end
  AND job_type = 'QUERY'
  AND state = 'DONE'
  AND IFNULL(statement_type, '') != 'SCRIPT'`

// jobsView is the region-qualified job metadata view. Project and region
// are validated identifiers; they cannot be bound as parameters.
func jobsView(project, region string) string {
	return fmt.Sprintf("`%s`.`region-%s`.INFORMATION_SCHEMA.JOBS_BY_PROJECT", project, region)
}

func summarySQL(view string) string {
	return fmt.Sprintf(`SELECT
  COUNT(*) AS query_count,
  IFNULL(SUM(total_bytes_processed), 0) AS bytes_processed,
  IFNULL(SUM(total_bytes_billed), 0) AS bytes_billed,
  IFNULL(SUM(total_slot_ms), 0) AS slot_ms
FROM %s
WHERE %s`, view, jobsFilter)
}

func expensiveSQL(view string) string {
	return fmt.Sprintf(`SELECT
  job_id,
  project_id,
  IFNULL(user_email, '') AS user_email,
  IFNULL(query, '') AS query,
  IFNULL(total_bytes_processed, 0) AS bytes_processed,
  IFNULL(total_bytes_billed, 0) AS bytes_billed,
  IFNULL(total_slot_ms, 0) AS slot_ms,
  IFNULL(cache_hit, FALSE) AS cache_hit,
  creation_time
FROM %s
WHERE %s
ORDER BY bytes_processed DESC, job_id
LIMIT @limit`, view, jobsFilter)
}

func groupedSQL(view, key string) string {
	return fmt.Sprintf(`SELECT
  IFNULL(%[3]s, '') AS group_key,
  COUNT(*) AS query_count,
  IFNULL(SUM(total_bytes_processed), 0) AS bytes_processed,
  IFNULL(SUM(total_bytes_billed), 0) AS bytes_billed,
  IFNULL(SUM(total_slot_ms), 0) AS slot_ms
FROM %[1]s
WHERE %[2]s
GROUP BY group_key
ORDER BY bytes_billed DESC, group_key`, view, jobsFilter, key)
}

// truncUnits maps a granularity to its TIMESTAMP_TRUNC date part
var truncUnits = map[models.Granularity]string{
	models.GranularityHour:  "HOUR",
	models.GranularityDay:   "DAY",
	models.GranularityWeek:  "WEEK(MONDAY)",
	models.GranularityMonth: "MONTH",
}

func trendSQL(view string, g models.Granularity) (string, bool) {
	part, ok := truncUnits[g]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(`SELECT
  TIMESTAMP_TRUNC(creation_time, %s) AS bucket,
  COUNT(*) AS query_count,
  IFNULL(SUM(total_bytes_billed), 0) AS bytes_billed
FROM %s
WHERE %s
GROUP BY bucket
ORDER BY bucket`, part, view, jobsFilter), true
}
