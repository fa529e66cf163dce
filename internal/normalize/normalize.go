// Package normalize maps backend-native cost and performance metrics into
// the shared result entities. Every function is total and carries the unit
// of its input through to its output.
package normalize

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/cortexai/finops-insight/internal/models"
)

// BytesPerTiB is the unit BigQuery on-demand pricing is quoted in
const BytesPerTiB = 1 << 40

// BytesToUSD converts billed bytes into dollars at pricePerTiB
func BytesToUSD(bytes int64, pricePerTiB float64) float64 {
	if bytes <= 0 {
		return 0
	}
	return float64(bytes) / BytesPerTiB * pricePerTiB
}

// BigQueryJob is one completed query job from INFORMATION_SCHEMA
type BigQueryJob struct {
	JobID          string
	ProjectID      string
	UserEmail      string
	Query          string
	BytesProcessed int64
	BytesBilled    int64
	SlotMillis     int64
	CacheHit       bool
	CreationTime   time.Time
}

// BigQueryQueryRecord ranks by bytes processed; the billed dollar amount is
// carried as a measurement
func BigQueryQueryRecord(j BigQueryJob, pricePerTiB float64) models.QueryRecord {
	return models.QueryRecord{
		ID:        j.JobID,
		Statement: j.Query,
		Principal: j.UserEmail,
		Cost:      models.Quantity{Value: float64(j.BytesProcessed), Unit: models.UnitBytes},
		Usage: []models.Measurement{
			{Name: "bytes_billed", Value: float64(j.BytesBilled), Unit: models.UnitBytes},
			{Name: "estimated_cost", Value: BytesToUSD(j.BytesBilled, pricePerTiB), Unit: models.UnitUSD},
			{Name: "slot_time", Value: float64(j.SlotMillis), Unit: models.UnitSlotMillis},
		},
		ExecutionCount: 1,
		Timestamp:      j.CreationTime.UTC(),
	}
}

// AzureQueryStat is one Query Store query aggregated over a window
type AzureQueryStat struct {
	QueryID        int64
	QueryText      string
	Executions     int64
	TotalCPUMillis float64
	AvgCPUMillis   float64
	LogicalReads   float64
	DurationMillis float64
	LastExecution  time.Time
}

// AzureQueryRecord ranks by cumulative CPU time
func AzureQueryRecord(s AzureQueryStat) models.QueryRecord {
	return models.QueryRecord{
		ID:        strconv.FormatInt(s.QueryID, 10),
		Statement: s.QueryText,
		Cost:      models.Quantity{Value: s.TotalCPUMillis, Unit: models.UnitCPUMillis},
		Usage: []models.Measurement{
			{Name: "avg_cpu_time", Value: s.AvgCPUMillis, Unit: models.UnitCPUMillis},
			{Name: "logical_reads", Value: s.LogicalReads, Unit: models.UnitLogicalReads},
			{Name: "duration", Value: s.DurationMillis, Unit: models.UnitMillis},
		},
		ExecutionCount: s.Executions,
		Timestamp:      s.LastExecution.UTC(),
	}
}

// DTUPercent is the blended utilisation of one resource sample: the
// largest of its CPU, data IO and log write percentages
func DTUPercent(cpu, dataIO, logWrite float64) float64 {
	return math.Max(cpu, math.Max(dataIO, logWrite))
}

// Summarize builds a CostSummary with the per-query average in the same
// unit as the total
func Summarize(backend models.Backend, w models.Window, total models.Quantity, count int64, metrics ...models.Measurement) models.CostSummary {
	avg := models.Quantity{Unit: total.Unit}
	if count > 0 {
		avg.Value = total.Value / float64(count)
	}
	return models.CostSummary{
		Backend:     backend,
		Window:      w,
		Total:       total,
		QueryCount:  count,
		AvgPerQuery: avg,
		Metrics:     metrics,
		GeneratedAt: time.Now().UTC(),
	}
}

// RankQueries returns a copy of records ordered by descending cost, ties by
// id, truncated to limit. A non-positive limit keeps every record.
func RankQueries(records []models.QueryRecord, limit int) []models.QueryRecord {
	out := make([]models.QueryRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cost.Value != out[j].Cost.Value {
			return out[i].Cost.Value > out[j].Cost.Value
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MergeProjectCosts sums entries sharing a key and orders the result by
// descending cost
func MergeProjectCosts(entries []models.ProjectCostEntry) []models.ProjectCostEntry {
	index := make(map[string]int, len(entries))
	out := make([]models.ProjectCostEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Project]; ok {
			out[i].Cost.Value += e.Cost.Value
			out[i].QueryCount += e.QueryCount
			for k, v := range e.Attributes {
				if out[i].Attributes == nil {
					out[i].Attributes = map[string]string{}
				}
				if _, exists := out[i].Attributes[k]; !exists {
					out[i].Attributes[k] = v
				}
			}
			continue
		}
		index[e.Project] = len(out)
		if e.Attributes != nil {
			attrs := make(map[string]string, len(e.Attributes))
			for k, v := range e.Attributes {
				attrs[k] = v
			}
			e.Attributes = attrs
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cost.Value != out[j].Cost.Value {
			return out[i].Cost.Value > out[j].Cost.Value
		}
		return out[i].Project < out[j].Project
	})
	return out
}

// MergeUserCosts sums entries sharing a user, including their named usage
// measurements, and orders the result by descending cost
func MergeUserCosts(entries []models.UserCostEntry) []models.UserCostEntry {
	index := make(map[string]int, len(entries))
	out := make([]models.UserCostEntry, 0, len(entries))
	for _, e := range entries {
		i, ok := index[e.User]
		if !ok {
			index[e.User] = len(out)
			e.Usage = append([]models.Measurement(nil), e.Usage...)
			out = append(out, e)
			continue
		}
		out[i].Cost.Value += e.Cost.Value
		out[i].QueryCount += e.QueryCount
		out[i].Usage = mergeMeasurements(out[i].Usage, e.Usage)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cost.Value != out[j].Cost.Value {
			return out[i].Cost.Value > out[j].Cost.Value
		}
		return out[i].User < out[j].User
	})
	return out
}

func mergeMeasurements(dst, src []models.Measurement) []models.Measurement {
	for _, m := range src {
		found := false
		for i := range dst {
			if dst[i].Name == m.Name && dst[i].Unit == m.Unit {
				dst[i].Value += m.Value
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, m)
		}
	}
	return dst
}

// FillTrend aligns points to buckets of g, sums points landing in the same
// bucket, drops points whose bucket lies outside w and zero-fills missing
// buckets. The result is ascending and covers w exactly once per bucket; the
// first bucket starts at w.Start truncated to g.
func FillTrend(points []models.TrendPoint, w models.Window, g models.Granularity) []models.TrendPoint {
	first := g.Truncate(w.Start)
	byBucket := make(map[int64]models.TrendPoint, len(points))
	for _, p := range points {
		bucket := g.Truncate(p.Timestamp)
		if bucket.Before(first) || !bucket.Before(w.End) {
			continue
		}
		key := bucket.Unix()
		acc := byBucket[key]
		acc.Value += p.Value
		acc.QueryCount += p.QueryCount
		byBucket[key] = acc
	}

	var out []models.TrendPoint
	for t := first; t.Before(w.End); t = g.Next(t) {
		p := byBucket[t.Unix()]
		p.Timestamp = t
		out = append(out, p)
	}
	return out
}

// Total sums the values of points
func Total(points []models.TrendPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum
}

// PrimaryCost is the value recommendations are expressed in: the billed
// dollar amount when a record carries one, its ranking cost otherwise
func PrimaryCost(r models.QueryRecord) models.Quantity {
	for _, m := range r.Usage {
		if m.Unit == models.UnitUSD {
			return models.Quantity{Value: m.Value, Unit: m.Unit}
		}
	}
	return r.Cost
}
