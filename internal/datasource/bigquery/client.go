package bigquery

import (
	"context"
	"fmt"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/cortexai/finops-insight/internal/config"
)

// RowIterator yields result rows into a struct tagged with `bigquery:"..."`.
// Next returns iterator.Done after the last row.
type RowIterator interface {
	Next(dst any) error
}

// DryRunStats is what a dry run reports about a statement
type DryRunStats struct {
	TotalBytesProcessed int64
	StatementType       string
	ReferencedTables    []string
}

// Runner is the slice of the BigQuery SDK the adapter needs
type Runner interface {
	Read(ctx context.Context, sql string, params []bq.QueryParameter) (RowIterator, error)
	DryRun(ctx context.Context, sql string) (*DryRunStats, error)
	Close() error
}

// ClientRunner runs statements with a *bigquery.Client
type ClientRunner struct {
	client   *bq.Client
	location string
}

// NewClientRunner creates the SDK client. Application default credentials
// are used unless a credentials file is configured.
func NewClientRunner(ctx context.Context, cfg config.BigQueryConfig) (*ClientRunner, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	client.Location = cfg.Location

	return &ClientRunner{client: client, location: cfg.Location}, nil
}

func (r *ClientRunner) Read(ctx context.Context, sql string, params []bq.QueryParameter) (RowIterator, error) {
	q := r.client.Query(sql)
	q.Parameters = params
	q.Location = r.location
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// DryRun validates sql and reports the bytes it would process. Nothing is
// executed and nothing is billed.
func (r *ClientRunner) DryRun(ctx context.Context, sql string) (*DryRunStats, error) {
	q := r.client.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true
	q.Location = r.location

	job, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}
	status := job.LastStatus()
	if status == nil {
		return nil, fmt.Errorf("dry run returned no job status")
	}
	if err := status.Err(); err != nil {
		return nil, err
	}

	out := &DryRunStats{}
	if stats := status.Statistics; stats != nil {
		out.TotalBytesProcessed = stats.TotalBytesProcessed
		if qs, ok := stats.Details.(*bq.QueryStatistics); ok {
			out.StatementType = qs.StatementType
			for _, t := range qs.ReferencedTables {
				out.ReferencedTables = append(out.ReferencedTables, fmt.Sprintf("%s.%s.%s", t.ProjectID, t.DatasetID, t.TableID))
			}
		}
	}
	return out, nil
}

func (r *ClientRunner) Close() error {
	return r.client.Close()
}
