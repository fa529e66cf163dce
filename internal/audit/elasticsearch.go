// Package audit ships audit events to Elasticsearch
package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/security"
)

// ElasticsearchSink indexes audit events into a daily index
// (<prefix>-YYYY.MM.DD)
type ElasticsearchSink struct {
	client *elasticsearch.Client
	prefix string
}

var _ security.AuditSink = (*ElasticsearchSink)(nil)

// NewElasticsearchSink builds a sink from the ELASTICSEARCH_* settings
func NewElasticsearchSink(cfg *config.Config) (*ElasticsearchSink, error) {
	addr := fmt.Sprintf("%s://%s:%d", cfg.ElasticsearchScheme, cfg.ElasticsearchHost, cfg.ElasticsearchPort)
	return newSink(addr, cfg)
}

func newSink(addr string, cfg *config.Config) (*ElasticsearchSink, error) {
	transport := &http.Transport{
		ResponseHeaderTimeout: time.Duration(cfg.ElasticsearchTimeout) * time.Second,
	}
	if !cfg.ElasticsearchVerifyCerts {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402 - explicitly disabled by configuration
		}
	}

	esCfg := elasticsearch.Config{
		Addresses:  []string{addr},
		MaxRetries: cfg.ElasticsearchMaxRetries,
		Transport:  transport,
	}
	if cfg.ElasticsearchUser != "" {
		esCfg.Username = cfg.ElasticsearchUser
		esCfg.Password = cfg.ElasticsearchPassword
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}

	prefix := cfg.ElasticsearchIndex
	if prefix == "" {
		prefix = config.DefaultElasticsearchIndex
	}
	return &ElasticsearchSink{client: client, prefix: prefix}, nil
}

// Index returns the index an event with timestamp t is written to
func (s *ElasticsearchSink) Index(t time.Time) string {
	return s.prefix + "-" + t.UTC().Format("2006.01.02")
}

func (s *ElasticsearchSink) Write(ctx context.Context, evt security.AuditEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	req := esapi.IndexRequest{
		Index: s.Index(evt.Timestamp),
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index audit event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index audit event: %s: %s", res.Status(), msg)
	}
	return nil
}
