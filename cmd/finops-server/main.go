// Command finops-server serves the FinOps tools over HTTP for the data
// source selected by DATA_SOURCE_TYPE.
//
//	finops-server                    run the HTTP server
//	finops-server tools              print the tool catalogue
//	finops-server call <tool> [json] run one tool and print its response
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/audit"
	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/datasource"
	"github.com/cortexai/finops-insight/internal/security"
	"github.com/cortexai/finops-insight/internal/server"
	"github.com/cortexai/finops-insight/internal/tools"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Error().Err(err).Msg("finops-server failed")
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := datasource.Open(ctx, cfg.DataSource())
	if err != nil {
		return err
	}

	auditLog := auditLogger(cfg)
	defer auditLog.Close()

	registry := tools.NewRegistry(ds, tools.Options{
		Limits: tools.Limits{
			MaxWindowDays: cfg.MaxWindowDays,
			MaxSQLBytes:   cfg.MaxSQLBytes,
			MaxTimeout:    cfg.MaxCallTimeout(),
		},
		DefaultTimeout: cfg.CallTimeout(),
		Audit:          auditLog,
		Masker:         security.NewStatementMasker(true),
	})

	if len(args) == 0 {
		return server.New(cfg, ds, registry).Run(ctx)
	}
	defer ds.Close()

	switch args[0] {
	case "tools":
		return writeJSON(stdout, registry.List())
	case "call":
		if len(args) < 2 {
			return fmt.Errorf("usage: finops-server call <tool> [json arguments]")
		}
		var input map[string]interface{}
		if len(args) > 2 {
			dec := json.NewDecoder(strings.NewReader(args[2]))
			dec.UseNumber()
			if err := dec.Decode(&input); err != nil {
				return fmt.Errorf("decode arguments: %w", err)
			}
		}
		resp := registry.Call(ctx, args[1], input, "cli")
		if err := writeJSON(stdout, resp); err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "finops-server").Logger()
}

// auditLogger writes to the log stream and, when enabled, to Elasticsearch.
// A sink that cannot be built disables itself with a warning.
func auditLogger(cfg *config.Config) *security.AuditLogger {
	if !cfg.EnableAuditLogging || !cfg.ElasticsearchEnabled {
		return security.NewAuditLogger(cfg.EnableAuditLogging, nil)
	}
	sink, err := audit.NewElasticsearchSink(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Elasticsearch audit sink unavailable")
		return security.NewAuditLogger(true, nil)
	}
	return security.NewAuditLogger(true, sink)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
