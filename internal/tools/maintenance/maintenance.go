// Package maintenance runs offline upkeep against the case database.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
	"github.com/louisbranch/counterdesk/internal/services/casework/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath     string        `env:"COUNTERDESK_DB_PATH"             envDefault:"data/counterdesk.db"`
	Timeout    time.Duration `env:"COUNTERDESK_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	Kind       string
	OlderThan  time.Duration
	DryRun     bool
	JSONOutput bool
}

// ParseConfig parses env and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kind = string(domain.KindExchange)
	cfg.OlderThan = 7 * 24 * time.Hour

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to case sqlite database (default: COUNTERDESK_DB_PATH or data/counterdesk.db)")
	fs.StringVar(&cfg.Kind, "kind", cfg.Kind, "case kind to expire (exchange)")
	fs.DurationVar(&cfg.OlderThan, "older-than", cfg.OlderThan, "expire open cases initiated before now minus this age")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "list cases that would expire without changing them")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output a JSON report")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one expiry pass and prints a report.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	kind, ok := domain.ParseKind(cfg.Kind)
	if !ok {
		return fmt.Errorf("unknown case kind %q", cfg.Kind)
	}
	if kind != domain.KindExchange {
		return errors.New("only exchange cases expire")
	}
	if cfg.OlderThan <= 0 {
		return errors.New("-older-than must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("-db-path is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open case store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close case store: %v\n", closeErr)
		}
	}()

	svc := domain.NewService(store, nil)
	result, err := svc.ExpireStale(ctx, domain.ExpireStaleCommand{
		Kind:      kind,
		OlderThan: cfg.OlderThan,
		DryRun:    cfg.DryRun,
	})
	svc.Wait()
	if err != nil {
		return fmt.Errorf("expire stale cases: %w", err)
	}
	return printResult(out, errOut, result, cfg.JSONOutput)
}

func printResult(out io.Writer, errOut io.Writer, result domain.ExpireResult, jsonOutput bool) error {
	if jsonOutput {
		if result.Expired == nil {
			result.Expired = []string{}
		}
		if result.Skipped == nil {
			result.Skipped = []string{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	prefix := ""
	verb := "Expired"
	if result.DryRun {
		prefix = "[DRY-RUN] "
		verb = "Would expire"
	}
	for _, id := range result.Skipped {
		fmt.Fprintf(errOut, "%sWarning: case %s moved during expiry, skipped\n", prefix, id)
	}
	for _, id := range result.Expired {
		fmt.Fprintf(out, "%s%s case %s\n", prefix, verb, id)
	}
	fmt.Fprintf(out, "%s%s %d cases initiated before %s\n", prefix, verb, len(result.Expired), result.Cutoff.Format(time.RFC3339))
	return nil
}
