package counterdesk

import (
	"context"
	"flag"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("counterdesk", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ExchangeWindowDays != 7 || cfg.ReturnWindowDays != 14 {
		t.Fatalf("expected default windows 7/14, got %d/%d", cfg.ExchangeWindowDays, cfg.ReturnWindowDays)
	}
	if cfg.AuditTimeout != 5*time.Second {
		t.Fatalf("expected default audit timeout, got %s", cfg.AuditTimeout)
	}
	if len(cfg.Brokers()) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.Brokers())
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("COUNTERDESK_HTTP_ADDR", "env-addr")
	t.Setenv("COUNTERDESK_DB_PATH", "env.db")
	t.Setenv("COUNTERDESK_AUDIT_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	fs := flag.NewFlagSet("counterdesk", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-exchange-window-days", "3",
		"-audit-timeout", "2s",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.ExchangeWindowDays != 3 {
		t.Fatalf("expected flag exchange window, got %d", cfg.ExchangeWindowDays)
	}
	if cfg.AuditTimeout != 2*time.Second {
		t.Fatalf("expected flag audit timeout, got %s", cfg.AuditTimeout)
	}
	brokers := cfg.Brokers()
	if len(brokers) != 2 || brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
}

func TestParseConfigRejectsNonPositiveWindow(t *testing.T) {
	fs := flag.NewFlagSet("counterdesk", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-return-window-days", "0"}); err == nil {
		t.Fatal("expected window validation error")
	}
}

func TestRunRequiresSigningKey(t *testing.T) {
	t.Setenv("COUNTERDESK_CASE_TOKEN_KEY", "")
	t.Setenv("COUNTERDESK_CASE_TOKEN_KEYS", "")

	err := Run(context.Background(), Config{HTTPAddr: "127.0.0.1:0", DBPath: t.TempDir() + "/db.sqlite"})
	if err == nil {
		t.Fatal("expected missing key error")
	}
	if !strings.Contains(err.Error(), "COUNTERDESK_CASE_TOKEN_KEY") {
		t.Fatalf("expected error naming the key variable, got %v", err)
	}
}
