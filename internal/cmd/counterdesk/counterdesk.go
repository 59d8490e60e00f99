// Package counterdesk parses counterdesk command flags and starts the case
// service.
package counterdesk

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/counterdesk/internal/platform/cmd"
	server "github.com/louisbranch/counterdesk/internal/services/casework/app"
	"github.com/louisbranch/counterdesk/internal/services/casework/token"
)

// Config holds counterdesk command configuration.
type Config struct {
	HTTPAddr           string        `env:"COUNTERDESK_HTTP_ADDR"             envDefault:":8090"`
	DBPath             string        `env:"COUNTERDESK_DB_PATH"               envDefault:"data/counterdesk.db"`
	ExchangeWindowDays int           `env:"COUNTERDESK_EXCHANGE_WINDOW_DAYS"  envDefault:"7"`
	ReturnWindowDays   int           `env:"COUNTERDESK_RETURN_WINDOW_DAYS"    envDefault:"14"`
	AuditKafkaBrokers  string        `env:"COUNTERDESK_AUDIT_KAFKA_BROKERS"`
	AuditKafkaTopic    string        `env:"COUNTERDESK_AUDIT_KAFKA_TOPIC"     envDefault:"case-audit"`
	AuditLedgerPath    string        `env:"COUNTERDESK_AUDIT_LEDGER_PATH"     envDefault:"data/case-audit.jsonl"`
	AuditTimeout       time.Duration `env:"COUNTERDESK_AUDIT_TIMEOUT"         envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "counterdesk HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "case database path")
	fs.IntVar(&cfg.ExchangeWindowDays, "exchange-window-days", cfg.ExchangeWindowDays, "days after purchase an exchange may be initiated")
	fs.IntVar(&cfg.ReturnWindowDays, "return-window-days", cfg.ReturnWindowDays, "days after purchase a return may be initiated")
	fs.StringVar(&cfg.AuditKafkaBrokers, "audit-kafka-brokers", cfg.AuditKafkaBrokers, "comma separated Kafka brokers for the audit ledger")
	fs.StringVar(&cfg.AuditKafkaTopic, "audit-kafka-topic", cfg.AuditKafkaTopic, "Kafka topic for the audit ledger")
	fs.StringVar(&cfg.AuditLedgerPath, "audit-ledger-path", cfg.AuditLedgerPath, "append-only audit ledger file, empty to disable")
	fs.DurationVar(&cfg.AuditTimeout, "audit-timeout", cfg.AuditTimeout, "bound on one audit ledger hand-off")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.ExchangeWindowDays <= 0 || cfg.ReturnWindowDays <= 0 {
		return Config{}, fmt.Errorf("case windows must be positive")
	}
	return cfg, nil
}

// Brokers splits the configured broker list.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.AuditKafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Run loads the signing keyring and serves the case API. A missing key
// aborts startup.
func Run(ctx context.Context, cfg Config) error {
	keyring, err := token.KeyringFromEnv()
	if err != nil {
		return fmt.Errorf("load case token keyring: %w", err)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCounterdesk, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:           cfg.HTTPAddr,
			DBPath:             cfg.DBPath,
			ExchangeWindowDays: cfg.ExchangeWindowDays,
			ReturnWindowDays:   cfg.ReturnWindowDays,
			Keyring:            keyring,
			AuditKafkaBrokers:  cfg.Brokers(),
			AuditKafkaTopic:    cfg.AuditKafkaTopic,
			AuditLedgerPath:    cfg.AuditLedgerPath,
			AuditTimeout:       cfg.AuditTimeout,
		}); err != nil {
			return fmt.Errorf("serve counterdesk: %w", err)
		}
		return nil
	})
}
