// Package seed parses seed command flags and loads fixture manifests into
// the case database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	entrypoint "github.com/louisbranch/counterdesk/internal/platform/cmd"
	"github.com/louisbranch/counterdesk/internal/services/casework/storage/sqlite"
	"github.com/louisbranch/counterdesk/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath       string `env:"COUNTERDESK_DB_PATH" envDefault:"data/counterdesk.db"`
	Manifest     string
	ManifestPath string
	List         bool
	Verbose      bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Manifest = "demo"

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "case database path")
	fs.StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "bundled manifest to load")
	fs.StringVar(&cfg.ManifestPath, "file", "", "load a manifest file instead of a bundled one")
	fs.BoolVar(&cfg.List, "list", false, "list bundled manifests")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.List {
		names, err := seed.ListManifests()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Available manifests:")
		for _, name := range names {
			fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	}

	var (
		manifest seed.Manifest
		err      error
	)
	if path := strings.TrimSpace(cfg.ManifestPath); path != "" {
		manifest, err = seed.LoadFile(path)
	} else {
		manifest, err = seed.LoadBundled(cfg.Manifest)
	}
	if err != nil {
		return err
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open case store: %w", err)
		}
		defer store.Close()
		return seed.NewRunner(store, out, cfg.Verbose).Apply(ctx, manifest)
	})
}
