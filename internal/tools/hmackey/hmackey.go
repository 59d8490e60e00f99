// Package hmackey generates case token signing keys in env form.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Config holds configuration for signing key generation.
type Config struct {
	Bytes int
	KeyID string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes (default: 32)")
	fs.StringVar(&cfg.KeyID, "key-id", cfg.KeyID, "emit a rotation entry for this key id instead of a single key")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the key and writes it to out. With a key id the output is
// a COUNTERDESK_CASE_TOKEN_KEYS entry plus the matching active key id.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < 16 {
		return errors.New("bytes must be at least 16")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if strings.ContainsAny(keyID, "=,") {
		return errors.New("key id must not contain '=' or ','")
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	key := hex.EncodeToString(buf)
	if keyID == "" {
		_, err := fmt.Fprintf(out, "COUNTERDESK_CASE_TOKEN_KEY=%s\n", key)
		return err
	}
	_, err := fmt.Fprintf(out, "COUNTERDESK_CASE_TOKEN_KEYS=%s=%s\nCOUNTERDESK_CASE_TOKEN_KEY_ID=%s\n", keyID, key, keyID)
	return err
}
