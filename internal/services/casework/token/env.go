package token

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	envKey       = "COUNTERDESK_CASE_TOKEN_KEY"
	envKeys      = "COUNTERDESK_CASE_TOKEN_KEYS"
	envKeyID     = "COUNTERDESK_CASE_TOKEN_KEY_ID"
	defaultKeyID = "v1"
)

type keyringEnv struct {
	Key   string `env:"COUNTERDESK_CASE_TOKEN_KEY"`
	Keys  string `env:"COUNTERDESK_CASE_TOKEN_KEYS"`
	KeyID string `env:"COUNTERDESK_CASE_TOKEN_KEY_ID" envDefault:"v1"`
}

// KeyringFromEnv builds a keyring from COUNTERDESK_CASE_TOKEN_KEYS
// ("id=value,...") or a single COUNTERDESK_CASE_TOKEN_KEY. There is no
// fallback secret.
func KeyringFromEnv() (*Keyring, error) {
	var raw keyringEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse case token env: %w", err)
	}
	keyID := strings.TrimSpace(raw.KeyID)
	if keyID == "" {
		keyID = defaultKeyID
	}

	keySpec := strings.TrimSpace(raw.Keys)
	if keySpec == "" {
		value := strings.TrimSpace(raw.Key)
		if value == "" {
			return nil, fmt.Errorf("%s is required", envKey)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(value)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(keySpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid %s entry", envKeys)
		}
		id := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry", envKeys)
		}
		keys[id] = []byte(value)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%s %q is not listed in %s", envKeyID, keyID, envKeys)
	}
	return NewKeyring(keys, keyID)
}
