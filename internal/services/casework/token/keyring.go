// Package token signs and verifies the case descriptors customers present
// at the counter as QR codes.
package token

import (
	"crypto/hkdf"
	"crypto/sha256"
	"fmt"
	"strings"
)

// signingLabel scopes derived keys to case tokens.
const signingLabel = "case-token:v1"

// Keyring stores root keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for token signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("case token keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active case token key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active case token key id is not configured")
	}
	for keyID, key := range keys {
		if len(key) == 0 {
			return nil, fmt.Errorf("case token key %q is empty", keyID)
		}
	}
	return &Keyring{keys: keys, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// signingKey derives the token key for keyID.
func (k *Keyring) signingKey(keyID string) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("case token keyring is not configured")
	}
	rootKey, ok := k.keys[strings.TrimSpace(keyID)]
	if !ok {
		return nil, fmt.Errorf("case token key id is unknown")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, signingLabel, 32)
	if err != nil {
		return nil, fmt.Errorf("derive case token key: %w", err)
	}
	return key, nil
}
