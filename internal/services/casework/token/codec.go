package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// caseClaims is the JWT body. Tokens carry no expiry; the case window is
// enforced when the case is opened.
type caseClaims struct {
	jwt.RegisteredClaims
	CaseID     string `json:"case_id"`
	Kind       string `json:"kind"`
	OrderID    string `json:"order_id"`
	ItemID     string `json:"item_id"`
	CustomerID string `json:"customer_id"`
	Price      string `json:"price"`
}

// Codec issues HS256 case tokens with the keyring's active key and verifies
// tokens signed by any configured key.
type Codec struct {
	keyring *Keyring
	now     func() time.Time
}

// NewCodec builds a codec over keyring.
func NewCodec(keyring *Keyring, now func() time.Time) (*Codec, error) {
	if keyring == nil {
		return nil, fmt.Errorf("case token keyring is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{keyring: keyring, now: now}, nil
}

// Issue signs a descriptor.
func (c *Codec) Issue(d domain.Descriptor) (string, error) {
	if c == nil || c.keyring == nil {
		return "", fmt.Errorf("case token codec is not configured")
	}
	if strings.TrimSpace(d.CaseID) == "" || d.Kind == "" || strings.TrimSpace(d.OrderID) == "" {
		return "", fmt.Errorf("case id, kind and order id are required")
	}
	keyID := c.keyring.ActiveKeyID()
	key, err := c.keyring.signingKey(keyID)
	if err != nil {
		return "", err
	}
	claims := caseClaims{
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(c.now().UTC())},
		CaseID:           d.CaseID,
		Kind:             string(d.Kind),
		OrderID:          d.OrderID,
		ItemID:           d.ItemID,
		CustomerID:       d.CustomerID,
		Price:            d.Price.StringFixed(2),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = keyID
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign case token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and structure. Every failure is the
// same caller-facing CASE_TOKEN_INVALID error.
func (c *Codec) Verify(raw string) (domain.Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Descriptor{}, invalid("case token is required", nil)
	}
	if c == nil || c.keyring == nil {
		return domain.Descriptor{}, invalid("case token codec is not configured", nil)
	}

	var parsed caseClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(tok *jwt.Token) (any, error) {
		keyID, _ := tok.Header["kid"].(string)
		return c.keyring.signingKey(keyID)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return domain.Descriptor{}, mapJWTError(err)
	}

	kind, ok := domain.ParseKind(parsed.Kind)
	if !ok {
		return domain.Descriptor{}, invalid("case token kind is invalid", nil)
	}
	if strings.TrimSpace(parsed.CaseID) == "" || strings.TrimSpace(parsed.OrderID) == "" {
		return domain.Descriptor{}, invalid("case token is missing claims", nil)
	}
	price, err := decimal.NewFromString(parsed.Price)
	if err != nil {
		return domain.Descriptor{}, invalid("case token price is invalid", err)
	}
	return domain.Descriptor{
		CaseID:     parsed.CaseID,
		Kind:       kind,
		OrderID:    parsed.OrderID,
		ItemID:     parsed.ItemID,
		CustomerID: parsed.CustomerID,
		Price:      price,
	}, nil
}

// mapJWTError keeps the jwt error as the cause for logs only.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return invalid("case token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return invalid("case token key is unknown", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return invalid("case token is malformed", err)
	default:
		return invalid("case token is invalid", err)
	}
}

func invalid(message string, cause error) error {
	if cause == nil {
		return apperrors.New(apperrors.CodeCaseTokenInvalid, message)
	}
	return apperrors.Wrap(apperrors.CodeCaseTokenInvalid, message, cause)
}
