// Package audit hands completed cases to an append-only ledger. Each entry
// carries a SHA-256 hash over the canonical JSON of its summary.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/platform/id"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// Record is one ledger entry as written to a sink.
type Record struct {
	TxID       string          `json:"txId"`
	Hash       string          `json:"hash"`
	RecordedAt time.Time       `json:"recordedAt"`
	Summary    json.RawMessage `json:"summary"`
	CaseID     string          `json:"-"`
}

// Sink stores ledger records. Append returns only once the record is durable.
type Sink interface {
	Append(ctx context.Context, record Record) error
}

// Ledger implements domain.AuditLogger over a sink.
type Ledger struct {
	sink  Sink
	now   func() time.Time
	newID func() (string, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the recording clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(l *Ledger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// NewLedger builds a ledger writing to sink.
func NewLedger(sink Sink, opts ...Option) *Ledger {
	l := &Ledger{sink: sink, now: time.Now, newID: id.NewID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ domain.AuditLogger = (*Ledger)(nil)

// HandOff hashes the summary and appends it to the sink.
func (l *Ledger) HandOff(ctx context.Context, summary domain.AuditSummary) (domain.AuditReference, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditReference{}, unavailable(err)
	}
	if l == nil || l.sink == nil {
		return domain.AuditReference{}, unavailable(fmt.Errorf("audit sink is not configured"))
	}
	if strings.TrimSpace(summary.CaseID) == "" {
		return domain.AuditReference{}, unavailable(fmt.Errorf("audit summary requires a case id"))
	}

	canonical, err := Canonical(summary)
	if err != nil {
		return domain.AuditReference{}, unavailable(err)
	}
	txID, err := l.newID()
	if err != nil {
		return domain.AuditReference{}, unavailable(err)
	}
	record := Record{
		TxID:       txID,
		Hash:       Hash(canonical),
		RecordedAt: l.now().UTC(),
		Summary:    canonical,
		CaseID:     summary.CaseID,
	}
	if err := l.sink.Append(ctx, record); err != nil {
		return domain.AuditReference{}, unavailable(err)
	}
	return domain.AuditReference{TxID: record.TxID, Hash: record.Hash}, nil
}

// canonicalSummary fixes field order and number formatting for hashing.
type canonicalSummary struct {
	CaseID            string `json:"caseId"`
	Kind              string `json:"kind"`
	OrderID           string `json:"orderId"`
	CustomerID        string `json:"customerId"`
	OriginalItemID    string `json:"originalItemId"`
	ReplacementItemID string `json:"replacementItemId"`
	Price             string `json:"price"`
	FulfillmentType   string `json:"fulfillmentType"`
	LoyaltyPoints     string `json:"loyaltyPoints"`
	CompletedAt       string `json:"completedAt"`
}

// Canonical renders a summary as compact JSON with fixed key order, amounts
// with two decimals and the completion time in RFC 3339 UTC.
func Canonical(summary domain.AuditSummary) ([]byte, error) {
	payload, err := json.Marshal(canonicalSummary{
		CaseID:            summary.CaseID,
		Kind:              string(summary.Kind),
		OrderID:           summary.OrderID,
		CustomerID:        summary.CustomerID,
		OriginalItemID:    summary.OriginalItemID,
		ReplacementItemID: summary.ReplacementItemID,
		Price:             summary.Price.StringFixed(2),
		FulfillmentType:   string(summary.FulfillmentType),
		LoyaltyPoints:     summary.LoyaltyPoints.StringFixed(2),
		CompletedAt:       summary.CompletedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit summary: %w", err)
	}
	return payload, nil
}

// Hash returns the lowercase hex SHA-256 of payload.
func Hash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func unavailable(cause error) error {
	return apperrors.Wrap(apperrors.CodeCaseAuditUnavailable, "audit ledger unavailable", cause)
}
