package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence boundary for cases and the collaborator records
// their completion mutates.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByCheckoutCode(ctx context.Context, checkoutCode string) (Order, error)
	GetProductByBarcode(ctx context.Context, barcode string) (Product, error)

	GetCase(ctx context.Context, kind Kind, caseID string) (Case, error)
	FindOpenCase(ctx context.Context, kind Kind, orderID string, lineID string, open []Status) (Case, error)
	FindOpenCaseByOrder(ctx context.Context, kind Kind, orderID string, open []Status) (Case, error)
	ListCasesByCustomer(ctx context.Context, kind Kind, customerID string) ([]Case, error)
	ListStaleOpenCases(ctx context.Context, kind Kind, open []Status, initiatedBefore time.Time) ([]Case, error)

	// PutCase inserts a new case. It returns ErrConflict when another open
	// case already holds (kind, order line).
	PutCase(ctx context.Context, c Case) error
	// TransitionCase writes t.Case only while the stored status is one of
	// t.From, returning ErrStaleStatus otherwise.
	TransitionCase(ctx context.Context, t Transition) (Case, error)
	// CompleteCase applies a completion in one transaction.
	CompleteCase(ctx context.Context, c Completion) (Case, error)
	// SetAuditReference stores the ledger reference once.
	SetAuditReference(ctx context.Context, kind Kind, caseID string, ref AuditReference) error
}

// Transition is a compare-and-swap status change.
type Transition struct {
	Case Case
	From []Status
}

// StockChange adjusts one product's stock. Negative deltas only apply when
// enough stock remains.
type StockChange struct {
	ProductID string
	Delta     int
}

// LoyaltyCredit adds points to a customer with a history entry.
type LoyaltyCredit struct {
	CustomerID string
	Entry      LoyaltyEntry
}

// Completion is every write a finished case makes, applied in order: the
// order line leaves PURCHASED, stock moves, loyalty is credited, then the
// case itself transitions.
type Completion struct {
	Transition
	OrderID      string
	LineID       string
	LineStatus   LineStatus
	Fulfillment  LineFulfillment
	StockChanges []StockChange
	Loyalty      *LoyaltyCredit
}

// Descriptor is what a case token carries.
type Descriptor struct {
	CaseID     string
	Kind       Kind
	OrderID    string
	ItemID     string
	CustomerID string
	Price      decimal.Decimal
}

// TokenCodec signs and verifies case descriptors.
type TokenCodec interface {
	Issue(d Descriptor) (string, error)
	Verify(token string) (Descriptor, error)
}

// Event is one case state change pushed to realtime subscribers.
type Event struct {
	Room    string         `json:"-"`
	Name    string         `json:"event"`
	CaseID  string         `json:"case_id"`
	Payload map[string]any `json:"payload"`
}

// Broadcaster fans events out to subscribers. Publish must not block.
type Broadcaster interface {
	Publish(ctx context.Context, event Event)
}

// AuditSummary is the completed case record handed to the ledger.
type AuditSummary struct {
	CaseID            string          `json:"caseId"`
	Kind              Kind            `json:"kind"`
	OrderID           string          `json:"orderId"`
	CustomerID        string          `json:"customerId"`
	OriginalItemID    string          `json:"originalItemId"`
	ReplacementItemID string          `json:"replacementItemId"`
	Price             decimal.Decimal `json:"price"`
	FulfillmentType   FulfillmentType `json:"fulfillmentType"`
	LoyaltyPoints     decimal.Decimal `json:"loyaltyPoints"`
	CompletedAt       time.Time       `json:"completedAt"`
}

// AuditReference identifies a ledger entry.
type AuditReference struct {
	TxID string
	Hash string
}

// AuditLogger hands completed cases to an append-only ledger.
type AuditLogger interface {
	HandOff(ctx context.Context, summary AuditSummary) (AuditReference, error)
}

// Recorder counts lifecycle outcomes.
type Recorder interface {
	CaseTransition(kind Kind, from Status, to Status)
	AuditHandOff(kind Kind, ok bool)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(context.Context, Event) {}

type noopRecorder struct{}

func (noopRecorder) CaseTransition(Kind, Status, Status) {}
func (noopRecorder) AuditHandOff(Kind, bool)             {}
