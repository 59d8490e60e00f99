// Package domain holds the exchange and return case lifecycle: case records,
// their per-kind policies, and the service that drives every transition.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags which workflow a case belongs to.
type Kind string

const (
	KindExchange Kind = "exchange"
	KindReturn   Kind = "return"
)

// ParseKind normalizes a raw kind label.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindExchange:
		return KindExchange, true
	case KindReturn:
		return KindReturn, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a case.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusInspected Status = "INSPECTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// InspectionStatus records the cashier's verdict on a returned item.
type InspectionStatus string

const (
	InspectionPending  InspectionStatus = "PENDING"
	InspectionPassed   InspectionStatus = "PASSED"
	InspectionRejected InspectionStatus = "REJECTED"
)

// FulfillmentType is how a passed return is resolved.
type FulfillmentType string

const (
	FulfillmentLoyaltyConversion FulfillmentType = "LOYALTY_CONVERSION"
	FulfillmentItemSwap          FulfillmentType = "ITEM_SWAP"
)

// ReturnReason is the customer's stated reason for a return.
type ReturnReason string

const (
	ReasonChangedMind    ReturnReason = "changed_mind"
	ReasonDefective      ReturnReason = "defective"
	ReasonDamaged        ReturnReason = "damaged"
	ReasonNotAsDescribed ReturnReason = "not_as_described"
	ReasonWrongItem      ReturnReason = "wrong_item"
	ReasonOther          ReturnReason = "other"
)

// ParseReturnReason maps raw input to a reason. Empty input defaults to
// ReasonChangedMind.
func ParseReturnReason(raw string) (ReturnReason, bool) {
	reason := ReturnReason(strings.ToLower(strings.TrimSpace(raw)))
	switch reason {
	case "":
		return ReasonChangedMind, true
	case ReasonChangedMind, ReasonDefective, ReasonDamaged, ReasonNotAsDescribed, ReasonWrongItem, ReasonOther:
		return reason, true
	default:
		return "", false
	}
}

// Case is one exchange or return record through its lifecycle.
type Case struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	OrderID    string `json:"orderId"`
	LineID     string `json:"lineId"`
	CustomerID string `json:"customerId"`
	CashierID  string `json:"cashierId,omitempty"`

	OriginalItemID   string          `json:"originalItemId"`
	OriginalItemName string          `json:"originalItemName"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`

	QRToken string `json:"qrToken"`
	Status  Status `json:"status"`

	ReplacementItemID   string `json:"replacementItemId,omitempty"`
	ReplacementItemName string `json:"replacementItemName,omitempty"`

	ReturnReason         ReturnReason     `json:"returnReason,omitempty"`
	ReturnReasonNotes    string           `json:"returnReasonNotes,omitempty"`
	InspectionStatus     InspectionStatus `json:"inspectionStatus,omitempty"`
	InspectionNotes      string           `json:"inspectionNotes,omitempty"`
	FulfillmentType      FulfillmentType  `json:"fulfillmentType,omitempty"`
	LoyaltyPointsAwarded decimal.Decimal  `json:"loyaltyPointsAwarded"`

	InitiatedAt time.Time  `json:"initiatedAt"`
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
	InspectedAt *time.Time `json:"inspectedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	AuditTxID string `json:"auditTxId,omitempty"`
	AuditHash string `json:"auditHash,omitempty"`
}

// Room returns the realtime channel key for this case.
func (c Case) Room() string {
	return RoomKey(c.Kind, c.ID)
}

// RoomKey builds the realtime channel key for a case.
func RoomKey(kind Kind, caseID string) string {
	return string(kind) + ":" + caseID
}

func timePtr(value time.Time) *time.Time {
	return &value
}
