package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InitiateExchangeCommand starts an exchange for one purchased item.
type InitiateExchangeCommand struct {
	OrderID    string
	ItemID     string
	CustomerID string
}

// Validate checks required fields.
func (c InitiateExchangeCommand) Validate() error {
	return requireFields(
		field{"orderId", c.OrderID},
		field{"itemId", c.ItemID},
		field{"customerId", c.CustomerID},
	)
}

// ValidateExchangeCommand is a cashier scan of an exchange token.
type ValidateExchangeCommand struct {
	Token     string
	CashierID string
}

// Validate checks required fields.
func (c ValidateExchangeCommand) Validate() error {
	return requireFields(field{"qrToken", c.Token}, field{"cashierId", c.CashierID})
}

// ValidateReplacementCommand dry-runs a replacement scan.
type ValidateReplacementCommand struct {
	CaseID  string
	Barcode string
}

// Validate checks required fields.
func (c ValidateReplacementCommand) Validate() error {
	return requireFields(field{"caseId", c.CaseID}, field{"barcode", c.Barcode})
}

// VerifyReplacementPriceCommand is the customer-side price preview.
type VerifyReplacementPriceCommand struct {
	CaseID     string
	CustomerID string
	Barcode    string
}

// Validate checks required fields.
func (c VerifyReplacementPriceCommand) Validate() error {
	return requireFields(
		field{"caseId", c.CaseID},
		field{"customerId", c.CustomerID},
		field{"barcode", c.Barcode},
	)
}

// CompleteExchangeCommand finishes an exchange with a scanned replacement.
type CompleteExchangeCommand struct {
	CaseID    string
	Barcode   string
	CashierID string
}

// Validate checks required fields.
func (c CompleteExchangeCommand) Validate() error {
	return requireFields(
		field{"caseId", c.CaseID},
		field{"barcode", c.Barcode},
		field{"cashierId", c.CashierID},
	)
}

// CancelExchangeCommand is a customer withdrawing an exchange.
type CancelExchangeCommand struct {
	CaseID     string
	CustomerID string
}

// Validate checks required fields.
func (c CancelExchangeCommand) Validate() error {
	return requireFields(field{"caseId", c.CaseID}, field{"customerId", c.CustomerID})
}

// InitiateReturnCommand starts a return for one purchased item.
type InitiateReturnCommand struct {
	OrderID    string
	ItemID     string
	CustomerID string
	Reason     string
	Notes      string
}

// Validate checks required fields and the reason label.
func (c InitiateReturnCommand) Validate() error {
	if err := requireFields(
		field{"orderId", c.OrderID},
		field{"itemId", c.ItemID},
		field{"customerId", c.CustomerID},
	); err != nil {
		return err
	}
	if _, ok := ParseReturnReason(c.Reason); !ok {
		return invalidArgument("reason", "unknown return reason")
	}
	return nil
}

// ValidateReturnCommand locates a return by token or, failing that, by the
// order's checkout code.
type ValidateReturnCommand struct {
	Token        string
	CheckoutCode string
	CashierID    string
}

// Validate requires a cashier and exactly one locator.
func (c ValidateReturnCommand) Validate() error {
	if err := requireFields(field{"cashierId", c.CashierID}); err != nil {
		return err
	}
	token := strings.TrimSpace(c.Token)
	code := strings.TrimSpace(c.CheckoutCode)
	switch {
	case token == "" && code == "":
		return invalidArgument("qrToken", "qrToken or checkoutCode is required")
	case token != "" && code != "":
		return invalidArgument("qrToken", "send either qrToken or checkoutCode, not both")
	}
	return nil
}

// InspectReturnCommand records the inspection verdict.
type InspectReturnCommand struct {
	CaseID    string
	Result    InspectionStatus
	Notes     string
	CashierID string
}

// Validate requires a final verdict.
func (c InspectReturnCommand) Validate() error {
	if err := requireFields(field{"caseId", c.CaseID}); err != nil {
		return err
	}
	switch c.Result {
	case InspectionPassed, InspectionRejected:
		return nil
	default:
		return invalidArgument("inspectionStatus", "must be PASSED or REJECTED")
	}
}

// CompleteReturnLoyaltyCommand converts a passed return into loyalty points.
type CompleteReturnLoyaltyCommand struct {
	CaseID        string
	LoyaltyAmount decimal.Decimal
	CashierID     string
}

// Validate requires a positive amount.
func (c CompleteReturnLoyaltyCommand) Validate() error {
	if err := requireFields(field{"caseId", c.CaseID}); err != nil {
		return err
	}
	if !c.LoyaltyAmount.IsPositive() {
		return loyaltyAmountInvalid()
	}
	return nil
}

// CompleteReturnSwapCommand resolves a passed return with the same item.
type CompleteReturnSwapCommand struct {
	CaseID    string
	Barcode   string
	CashierID string
}

// Validate checks required fields.
func (c CompleteReturnSwapCommand) Validate() error {
	return requireFields(field{"caseId", c.CaseID}, field{"barcode", c.Barcode})
}

// RejectReturnCommand refuses a return at the counter.
type RejectReturnCommand struct {
	CaseID    string
	Reason    string
	CashierID string
}

// Validate checks required fields.
func (c RejectReturnCommand) Validate() error {
	return requireFields(field{"caseId", c.CaseID})
}

// CancelReturnCommand withdraws a return. When CustomerID is set the case
// must belong to that customer.
type CancelReturnCommand struct {
	CaseID     string
	CustomerID string
}

// Validate checks required fields.
func (c CancelReturnCommand) Validate() error {
	return requireFields(field{"caseId", c.CaseID})
}

// ExpireStaleCommand marks open cases initiated before a cutoff as expired.
type ExpireStaleCommand struct {
	Kind      Kind
	OlderThan time.Duration
	DryRun    bool
}

// Validate requires an exchange kind and a positive age.
func (c ExpireStaleCommand) Validate() error {
	if c.Kind != KindExchange {
		return invalidArgument("kind", "only exchange cases expire")
	}
	if c.OlderThan <= 0 {
		return invalidArgument("olderThan", "must be positive")
	}
	return nil
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return invalidArgument(f.name, "required")
		}
	}
	return nil
}
