package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/platform/money"
)

var (
	// ErrNotFound indicates a record was not found.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write hit the open-case uniqueness constraint.
	ErrConflict = errors.New("case conflict")
	// ErrStaleStatus indicates a compare-and-swap found a different status.
	ErrStaleStatus = errors.New("case status changed")
	// ErrLineStatusChanged indicates the order line already left PURCHASED.
	ErrLineStatusChanged = errors.New("order line status changed")
	// ErrCustomerNotFound indicates a loyalty credit named a customer with no
	// loyalty account.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrInsufficientStock indicates a guarded stock decrement matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("case store is not configured")
	// ErrTokenCodecNotConfigured indicates the service cannot sign tokens.
	ErrTokenCodecNotConfigured = errors.New("case token codec is not configured")
)

func invalidArgument(fieldName, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidArgument,
		fmt.Sprintf("invalid %s: %s", fieldName, reason),
		map[string]string{"Field": fieldName, "Reason": reason},
	)
}

func stateConflict(p Policy, action string, status Status) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseStateConflict,
		fmt.Sprintf("cannot %s %s %s", action, status, p.Kind),
		map[string]string{
			"Action": action,
			"Status": strings.ToLower(string(status)),
			"Kind":   string(p.Kind),
		},
	)
}

func windowClosed(p Policy) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseWindowClosed,
		fmt.Sprintf("%s window of %d days closed", p.Kind, p.WindowDays),
		map[string]string{
			"Noun":       p.Noun,
			"Verb":       p.Verb,
			"Kind":       string(p.Kind),
			"WindowDays": strconv.Itoa(p.WindowDays),
		},
	)
}

func itemAlreadyProcessed(status LineStatus) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseItemAlreadyProcessed,
		fmt.Sprintf("order line is %s", status),
		map[string]string{"LineStatus": strings.ToLower(string(status))},
	)
}

func orderNotFound(orderID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeOrderNotFound,
		"order not found",
		map[string]string{"OrderID": orderID},
	)
}

func orderNotConfirmed(p Policy, status OrderStatus) error {
	return apperrors.WithMetadata(
		apperrors.CodeOrderNotConfirmed,
		fmt.Sprintf("order is %s", status),
		map[string]string{"Verb": p.Verb, "Status": string(status)},
	)
}

func lineNotFound(itemID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeOrderLineNotFound,
		"order line not found",
		map[string]string{"ItemID": itemID},
	)
}

func caseNotFound(p Policy, caseID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseNotFound,
		fmt.Sprintf("%s case not found", p.Kind),
		map[string]string{"Noun": p.Noun, "CaseID": caseID},
	)
}

func productNotFound(barcode string) error {
	return apperrors.WithMetadata(
		apperrors.CodeProductNotFound,
		"product not found",
		map[string]string{"Barcode": barcode},
	)
}

func customerNotFound(customerID string) error {
	return apperrors.WithMetadata(
		apperrors.CodeCustomerNotFound,
		"customer not found",
		map[string]string{"CustomerID": customerID},
	)
}

func priceMismatch(original Case, replacement Product) error {
	return apperrors.WithMetadata(
		apperrors.CodeCasePriceMismatch,
		fmt.Sprintf("price mismatch original=%s replacement=%s", original.OriginalPrice, replacement.EffectivePrice()),
		map[string]string{
			"OriginalPrice":    money.Format("en-US", original.OriginalPrice),
			"ReplacementPrice": money.Format("en-US", replacement.EffectivePrice()),
			"OnSale":           strconv.FormatBool(replacement.OnSale()),
		},
	)
}

func outOfStock(product Product) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseOutOfStock,
		fmt.Sprintf("product %s is out of stock", product.ID),
		map[string]string{"ProductName": product.Name},
	)
}

func replacementMismatch() error {
	return apperrors.New(apperrors.CodeCaseReplacementMismatch, "replacement must match the original product")
}

func inspectionNotPassed() error {
	return apperrors.New(apperrors.CodeCaseInspectionNotPassed, "inspection has not passed")
}

func loyaltyAmountInvalid() error {
	return apperrors.New(apperrors.CodeCaseLoyaltyAmountInvalid, "loyalty amount must be greater than zero")
}

func fallbackCodeNotMatched(code string) error {
	return apperrors.WithMetadata(
		apperrors.CodeCaseFallbackCodeNotMatched,
		"no open return for checkout code",
		map[string]string{"CheckoutCode": code},
	)
}

func invalidToken() error {
	return apperrors.New(apperrors.CodeCaseTokenInvalid, "case token does not match case")
}

func commitFailed(cause error) error {
	return apperrors.Wrap(apperrors.CodeCaseCommitFailed, "complete case", cause)
}

func isStateConflict(err error) bool {
	return apperrors.CodeOf(err) == apperrors.CodeCaseStateConflict
}
