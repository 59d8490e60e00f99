// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

// Class groups codes into the caller-facing failure taxonomy.
type Class string

const (
	ClassValidation       Class = "validation"
	ClassNotFound         Class = "not_found"
	ClassStateConflict    Class = "state_conflict"
	ClassEligibility      Class = "eligibility"
	ClassPriceMismatch    Class = "price_mismatch"
	ClassStock            Class = "stock"
	ClassInvalidToken     Class = "invalid_token"
	ClassAuditUnavailable Class = "audit_unavailable"
	ClassUnavailable      Class = "unavailable"
	ClassInternal         Class = "internal"
)

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Lookup errors
	CodeOrderNotFound     Code = "ORDER_NOT_FOUND"
	CodeOrderLineNotFound Code = "ORDER_LINE_NOT_FOUND"
	CodeCaseNotFound      Code = "CASE_NOT_FOUND"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeCustomerNotFound  Code = "CUSTOMER_NOT_FOUND"

	// Case lifecycle errors
	CodeCaseStateConflict          Code = "CASE_STATE_CONFLICT"
	CodeCaseWindowClosed           Code = "CASE_WINDOW_CLOSED"
	CodeCaseItemAlreadyProcessed   Code = "CASE_ITEM_ALREADY_PROCESSED"
	CodeCaseInspectionNotPassed    Code = "CASE_INSPECTION_NOT_PASSED"
	CodeOrderNotConfirmed          Code = "ORDER_NOT_CONFIRMED"
	CodeCasePriceMismatch          Code = "CASE_PRICE_MISMATCH"
	CodeCaseOutOfStock             Code = "CASE_OUT_OF_STOCK"
	CodeCaseReplacementMismatch    Code = "CASE_REPLACEMENT_PRODUCT_MISMATCH"
	CodeCaseTokenInvalid           Code = "CASE_TOKEN_INVALID"
	CodeCaseAuditUnavailable       Code = "CASE_AUDIT_UNAVAILABLE"
	CodeCaseCommitFailed           Code = "CASE_COMMIT_FAILED"
	CodeCaseLoyaltyAmountInvalid   Code = "CASE_LOYALTY_AMOUNT_INVALID"
	CodeCaseFallbackCodeNotMatched Code = "CASE_FALLBACK_CODE_NOT_MATCHED"
)

// Class maps a code to its failure class.
func (c Code) Class() Class {
	switch c {
	case CodeInvalidArgument,
		CodeUnauthenticated,
		CodeCaseReplacementMismatch,
		CodeCaseLoyaltyAmountInvalid:
		return ClassValidation

	case CodeOrderNotFound,
		CodeOrderLineNotFound,
		CodeCaseNotFound,
		CodeProductNotFound,
		CodeCustomerNotFound,
		CodeCaseFallbackCodeNotMatched:
		return ClassNotFound

	case CodeCaseStateConflict:
		return ClassStateConflict

	case CodeCaseWindowClosed,
		CodeCaseItemAlreadyProcessed,
		CodeCaseInspectionNotPassed,
		CodeOrderNotConfirmed:
		return ClassEligibility

	case CodeCasePriceMismatch:
		return ClassPriceMismatch

	case CodeCaseOutOfStock:
		return ClassStock

	case CodeCaseTokenInvalid:
		return ClassInvalidToken

	case CodeCaseAuditUnavailable:
		return ClassAuditUnavailable

	case CodeCaseCommitFailed:
		return ClassUnavailable

	default:
		return ClassInternal
	}
}

// HTTPStatus maps a code to the response status used by the case API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeCaseReplacementMismatch, CodeCaseLoyaltyAmountInvalid:
		return http.StatusUnprocessableEntity
	}
	switch c.Class() {
	case ClassValidation, ClassInvalidToken:
		return http.StatusBadRequest
	case ClassNotFound:
		return http.StatusNotFound
	case ClassStateConflict, ClassStock:
		return http.StatusConflict
	case ClassEligibility, ClassPriceMismatch:
		return http.StatusUnprocessableEntity
	case ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Codes lists every code the services emit, for catalog coverage checks.
func Codes() []Code {
	return []Code{
		CodeUnknown,
		CodeInvalidArgument,
		CodeUnauthenticated,
		CodeOrderNotFound,
		CodeOrderLineNotFound,
		CodeCaseNotFound,
		CodeProductNotFound,
		CodeCustomerNotFound,
		CodeCaseStateConflict,
		CodeCaseWindowClosed,
		CodeCaseItemAlreadyProcessed,
		CodeCaseInspectionNotPassed,
		CodeOrderNotConfirmed,
		CodeCasePriceMismatch,
		CodeCaseOutOfStock,
		CodeCaseReplacementMismatch,
		CodeCaseTokenInvalid,
		CodeCaseAuditUnavailable,
		CodeCaseCommitFailed,
		CodeCaseLoyaltyAmountInvalid,
		CodeCaseFallbackCodeNotMatched,
	}
}
