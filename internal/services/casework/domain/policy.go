package domain

import "slices"

const (
	// DefaultExchangeWindowDays is how long after purchase an exchange may start.
	DefaultExchangeWindowDays = 7
	// DefaultReturnWindowDays is how long after purchase a return may start.
	DefaultReturnWindowDays = 14
)

// SwapRule decides which scanned products may replace a returned item.
type SwapRule string

// SwapSameProduct only accepts the same product id as the original item.
const SwapSameProduct SwapRule = "same_product"

// Permits reports whether replacementID is an acceptable swap for originalID.
func (r SwapRule) Permits(originalID, replacementID string) bool {
	switch r {
	case SwapSameProduct, "":
		return originalID != "" && originalID == replacementID
	default:
		return false
	}
}

// Policy parameterizes the case engine for one kind of case.
type Policy struct {
	Kind         Kind
	WindowDays   int
	Open         []Status
	Transitions  map[Status][]Status
	Fulfillments []FulfillmentType
	SwapRule     SwapRule

	// Noun and Verb feed caller-facing messages ("Exchange", "exchanged").
	Noun string
	Verb string
}

// ExchangePolicy returns the exchange lifecycle with the given window.
func ExchangePolicy(windowDays int) Policy {
	if windowDays <= 0 {
		windowDays = DefaultExchangeWindowDays
	}
	return Policy{
		Kind:       KindExchange,
		WindowDays: windowDays,
		Open:       []Status{StatusPending, StatusValidated},
		Transitions: map[Status][]Status{
			StatusPending:   {StatusValidated, StatusCancelled, StatusExpired},
			StatusValidated: {StatusCompleted, StatusCancelled, StatusExpired},
		},
		Noun: "Exchange",
		Verb: "exchanged",
	}
}

// ReturnPolicy returns the return lifecycle with the given window.
func ReturnPolicy(windowDays int) Policy {
	if windowDays <= 0 {
		windowDays = DefaultReturnWindowDays
	}
	return Policy{
		Kind:       KindReturn,
		WindowDays: windowDays,
		Open:       []Status{StatusPending, StatusValidated, StatusInspected},
		Transitions: map[Status][]Status{
			StatusPending:   {StatusValidated, StatusCancelled},
			StatusValidated: {StatusInspected, StatusRejected, StatusCancelled},
			StatusInspected: {StatusCompleted, StatusRejected, StatusCancelled},
		},
		Fulfillments: []FulfillmentType{FulfillmentLoyaltyConversion, FulfillmentItemSwap},
		SwapRule:     SwapSameProduct,
		Noun:         "Return",
		Verb:         "returned",
	}
}

// IsOpen reports whether status belongs to the policy's open set.
func (p Policy) IsOpen(status Status) bool {
	return slices.Contains(p.Open, status)
}

// Allows reports whether the lifecycle has an edge from -> to.
func (p Policy) Allows(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	return slices.Contains(p.Transitions[from], to)
}

// Supports reports whether the policy resolves cases with fulfillment.
func (p Policy) Supports(fulfillment FulfillmentType) bool {
	return slices.Contains(p.Fulfillments, fulfillment)
}

// Event returns the broadcast event name, e.g. "exchange:validated".
func (p Policy) Event(name string) string {
	return string(p.Kind) + ":" + name
}

// MessageKey returns the events catalog key for a broadcast event.
func (p Policy) MessageKey(name string) string {
	return "event." + string(p.Kind) + "." + name
}
