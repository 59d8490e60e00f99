package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

const (
	defaultInspectionFailure = "Item does not meet return conditions"
	defaultRejectionReason   = "Return rejected by cashier"
)

// InitiateReturn opens a return for a purchased item, or returns the open
// one already held for the same order and item.
func (s *Service) InitiateReturn(ctx context.Context, cmd InitiateReturnCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "initiate")
	defer func() { endSpan(span, view.Case.ID, err) }()

	reason, _ := ParseReturnReason(cmd.Reason)
	return s.initiate(ctx, s.returns, cmd.OrderID, cmd.ItemID, cmd.CustomerID, func(c *Case) {
		c.ReturnReason = reason
		c.ReturnReasonNotes = strings.TrimSpace(cmd.Notes)
		c.InspectionStatus = InspectionPending
	})
}

// ValidateReturn locates a return by its token or by the order's checkout
// code and moves it to VALIDATED.
func (s *Service) ValidateReturn(ctx context.Context, cmd ValidateReturnCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "validate")
	defer func() { endSpan(span, view.Case.ID, err) }()

	var c Case
	if strings.TrimSpace(cmd.Token) != "" {
		c, err = s.caseFromToken(ctx, s.returns, cmd.Token)
	} else {
		c, err = s.caseFromCheckoutCode(ctx, cmd.CheckoutCode)
	}
	if err != nil {
		return CaseView{}, err
	}
	return s.validate(ctx, s.returns, c, cmd.CashierID)
}

// caseFromCheckoutCode picks the first PENDING or VALIDATED return on the
// order. It cannot tell items apart, so every use is logged.
func (s *Service) caseFromCheckoutCode(ctx context.Context, checkoutCode string) (Case, error) {
	checkoutCode = strings.TrimSpace(checkoutCode)
	order, err := s.store.GetOrderByCheckoutCode(ctx, checkoutCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Case{}, fallbackCodeNotMatched(checkoutCode)
		}
		return Case{}, err
	}
	c, err := s.store.FindOpenCaseByOrder(ctx, KindReturn, order.ID, []Status{StatusPending, StatusValidated})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Case{}, fallbackCodeNotMatched(checkoutCode)
		}
		return Case{}, err
	}
	log.Printf("casework: return located by checkout code fallback order_id=%s case_id=%s", order.ID, c.ID)
	return c, nil
}

// InspectReturn records the inspection verdict on a validated return.
func (s *Service) InspectReturn(ctx context.Context, cmd InspectReturnCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "inspect")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, err := s.loadCase(ctx, s.returns, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}
	if c.Status != StatusValidated {
		return CaseView{}, stateConflict(s.returns, "inspect", c.Status)
	}

	now := s.nowUTC()
	notes := strings.TrimSpace(cmd.Notes)
	to := StatusInspected
	if cmd.Result == InspectionRejected {
		to = StatusRejected
	}
	updated, err := s.transition(ctx, s.returns, c, to, "inspect", func(next *Case) {
		next.InspectionStatus = cmd.Result
		next.InspectionNotes = notes
		next.InspectedAt = timePtr(now)
		if next.CashierID == "" {
			next.CashierID = strings.TrimSpace(cmd.CashierID)
		}
	})
	if err != nil {
		return CaseView{}, err
	}

	if cmd.Result == InspectionRejected {
		reason := notes
		if reason == "" {
			reason = defaultInspectionFailure
		}
		s.publish(ctx, s.returns, updated, "inspection-failed", map[string]any{
			"inspectionStatus": InspectionRejected,
			"reason":           reason,
		})
	} else {
		s.publish(ctx, s.returns, updated, "inspection-passed", map[string]any{
			"inspectionStatus": InspectionPassed,
			"notes":            notes,
		})
	}
	return s.view(updated, nil, nil), nil
}

// CompleteReturnLoyalty resolves a passed return by crediting loyalty points.
func (s *Service) CompleteReturnLoyalty(ctx context.Context, cmd CompleteReturnLoyaltyCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "complete_loyalty")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, order, line, err := s.loadPassedReturn(ctx, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}

	now := s.nowUTC()
	next := c
	next.FulfillmentType = FulfillmentLoyaltyConversion
	next.LoyaltyPointsAwarded = cmd.LoyaltyAmount
	next.CompletedAt = timePtr(now)
	if next.CashierID == "" {
		next.CashierID = strings.TrimSpace(cmd.CashierID)
	}
	updated, err := s.complete(ctx, s.returns, c, Completion{
		Transition:   Transition{Case: next},
		OrderID:      order.ID,
		LineID:       line.ID,
		LineStatus:   LineReturned,
		Fulfillment:  returnFulfillment(c, FulfillmentLoyaltyConversion, Product{}, now),
		StockChanges: []StockChange{{ProductID: c.OriginalItemID, Delta: 1}},
		Loyalty: &LoyaltyCredit{
			CustomerID: c.CustomerID,
			Entry:      LoyaltyEntry{Event: LoyaltyEventEarn, Points: cmd.LoyaltyAmount, Date: now},
		},
	}, Product{})
	if err != nil {
		return CaseView{}, err
	}

	s.publish(ctx, s.returns, updated, "completed", map[string]any{
		"fulfillmentType":      FulfillmentLoyaltyConversion,
		"loyaltyPointsAwarded": cmd.LoyaltyAmount,
		"completedAt":          now,
	})
	line.Status = LineReturned
	return s.view(updated, &order, &line), nil
}

// CompleteReturnSwap resolves a passed return by handing over the same
// product from stock.
func (s *Service) CompleteReturnSwap(ctx context.Context, cmd CompleteReturnSwapCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "complete_swap")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, order, line, err := s.loadPassedReturn(ctx, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}
	replacement, err := s.loadReplacement(ctx, cmd.Barcode)
	if err != nil {
		return CaseView{}, err
	}
	if !s.returns.SwapRule.Permits(c.OriginalItemID, replacement.ID) {
		return CaseView{}, replacementMismatch()
	}
	if replacement.StockQuantity < 1 {
		return CaseView{}, outOfStock(replacement)
	}

	now := s.nowUTC()
	next := c
	next.FulfillmentType = FulfillmentItemSwap
	next.ReplacementItemID = replacement.ID
	next.ReplacementItemName = replacement.Name
	next.CompletedAt = timePtr(now)
	if next.CashierID == "" {
		next.CashierID = strings.TrimSpace(cmd.CashierID)
	}
	// Restock and destock stay separate so each movement is visible even
	// though the net change is zero.
	updated, err := s.complete(ctx, s.returns, c, Completion{
		Transition:  Transition{Case: next},
		OrderID:     order.ID,
		LineID:      line.ID,
		LineStatus:  LineReturned,
		Fulfillment: returnFulfillment(c, FulfillmentItemSwap, replacement, now),
		StockChanges: []StockChange{
			{ProductID: c.OriginalItemID, Delta: 1},
			{ProductID: replacement.ID, Delta: -1},
		},
	}, replacement)
	if err != nil {
		return CaseView{}, err
	}

	s.publish(ctx, s.returns, updated, "completed", map[string]any{
		"fulfillmentType":     FulfillmentItemSwap,
		"replacementItemId":   replacement.ID,
		"replacementItemName": replacement.Name,
		"completedAt":         now,
	})
	line.Status = LineReturned
	out := s.view(updated, &order, &line)
	out.Product = &replacement
	return out, nil
}

// RejectReturn refuses a validated or inspected return.
func (s *Service) RejectReturn(ctx context.Context, cmd RejectReturnCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "reject")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, err := s.loadCase(ctx, s.returns, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultRejectionReason
	}
	now := s.nowUTC()
	updated, err := s.transition(ctx, s.returns, c, StatusRejected, "reject", func(next *Case) {
		next.InspectionStatus = InspectionRejected
		next.InspectionNotes = reason
		if next.InspectedAt == nil {
			next.InspectedAt = timePtr(now)
		}
		if next.CashierID == "" {
			next.CashierID = strings.TrimSpace(cmd.CashierID)
		}
	})
	if err != nil {
		return CaseView{}, err
	}
	s.publish(ctx, s.returns, updated, "rejected", map[string]any{"reason": reason})
	return s.view(updated, nil, nil), nil
}

// CancelReturn withdraws an open return. Customer cancels are limited to
// the customer's own cases.
func (s *Service) CancelReturn(ctx context.Context, cmd CancelReturnCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.returns, "cancel")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	var c Case
	if strings.TrimSpace(cmd.CustomerID) != "" {
		c, err = s.loadOwnedCase(ctx, s.returns, cmd.CaseID, cmd.CustomerID)
	} else {
		c, err = s.loadCase(ctx, s.returns, cmd.CaseID)
	}
	if err != nil {
		return CaseView{}, err
	}
	return s.cancel(ctx, s.returns, c)
}

// loadPassedReturn loads an inspected return whose item passed inspection,
// with its still-purchased order line.
func (s *Service) loadPassedReturn(ctx context.Context, caseID string) (Case, Order, OrderLine, error) {
	c, err := s.loadCase(ctx, s.returns, caseID)
	if err != nil {
		return Case{}, Order{}, OrderLine{}, err
	}
	if c.Status != StatusInspected {
		return Case{}, Order{}, OrderLine{}, stateConflict(s.returns, "complete", c.Status)
	}
	if c.InspectionStatus != InspectionPassed {
		return Case{}, Order{}, OrderLine{}, inspectionNotPassed()
	}
	order, line, err := s.loadLine(ctx, c)
	if err != nil {
		return Case{}, Order{}, OrderLine{}, err
	}
	if line.Status != LinePurchased {
		return Case{}, Order{}, OrderLine{}, itemAlreadyProcessed(line.Status)
	}
	return c, order, line, nil
}

func returnFulfillment(c Case, fulfillment FulfillmentType, replacement Product, completedAt time.Time) LineFulfillment {
	return LineFulfillment{
		CaseID:              c.ID,
		ReplacementItemID:   replacement.ID,
		ReplacementItemName: replacement.Name,
		ReturnReason:        string(c.ReturnReason),
		InspectionStatus:    string(InspectionPassed),
		FulfillmentType:     string(fulfillment),
		ValidatedAt:         c.ValidatedAt,
		CompletedAt:         timePtr(completedAt),
	}
}
