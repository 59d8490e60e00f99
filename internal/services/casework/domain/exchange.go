package domain

import (
	"context"

	"github.com/louisbranch/counterdesk/internal/platform/money"
)

// InitiateExchange opens an exchange for a purchased item, or returns the
// open one already held for the same order and item.
func (s *Service) InitiateExchange(ctx context.Context, cmd InitiateExchangeCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.exchange, "initiate")
	defer func() { endSpan(span, view.Case.ID, err) }()

	return s.initiate(ctx, s.exchange, cmd.OrderID, cmd.ItemID, cmd.CustomerID, nil)
}

// ValidateExchange is the cashier scan of a customer's exchange token.
func (s *Service) ValidateExchange(ctx context.Context, cmd ValidateExchangeCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.exchange, "validate")
	defer func() { endSpan(span, view.Case.ID, err) }()

	c, err := s.caseFromToken(ctx, s.exchange, cmd.Token)
	if err != nil {
		return CaseView{}, err
	}
	return s.validate(ctx, s.exchange, c, cmd.CashierID)
}

// ValidateReplacement checks a scanned replacement against a validated
// exchange without changing anything.
func (s *Service) ValidateReplacement(ctx context.Context, cmd ValidateReplacementCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.exchange, "validate_replacement")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, err := s.loadCase(ctx, s.exchange, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}
	if c.Status != StatusValidated {
		return CaseView{}, stateConflict(s.exchange, "scan a replacement for", c.Status)
	}
	replacement, err := s.checkReplacement(ctx, c, cmd.Barcode)
	if err != nil {
		return CaseView{}, err
	}
	out := s.view(c, nil, nil)
	out.Product = &replacement
	return out, nil
}

// VerifyReplacementPrice previews a replacement for the case's customer. A
// price mismatch is reported in the result rather than as an error.
func (s *Service) VerifyReplacementPrice(ctx context.Context, cmd VerifyReplacementPriceCommand) (PriceCheck, error) {
	if err := s.ready(); err != nil {
		return PriceCheck{}, err
	}
	if err := cmd.Validate(); err != nil {
		return PriceCheck{}, err
	}
	c, err := s.loadOwnedCase(ctx, s.exchange, cmd.CaseID, cmd.CustomerID)
	if err != nil {
		return PriceCheck{}, err
	}
	if c.Status.IsTerminal() {
		return PriceCheck{}, stateConflict(s.exchange, "check a replacement for", c.Status)
	}
	replacement, err := s.loadReplacement(ctx, cmd.Barcode)
	if err != nil {
		return PriceCheck{}, err
	}
	return PriceCheck{
		CaseID:           c.ID,
		OriginalPrice:    c.OriginalPrice,
		ReplacementPrice: replacement.EffectivePrice(),
		OnSale:           replacement.OnSale(),
		PriceMatch:       money.Same(replacement.EffectivePrice(), c.OriginalPrice),
		InStock:          replacement.StockQuantity >= 1,
		Product:          replacement,
	}, nil
}

// CompleteExchange swaps the original item for the scanned replacement in
// one transaction.
func (s *Service) CompleteExchange(ctx context.Context, cmd CompleteExchangeCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.exchange, "complete")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, err := s.loadCase(ctx, s.exchange, cmd.CaseID)
	if err != nil {
		return CaseView{}, err
	}
	if !s.exchange.Allows(c.Status, StatusCompleted) {
		return CaseView{}, stateConflict(s.exchange, "complete", c.Status)
	}
	replacement, err := s.checkReplacement(ctx, c, cmd.Barcode)
	if err != nil {
		return CaseView{}, err
	}
	order, line, err := s.loadLine(ctx, c)
	if err != nil {
		return CaseView{}, err
	}
	if line.Status != LinePurchased {
		return CaseView{}, itemAlreadyProcessed(line.Status)
	}

	now := s.nowUTC()
	next := c
	next.ReplacementItemID = replacement.ID
	next.ReplacementItemName = replacement.Name
	next.CompletedAt = timePtr(now)
	if next.CashierID == "" {
		next.CashierID = cmd.CashierID
	}
	updated, err := s.complete(ctx, s.exchange, c, Completion{
		Transition: Transition{Case: next},
		OrderID:    order.ID,
		LineID:     line.ID,
		LineStatus: LineExchanged,
		Fulfillment: LineFulfillment{
			CaseID:              c.ID,
			ReplacementItemID:   replacement.ID,
			ReplacementItemName: replacement.Name,
			ValidatedAt:         c.ValidatedAt,
			CompletedAt:         timePtr(now),
		},
		StockChanges: []StockChange{
			{ProductID: c.OriginalItemID, Delta: 1},
			{ProductID: replacement.ID, Delta: -1},
		},
	}, replacement)
	if err != nil {
		return CaseView{}, err
	}

	s.publish(ctx, s.exchange, updated, "completed", map[string]any{
		"replacementItemId":   replacement.ID,
		"replacementItemName": replacement.Name,
		"completedAt":         now,
	})
	line.Status = LineExchanged
	out := s.view(updated, &order, &line)
	out.Product = &replacement
	return out, nil
}

// CancelExchange withdraws an open exchange on behalf of its customer.
func (s *Service) CancelExchange(ctx context.Context, cmd CancelExchangeCommand) (view CaseView, err error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	if err := cmd.Validate(); err != nil {
		return CaseView{}, err
	}
	ctx, span := s.startSpan(ctx, s.exchange, "cancel")
	defer func() { endSpan(span, cmd.CaseID, err) }()

	c, err := s.loadOwnedCase(ctx, s.exchange, cmd.CaseID, cmd.CustomerID)
	if err != nil {
		return CaseView{}, err
	}
	return s.cancel(ctx, s.exchange, c)
}

// checkReplacement resolves a barcode and applies the price and stock rules.
func (s *Service) checkReplacement(ctx context.Context, c Case, barcode string) (Product, error) {
	replacement, err := s.loadReplacement(ctx, barcode)
	if err != nil {
		return Product{}, err
	}
	if !money.Same(replacement.EffectivePrice(), c.OriginalPrice) {
		return Product{}, priceMismatch(c, replacement)
	}
	if replacement.StockQuantity < 1 {
		return Product{}, outOfStock(replacement)
	}
	return replacement, nil
}

func (s *Service) cancel(ctx context.Context, p Policy, c Case) (CaseView, error) {
	now := s.nowUTC()
	updated, err := s.transition(ctx, p, c, StatusCancelled, "cancel", func(next *Case) {
		next.CancelledAt = timePtr(now)
	})
	if err != nil {
		return CaseView{}, err
	}
	s.publish(ctx, p, updated, "cancelled", map[string]any{"cancelledAt": now})
	return s.view(updated, nil, nil), nil
}
