package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCheck is the customer-facing replacement preview.
type PriceCheck struct {
	CaseID           string          `json:"caseId"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	ReplacementPrice decimal.Decimal `json:"replacementPrice"`
	OnSale           bool            `json:"onSale"`
	PriceMatch       bool            `json:"priceMatch"`
	InStock          bool            `json:"inStock"`
	Product          Product         `json:"product"`
}

// ExpireResult lists the cases an expiry pass touched.
type ExpireResult struct {
	Cutoff  time.Time `json:"cutoff"`
	DryRun  bool      `json:"dryRun"`
	Expired []string  `json:"expired"`
	Skipped []string  `json:"skipped"`
}

// GetStatus returns one of the customer's cases with its order context.
func (s *Service) GetStatus(ctx context.Context, kind Kind, caseID string, customerID string) (CaseView, error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	p, err := s.Policy(kind)
	if err != nil {
		return CaseView{}, err
	}
	if err := requireFields(field{"caseId", caseID}, field{"customerId", customerID}); err != nil {
		return CaseView{}, err
	}
	c, err := s.loadOwnedCase(ctx, p, caseID, customerID)
	if err != nil {
		return CaseView{}, err
	}
	order, line, err := s.loadLine(ctx, c)
	if err != nil {
		return s.view(c, nil, nil), nil
	}
	return s.view(c, &order, &line), nil
}

// ListMine lists a customer's cases of one kind, newest first.
func (s *Service) ListMine(ctx context.Context, kind Kind, customerID string) ([]Case, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.Policy(kind); err != nil {
		return nil, err
	}
	if err := requireFields(field{"customerId", customerID}); err != nil {
		return nil, err
	}
	return s.store.ListCasesByCustomer(ctx, kind, strings.TrimSpace(customerID))
}

// Snapshot returns the current state of a case for realtime subscribers.
func (s *Service) Snapshot(ctx context.Context, kind Kind, caseID string) (CaseView, error) {
	if err := s.ready(); err != nil {
		return CaseView{}, err
	}
	p, err := s.Policy(kind)
	if err != nil {
		return CaseView{}, err
	}
	c, err := s.loadCase(ctx, p, caseID)
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c, nil, nil), nil
}

// ExpireStale marks open exchanges initiated more than OlderThan ago as
// EXPIRED. Cases that move concurrently are skipped.
func (s *Service) ExpireStale(ctx context.Context, cmd ExpireStaleCommand) (ExpireResult, error) {
	if err := s.ready(); err != nil {
		return ExpireResult{}, err
	}
	if err := cmd.Validate(); err != nil {
		return ExpireResult{}, err
	}
	p, err := s.Policy(cmd.Kind)
	if err != nil {
		return ExpireResult{}, err
	}
	ctx, span := s.startSpan(ctx, p, "expire")
	defer func() { endSpan(span, "", err) }()

	now := s.nowUTC()
	result := ExpireResult{Cutoff: now.Add(-cmd.OlderThan), DryRun: cmd.DryRun}
	stale, err := s.store.ListStaleOpenCases(ctx, p.Kind, p.Open, result.Cutoff)
	if err != nil {
		return ExpireResult{}, err
	}
	for _, c := range stale {
		if cmd.DryRun {
			result.Expired = append(result.Expired, c.ID)
			continue
		}
		updated, transitionErr := s.transition(ctx, p, c, StatusExpired, "expire", nil)
		if transitionErr != nil {
			if isStateConflict(transitionErr) {
				result.Skipped = append(result.Skipped, c.ID)
				continue
			}
			err = transitionErr
			return result, err
		}
		s.publish(ctx, p, updated, "expired", nil)
		result.Expired = append(result.Expired, c.ID)
	}
	return result, nil
}
