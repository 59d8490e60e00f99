package api

import (
	"context"
	"sync"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// fakeService records the last command and answers with canned results.
type fakeService struct {
	mu      sync.Mutex
	last    any
	view    domain.CaseView
	check   domain.PriceCheck
	cases   []domain.Case
	err     error
	lastKey string
}

func (f *fakeService) record(key string, cmd any) (domain.CaseView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = cmd
	f.lastKey = key
	return f.view, f.err
}

func (f *fakeService) lastCommand() (string, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey, f.last
}

func (f *fakeService) InitiateExchange(_ context.Context, cmd domain.InitiateExchangeCommand) (domain.CaseView, error) {
	return f.record("InitiateExchange", cmd)
}

func (f *fakeService) ValidateExchange(_ context.Context, cmd domain.ValidateExchangeCommand) (domain.CaseView, error) {
	return f.record("ValidateExchange", cmd)
}

func (f *fakeService) ValidateReplacement(_ context.Context, cmd domain.ValidateReplacementCommand) (domain.CaseView, error) {
	return f.record("ValidateReplacement", cmd)
}

func (f *fakeService) VerifyReplacementPrice(_ context.Context, cmd domain.VerifyReplacementPriceCommand) (domain.PriceCheck, error) {
	_, err := f.record("VerifyReplacementPrice", cmd)
	return f.check, err
}

func (f *fakeService) CompleteExchange(_ context.Context, cmd domain.CompleteExchangeCommand) (domain.CaseView, error) {
	return f.record("CompleteExchange", cmd)
}

func (f *fakeService) CancelExchange(_ context.Context, cmd domain.CancelExchangeCommand) (domain.CaseView, error) {
	return f.record("CancelExchange", cmd)
}

func (f *fakeService) InitiateReturn(_ context.Context, cmd domain.InitiateReturnCommand) (domain.CaseView, error) {
	return f.record("InitiateReturn", cmd)
}

func (f *fakeService) ValidateReturn(_ context.Context, cmd domain.ValidateReturnCommand) (domain.CaseView, error) {
	return f.record("ValidateReturn", cmd)
}

func (f *fakeService) InspectReturn(_ context.Context, cmd domain.InspectReturnCommand) (domain.CaseView, error) {
	return f.record("InspectReturn", cmd)
}

func (f *fakeService) CompleteReturnLoyalty(_ context.Context, cmd domain.CompleteReturnLoyaltyCommand) (domain.CaseView, error) {
	return f.record("CompleteReturnLoyalty", cmd)
}

func (f *fakeService) CompleteReturnSwap(_ context.Context, cmd domain.CompleteReturnSwapCommand) (domain.CaseView, error) {
	return f.record("CompleteReturnSwap", cmd)
}

func (f *fakeService) RejectReturn(_ context.Context, cmd domain.RejectReturnCommand) (domain.CaseView, error) {
	return f.record("RejectReturn", cmd)
}

func (f *fakeService) CancelReturn(_ context.Context, cmd domain.CancelReturnCommand) (domain.CaseView, error) {
	return f.record("CancelReturn", cmd)
}

type statusQuery struct {
	Kind       domain.Kind
	CaseID     string
	CustomerID string
}

func (f *fakeService) GetStatus(_ context.Context, kind domain.Kind, caseID string, customerID string) (domain.CaseView, error) {
	return f.record("GetStatus", statusQuery{Kind: kind, CaseID: caseID, CustomerID: customerID})
}

func (f *fakeService) ListMine(_ context.Context, kind domain.Kind, customerID string) ([]domain.Case, error) {
	_, err := f.record("ListMine", statusQuery{Kind: kind, CustomerID: customerID})
	return f.cases, err
}
