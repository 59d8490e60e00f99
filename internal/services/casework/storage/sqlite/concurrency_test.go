package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

func TestOpenAppliesConnectionPragmas(t *testing.T) {
	store := openTempStore(t)

	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}

	tests := []struct {
		pragma string
		want   int
	}{
		{pragma: "busy_timeout", want: 5000},
		{pragma: "synchronous", want: 1},
		{pragma: "foreign_keys", want: 1},
	}
	for _, tc := range tests {
		var got int
		if err := store.sqlDB.QueryRow("PRAGMA " + tc.pragma).Scan(&got); err != nil {
			t.Fatalf("read %s: %v", tc.pragma, err)
		}
		if got != tc.want {
			t.Fatalf("%s = %d, want %d", tc.pragma, got, tc.want)
		}
	}
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	tests := []struct {
		name    string
		cases   int
		workers int
	}{
		{name: "one case many workers", cases: 1, workers: 12},
		{name: "many cases few workers", cases: 40, workers: 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := openSeededStore(t)
			ctx := context.Background()
			cases := putBulkCases(t, store, tc.cases)

			type outcome struct {
				caseID string
				err    error
			}
			results := make(chan outcome, tc.cases*tc.workers)
			start := make(chan struct{})
			var wg sync.WaitGroup
			for _, c := range cases {
				for worker := 0; worker < tc.workers; worker++ {
					validated := c
					validated.Status = domain.StatusValidated
					validated.CashierID = fmt.Sprintf("cashier-%d", worker)
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						_, err := store.TransitionCase(ctx, domain.Transition{Case: validated, From: []domain.Status{domain.StatusPending}})
						results <- outcome{caseID: validated.ID, err: err}
					}()
				}
			}
			close(start)
			wg.Wait()
			close(results)

			wins := map[string]int{}
			for result := range results {
				switch {
				case result.err == nil:
					wins[result.caseID]++
				case errors.Is(result.err, domain.ErrStaleStatus):
				default:
					t.Errorf("case %s: unexpected error %v", result.caseID, result.err)
				}
			}
			for _, c := range cases {
				if wins[c.ID] != 1 {
					t.Fatalf("case %s had %d winners, want 1", c.ID, wins[c.ID])
				}
				stored, err := store.GetCase(ctx, domain.KindExchange, c.ID)
				if err != nil {
					t.Fatalf("get case %s: %v", c.ID, err)
				}
				if stored.Status != domain.StatusValidated {
					t.Fatalf("case %s status = %s, want VALIDATED", c.ID, stored.Status)
				}
			}
		})
	}
}

func TestConcurrentCompletionAppliesOnce(t *testing.T) {
	store := openSeededStore(t)
	ctx := context.Background()

	c := validatedReturn(t, store)
	completed := c
	completed.Status = domain.StatusCompleted
	completed.FulfillmentType = domain.FulfillmentLoyaltyConversion
	completed.LoyaltyPointsAwarded = decimal.RequireFromString("100.00")
	completedAt := testNow.Add(time.Hour)
	completed.CompletedAt = &completedAt
	completion := domain.Completion{
		Transition:   domain.Transition{Case: completed, From: []domain.Status{domain.StatusInspected}},
		OrderID:      "order-1",
		LineID:       "line-1",
		LineStatus:   domain.LineReturned,
		Fulfillment:  domain.LineFulfillment{CaseID: c.ID, FulfillmentType: string(domain.FulfillmentLoyaltyConversion), CompletedAt: &completedAt},
		StockChanges: []domain.StockChange{{ProductID: "prod-shirt", Delta: 1}},
		Loyalty: &domain.LoyaltyCredit{
			CustomerID: "cust-1",
			Entry:      domain.LoyaltyEntry{Event: domain.LoyaltyEventEarn, Points: decimal.RequireFromString("100.00"), Date: completedAt},
		},
	}

	const workers = 8
	errs := make(chan error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.CompleteCase(ctx, completion)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrLineStatusChanged), errors.Is(err, domain.ErrStaleStatus):
		default:
			t.Errorf("unexpected completion error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("completions = %d, want 1", wins)
	}

	product, err := store.GetProduct(ctx, "prod-shirt")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 5 {
		t.Fatalf("stock = %d, want 5", product.StockQuantity)
	}
	points, err := store.GetLoyaltyPoints(ctx, "cust-1")
	if err != nil {
		t.Fatalf("get loyalty points: %v", err)
	}
	if !points.Equal(decimal.RequireFromString("110.50")) {
		t.Fatalf("points = %s, want 110.50", points)
	}
	history, err := store.ListLoyaltyHistory(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list loyalty history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
}

func TestCompleteCaseUnknownCustomerRollsBack(t *testing.T) {
	store := openSeededStore(t)
	ctx := context.Background()

	c := validatedReturn(t, store)
	completed := c
	completed.Status = domain.StatusCompleted
	_, err := store.CompleteCase(ctx, domain.Completion{
		Transition:   domain.Transition{Case: completed, From: []domain.Status{domain.StatusInspected}},
		OrderID:      "order-1",
		LineID:       "line-1",
		LineStatus:   domain.LineReturned,
		StockChanges: []domain.StockChange{{ProductID: "prod-shirt", Delta: 1}},
		Loyalty: &domain.LoyaltyCredit{
			CustomerID: "cust-ghost",
			Entry:      domain.LoyaltyEntry{Event: domain.LoyaltyEventEarn, Points: decimal.NewFromInt(5), Date: testNow},
		},
	})
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected customer not found, got %v", err)
	}

	order, err := store.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Lines[0].Status != domain.LinePurchased {
		t.Fatalf("expected line to stay purchased, got %s", order.Lines[0].Status)
	}
	product, err := store.GetProduct(ctx, "prod-shirt")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 4 {
		t.Fatalf("stock = %d, want 4", product.StockQuantity)
	}
}

func TestPutCaseAllowsOneOpenCasePerLine(t *testing.T) {
	store := openSeededStore(t)
	ctx := context.Background()
	cases := putBulkCases(t, store, 2)

	duplicate := cases[0]
	duplicate.ID = "bulk-case-dup"
	if err := store.PutCase(ctx, duplicate); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on the same line, got %v", err)
	}

	found, err := store.FindOpenCase(ctx, domain.KindExchange, "order-bulk", cases[1].LineID, openStatuses)
	if err != nil {
		t.Fatalf("find open case: %v", err)
	}
	if found.ID != cases[1].ID {
		t.Fatalf("found %s, want %s", found.ID, cases[1].ID)
	}
}

// putBulkCases stores an order with n lines of the same product and one
// PENDING exchange per line.
func putBulkCases(t *testing.T, store *Store, n int) []domain.Case {
	t.Helper()
	ctx := context.Background()

	confirmedAt := testNow.Add(-24 * time.Hour)
	order := domain.Order{
		ID: "order-bulk", CustomerID: "cust-1", CheckoutCode: "CHK-BULK",
		Status: domain.OrderConfirmed, ConfirmedAt: &confirmedAt, CreatedAt: confirmedAt,
	}
	for i := 0; i < n; i++ {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID: fmt.Sprintf("bulk-line-%d", i), ProductID: "prod-shirt", Name: "Shirt",
			Quantity: 1, UnitPrice: decimal.RequireFromString("100.00"),
		})
	}
	if err := store.PutOrder(ctx, order); err != nil {
		t.Fatalf("put order: %v", err)
	}

	cases := make([]domain.Case, 0, n)
	for i, line := range order.Lines {
		c := pendingCase(fmt.Sprintf("bulk-case-%d", i))
		c.OrderID = order.ID
		c.LineID = line.ID
		if err := store.PutCase(ctx, c); err != nil {
			t.Fatalf("put case %s: %v", c.ID, err)
		}
		cases = append(cases, c)
	}
	return cases
}
