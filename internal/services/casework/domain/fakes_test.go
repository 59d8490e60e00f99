package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]Order
	products map[string]Product
	cases    map[string]Case
	loyalty  map[string]decimal.Decimal
	history  map[string][]LoyaltyEntry

	putErr      error
	completeErr error
	auditRefs   map[string]AuditReference
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    map[string]Order{},
		products:  map[string]Product{},
		cases:     map[string]Case{},
		loyalty:   map[string]decimal.Decimal{},
		history:   map[string][]LoyaltyEntry{},
		auditRefs: map[string]AuditReference{},
	}
}

func (s *fakeStore) addOrder(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

func (s *fakeStore) addProduct(product Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

func (s *fakeStore) product(productID string) Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID]
}

func (s *fakeStore) order(orderID string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID]
}

func (s *fakeStore) storedCase(caseID string) Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[caseID]
}

func (s *fakeStore) caseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cases)
}

func (s *fakeStore) points(customerID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loyalty[customerID]
}

func (s *fakeStore) GetOrder(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	order.Lines = slices.Clone(order.Lines)
	return order, nil
}

func (s *fakeStore) GetOrderByCheckoutCode(_ context.Context, checkoutCode string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.CheckoutCode == checkoutCode {
			order.Lines = slices.Clone(order.Lines)
			return order, nil
		}
	}
	return Order{}, ErrNotFound
}

func (s *fakeStore) GetProductByBarcode(_ context.Context, barcode string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, product := range s.products {
		if product.Barcode == barcode && product.DeletedAt == nil {
			return product, nil
		}
	}
	return Product{}, ErrNotFound
}

func (s *fakeStore) GetCase(_ context.Context, kind Kind, caseID string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok || c.Kind != kind {
		return Case{}, ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) FindOpenCase(_ context.Context, kind Kind, orderID string, lineID string, open []Status) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedCases() {
		if c.Kind == kind && c.OrderID == orderID && c.LineID == lineID && slices.Contains(open, c.Status) {
			return c, nil
		}
	}
	return Case{}, ErrNotFound
}

func (s *fakeStore) FindOpenCaseByOrder(_ context.Context, kind Kind, orderID string, open []Status) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedCases() {
		if c.Kind == kind && c.OrderID == orderID && slices.Contains(open, c.Status) {
			return c, nil
		}
	}
	return Case{}, ErrNotFound
}

func (s *fakeStore) ListCasesByCustomer(_ context.Context, kind Kind, customerID string) ([]Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Case
	for _, c := range s.sortedCases() {
		if c.Kind == kind && c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *fakeStore) ListStaleOpenCases(_ context.Context, kind Kind, open []Status, initiatedBefore time.Time) ([]Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Case
	for _, c := range s.sortedCases() {
		if c.Kind == kind && slices.Contains(open, c.Status) && c.InitiatedAt.Before(initiatedBefore) {
			out = append(out, c)
		}
	}
	return out, nil
}

// sortedCases orders by initiation time then id; callers hold mu.
func (s *fakeStore) sortedCases() []Case {
	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InitiatedAt.Equal(out[j].InitiatedAt) {
			return out[i].InitiatedAt.Before(out[j].InitiatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *fakeStore) PutCase(_ context.Context, c Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if _, exists := s.cases[c.ID]; exists {
		return ErrConflict
	}
	s.cases[c.ID] = c
	return nil
}

func (s *fakeStore) TransitionCase(_ context.Context, t Transition) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.cases[t.Case.ID]
	if !ok {
		return Case{}, ErrNotFound
	}
	if !slices.Contains(t.From, current.Status) {
		return Case{}, ErrStaleStatus
	}
	s.cases[t.Case.ID] = t.Case
	return t.Case, nil
}

// CompleteCase stages every write and commits only when all succeed.
func (s *fakeStore) CompleteCase(_ context.Context, c Completion) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return Case{}, s.completeErr
	}

	order, ok := s.orders[c.OrderID]
	if !ok {
		return Case{}, ErrNotFound
	}
	order.Lines = slices.Clone(order.Lines)
	lineIdx := slices.IndexFunc(order.Lines, func(line OrderLine) bool { return line.ID == c.LineID })
	if lineIdx < 0 {
		return Case{}, ErrNotFound
	}
	if order.Lines[lineIdx].Status != LinePurchased {
		return Case{}, ErrLineStatusChanged
	}
	order.Lines[lineIdx].Status = c.LineStatus
	order.Lines[lineIdx].Fulfillment = c.Fulfillment

	products := map[string]Product{}
	for _, change := range c.StockChanges {
		product, ok := products[change.ProductID]
		if !ok {
			product, ok = s.products[change.ProductID]
			if !ok {
				return Case{}, fmt.Errorf("stock change %s: %w", change.ProductID, ErrNotFound)
			}
		}
		if product.StockQuantity+change.Delta < 0 {
			return Case{}, ErrInsufficientStock
		}
		product.StockQuantity += change.Delta
		products[change.ProductID] = product
	}

	current, ok := s.cases[c.Case.ID]
	if !ok {
		return Case{}, ErrNotFound
	}
	if !slices.Contains(c.From, current.Status) {
		return Case{}, ErrStaleStatus
	}

	s.orders[order.ID] = order
	for productID, product := range products {
		s.products[productID] = product
	}
	if c.Loyalty != nil {
		s.loyalty[c.Loyalty.CustomerID] = s.loyalty[c.Loyalty.CustomerID].Add(c.Loyalty.Entry.Points)
		s.history[c.Loyalty.CustomerID] = append(s.history[c.Loyalty.CustomerID], c.Loyalty.Entry)
	}
	s.cases[c.Case.ID] = c.Case
	return c.Case, nil
}

func (s *fakeStore) SetAuditReference(_ context.Context, kind Kind, caseID string, ref AuditReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok || c.Kind != kind {
		return ErrNotFound
	}
	if c.AuditTxID != "" {
		return nil
	}
	c.AuditTxID = ref.TxID
	c.AuditHash = ref.Hash
	s.cases[caseID] = c
	return nil
}

// fakeTokens encodes descriptors as readable strings.
type fakeTokens struct{}

func (fakeTokens) Issue(d Descriptor) (string, error) {
	return strings.Join([]string{"tok", string(d.Kind), d.CaseID, d.OrderID, d.ItemID, d.CustomerID, d.Price.String()}, "|"), nil
}

func (fakeTokens) Verify(token string) (Descriptor, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 7 || parts[0] != "tok" {
		return Descriptor{}, invalidToken()
	}
	price, err := decimal.NewFromString(parts[6])
	if err != nil {
		return Descriptor{}, invalidToken()
	}
	return Descriptor{
		Kind:       Kind(parts[1]),
		CaseID:     parts[2],
		OrderID:    parts[3],
		ItemID:     parts[4],
		CustomerID: parts[5],
		Price:      price,
	}, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *fakeBroadcaster) Publish(_ context.Context, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBroadcaster) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, event := range b.events {
		out = append(out, event.Name)
	}
	return out
}

func (b *fakeBroadcaster) last() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return Event{}
	}
	return b.events[len(b.events)-1]
}

type fakeAudit struct {
	mu        sync.Mutex
	err       error
	summaries []AuditSummary
}

func (a *fakeAudit) HandOff(_ context.Context, summary AuditSummary) (AuditReference, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, summary)
	if a.err != nil {
		return AuditReference{}, a.err
	}
	return AuditReference{TxID: "tx-" + summary.CaseID, Hash: "hash-" + summary.CaseID}, nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	auditOK     int
	auditFailed int
}

func (r *fakeRecorder) CaseTransition(kind Kind, from Status, to Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, fmt.Sprintf("%s:%s->%s", kind, from, to))
}

func (r *fakeRecorder) AuditHandOff(_ Kind, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.auditOK++
	} else {
		r.auditFailed++
	}
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time {
		return now
	}
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	var mu sync.Mutex
	idx := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(ids) {
			return "", errors.New("id generator exhausted")
		}
		value := ids[idx]
		idx++
		return value, nil
	}
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fixture struct {
	store       *fakeStore
	broadcaster *fakeBroadcaster
	audit       *fakeAudit
	recorder    *fakeRecorder
	svc         *Service
}

func newFixture(confirmedDaysAgo int) *fixture {
	store := newFakeStore()
	confirmedAt := testNow.AddDate(0, 0, -confirmedDaysAgo)
	store.addOrder(Order{
		ID:           "order-1",
		CustomerID:   "cust-1",
		CheckoutCode: "CHK-1001",
		Status:       OrderConfirmed,
		ConfirmedAt:  &confirmedAt,
		CreatedAt:    confirmedAt,
		Lines: []OrderLine{
			{ID: "line-1", ProductID: "prod-shirt", Name: "Linen Shirt", SKU: "SH-1", Quantity: 1, UnitPrice: decimal.RequireFromString("100.00"), Status: LinePurchased},
			{ID: "line-2", ProductID: "prod-mug", Name: "Mug", SKU: "MG-1", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00"), Status: LinePurchased},
		},
	})
	store.addProduct(Product{ID: "prod-shirt", Name: "Linen Shirt", Barcode: "480001", Price: decimal.RequireFromString("100.00"), StockQuantity: 4})
	store.addProduct(Product{ID: "prod-shirt-blue", Name: "Linen Shirt Blue", Barcode: "480002", Price: decimal.RequireFromString("100.00"), StockQuantity: 2})
	store.addProduct(Product{ID: "prod-shirt-pricey", Name: "Silk Shirt", Barcode: "480003", Price: decimal.RequireFromString("100.01"), StockQuantity: 2})
	store.addProduct(Product{ID: "prod-shirt-empty", Name: "Shirt Sold Out", Barcode: "480004", Price: decimal.RequireFromString("100.00"), StockQuantity: 0})
	store.addProduct(Product{ID: "prod-shirt-sale", Name: "Sale Shirt", Barcode: "480005", Price: decimal.RequireFromString("120.00"), SalePrice: decimal.RequireFromString("100.00"), SaleActive: true, StockQuantity: 3})

	f := &fixture{
		store:       store,
		broadcaster: &fakeBroadcaster{},
		audit:       &fakeAudit{},
		recorder:    &fakeRecorder{},
	}
	f.svc = NewService(store, fakeTokens{},
		WithClock(fixedClock(testNow)),
		WithIDGenerator(sequentialIDGenerator("case-1", "case-2", "case-3", "case-4")),
		WithWindows(7, 14),
		WithBroadcaster(f.broadcaster),
		WithAuditLogger(f.audit),
		WithRecorder(f.recorder),
	)
	return f
}
