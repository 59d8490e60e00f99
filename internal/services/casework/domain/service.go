package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/counterdesk/internal/platform/id"
	i18ncatalog "github.com/louisbranch/counterdesk/internal/platform/i18n/catalog"
	"github.com/louisbranch/counterdesk/internal/platform/timeouts"
)

const tracerName = "github.com/louisbranch/counterdesk/internal/services/casework/domain"

// OrderSummary is the order context returned alongside a case.
type OrderSummary struct {
	ID           string    `json:"id"`
	CheckoutCode string    `json:"checkoutCode"`
	PurchasedAt  time.Time `json:"purchasedAt"`
}

// CaseView is a case plus the order and item context the next UI step needs.
type CaseView struct {
	Case    Case          `json:"case"`
	Order   *OrderSummary `json:"order,omitempty"`
	Item    *OrderLine    `json:"item,omitempty"`
	Product *Product      `json:"product,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides case id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithWindows sets the exchange and return windows in days.
func WithWindows(exchangeDays, returnDays int) Option {
	return func(s *Service) {
		s.exchange = ExchangePolicy(exchangeDays)
		s.returns = ReturnPolicy(returnDays)
	}
}

// WithBroadcaster wires realtime fan-out.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithAuditLogger wires the post-commit ledger hand-off.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *Service) {
		s.audit = a
	}
}

// WithAuditTimeout bounds one ledger hand-off.
func WithAuditTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.auditTimeout = timeout
		}
	}
}

// WithRecorder wires lifecycle counters.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Service drives exchange and return cases through their lifecycles.
type Service struct {
	store        Store
	tokens       TokenCodec
	broadcaster  Broadcaster
	audit        AuditLogger
	recorder     Recorder
	tracer       trace.Tracer
	clock        func() time.Time
	newID        func() (string, error)
	exchange     Policy
	returns      Policy
	auditTimeout time.Duration
	messages     *i18ncatalog.Bundle

	pending sync.WaitGroup
}

// NewService constructs the case engine.
func NewService(store Store, tokens TokenCodec, opts ...Option) *Service {
	s := &Service{
		store:        store,
		tokens:       tokens,
		broadcaster:  noopBroadcaster{},
		recorder:     noopRecorder{},
		tracer:       otel.Tracer(tracerName),
		clock:        time.Now,
		newID:        id.NewID,
		exchange:     ExchangePolicy(DefaultExchangeWindowDays),
		returns:      ReturnPolicy(DefaultReturnWindowDays),
		auditTimeout: timeouts.AuditHandOff,
		messages:     i18ncatalog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Policy returns the lifecycle policy for kind.
func (s *Service) Policy(kind Kind) (Policy, error) {
	switch kind {
	case KindExchange:
		return s.exchange, nil
	case KindReturn:
		return s.returns, nil
	default:
		return Policy{}, invalidArgument("kind", "must be exchange or return")
	}
}

// Wait blocks until in-flight audit hand-offs finish.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.pending.Wait()
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}

func (s *Service) startSpan(ctx context.Context, p Policy, operation string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "casework."+string(p.Kind)+"."+operation,
		trace.WithAttributes(attribute.String("casework.kind", string(p.Kind))))
}

func endSpan(span trace.Span, caseID string, err error) {
	if caseID != "" {
		span.SetAttributes(attribute.String("casework.case_id", caseID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) loadCase(ctx context.Context, p Policy, caseID string) (Case, error) {
	caseID = strings.TrimSpace(caseID)
	c, err := s.store.GetCase(ctx, p.Kind, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Case{}, caseNotFound(p, caseID)
		}
		return Case{}, err
	}
	return c, nil
}

func (s *Service) loadOwnedCase(ctx context.Context, p Policy, caseID string, customerID string) (Case, error) {
	c, err := s.loadCase(ctx, p, caseID)
	if err != nil {
		return Case{}, err
	}
	if c.CustomerID != strings.TrimSpace(customerID) {
		return Case{}, caseNotFound(p, caseID)
	}
	return c, nil
}

// loadLine returns the case's order and its original line.
func (s *Service) loadLine(ctx context.Context, c Case) (Order, OrderLine, error) {
	order, err := s.store.GetOrder(ctx, c.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, OrderLine{}, orderNotFound(c.OrderID)
		}
		return Order{}, OrderLine{}, err
	}
	lineID := c.LineID
	if lineID == "" {
		lineID = c.OriginalItemID
	}
	line, ok := order.FindLine(lineID)
	if !ok {
		return Order{}, OrderLine{}, lineNotFound(c.OriginalItemID)
	}
	return order, line, nil
}

func (s *Service) loadReplacement(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	product, err := s.store.GetProductByBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, productNotFound(barcode)
		}
		return Product{}, err
	}
	return product, nil
}

// initiate creates a PENDING case or returns the open one for the same line.
func (s *Service) initiate(ctx context.Context, p Policy, orderID, itemID, customerID string, decorate func(*Case)) (CaseView, error) {
	orderID = strings.TrimSpace(orderID)
	customerID = strings.TrimSpace(customerID)
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CaseView{}, orderNotFound(orderID)
		}
		return CaseView{}, err
	}
	if order.CustomerID != customerID {
		return CaseView{}, orderNotFound(orderID)
	}
	if order.Status != OrderConfirmed {
		return CaseView{}, orderNotConfirmed(p, order.Status)
	}
	line, ok := order.FindLine(itemID)
	if !ok {
		return CaseView{}, lineNotFound(itemID)
	}
	if line.Status != LinePurchased {
		return CaseView{}, itemAlreadyProcessed(line.Status)
	}
	now := s.nowUTC()
	if order.PurchasedAt().Before(now.AddDate(0, 0, -p.WindowDays)) {
		return CaseView{}, windowClosed(p)
	}

	existing, err := s.store.FindOpenCase(ctx, p.Kind, order.ID, line.ID, p.Open)
	if err == nil {
		return s.view(existing, &order, &line), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return CaseView{}, err
	}

	if s.tokens == nil {
		return CaseView{}, ErrTokenCodecNotConfigured
	}
	caseID, err := s.newID()
	if err != nil {
		return CaseView{}, err
	}
	c := Case{
		ID:               caseID,
		Kind:             p.Kind,
		OrderID:          order.ID,
		LineID:           line.ID,
		CustomerID:       customerID,
		OriginalItemID:   line.ProductID,
		OriginalItemName: line.Name,
		OriginalPrice:    line.UnitPrice,
		Status:           StatusPending,
		InitiatedAt:      now,
	}
	if decorate != nil {
		decorate(&c)
	}
	token, err := s.tokens.Issue(Descriptor{
		CaseID:     c.ID,
		Kind:       c.Kind,
		OrderID:    c.OrderID,
		ItemID:     c.OriginalItemID,
		CustomerID: c.CustomerID,
		Price:      c.OriginalPrice,
	})
	if err != nil {
		return CaseView{}, err
	}
	c.QRToken = token

	if err := s.store.PutCase(ctx, c); err != nil {
		if !errors.Is(err, ErrConflict) {
			return CaseView{}, err
		}
		winner, lookupErr := s.store.FindOpenCase(ctx, p.Kind, order.ID, line.ID, p.Open)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return CaseView{}, err
			}
			return CaseView{}, lookupErr
		}
		return s.view(winner, &order, &line), nil
	}
	s.recorder.CaseTransition(p.Kind, "", StatusPending)
	return s.view(c, &order, &line), nil
}

// caseFromToken verifies a token and loads the case it points at. The token
// only names the case; every live check runs against stored state.
func (s *Service) caseFromToken(ctx context.Context, p Policy, token string) (Case, error) {
	if s.tokens == nil {
		return Case{}, ErrTokenCodecNotConfigured
	}
	descriptor, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return Case{}, err
	}
	if descriptor.Kind != p.Kind {
		return Case{}, invalidToken()
	}
	c, err := s.loadCase(ctx, p, descriptor.CaseID)
	if err != nil {
		return Case{}, err
	}
	if c.OrderID != descriptor.OrderID {
		return Case{}, invalidToken()
	}
	return c, nil
}

// validate moves a PENDING case to VALIDATED for cashierID. A repeat scan by
// the same cashier returns the case unchanged.
func (s *Service) validate(ctx context.Context, p Policy, c Case, cashierID string) (CaseView, error) {
	cashierID = strings.TrimSpace(cashierID)
	if c.Status == StatusValidated && c.CashierID == cashierID {
		order, line, err := s.loadLine(ctx, c)
		if err != nil {
			return CaseView{}, err
		}
		return s.view(c, &order, &line), nil
	}
	if c.Status != StatusPending {
		return CaseView{}, stateConflict(p, "validate", c.Status)
	}
	order, line, err := s.loadLine(ctx, c)
	if err != nil {
		return CaseView{}, err
	}
	if line.Status != LinePurchased {
		return CaseView{}, itemAlreadyProcessed(line.Status)
	}
	now := s.nowUTC()
	updated, err := s.transition(ctx, p, c, StatusValidated, "validate", func(next *Case) {
		next.CashierID = cashierID
		next.ValidatedAt = timePtr(now)
	})
	if err != nil {
		return CaseView{}, err
	}
	s.publish(ctx, p, updated, "validated", map[string]any{
		"cashierId":   cashierID,
		"validatedAt": now,
		"item":        line,
	})
	return s.view(updated, &order, &line), nil
}

// transition applies one compare-and-swap edge of the policy.
func (s *Service) transition(ctx context.Context, p Policy, current Case, to Status, action string, mutate func(*Case)) (Case, error) {
	if !p.Allows(current.Status, to) {
		return Case{}, stateConflict(p, action, current.Status)
	}
	next := current
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}
	updated, err := s.store.TransitionCase(ctx, Transition{Case: next, From: []Status{current.Status}})
	if err != nil {
		return Case{}, s.resolveStale(ctx, p, current.ID, action, err)
	}
	s.recorder.CaseTransition(p.Kind, current.Status, to)
	return updated, nil
}

// resolveStale turns a lost compare-and-swap into a conflict naming the
// status that won.
func (s *Service) resolveStale(ctx context.Context, p Policy, caseID string, action string, err error) error {
	if !errors.Is(err, ErrStaleStatus) {
		return err
	}
	latest, lookupErr := s.loadCase(ctx, p, caseID)
	if lookupErr != nil {
		return lookupErr
	}
	return stateConflict(p, action, latest.Status)
}

// complete commits a completion transaction, then hands the case to the
// audit ledger in the background.
func (s *Service) complete(ctx context.Context, p Policy, current Case, completion Completion, replacement Product) (Case, error) {
	if !p.Allows(current.Status, StatusCompleted) {
		return Case{}, stateConflict(p, "complete", current.Status)
	}
	completion.Case.Status = StatusCompleted
	completion.From = []Status{current.Status}

	updated, err := s.store.CompleteCase(ctx, completion)
	if err != nil {
		switch {
		case errors.Is(err, ErrStaleStatus):
			return Case{}, s.resolveStale(ctx, p, current.ID, "complete", err)
		case errors.Is(err, ErrLineStatusChanged):
			if _, line, lookupErr := s.loadLine(ctx, current); lookupErr == nil {
				return Case{}, itemAlreadyProcessed(line.Status)
			}
			return Case{}, commitFailed(err)
		case errors.Is(err, ErrInsufficientStock):
			return Case{}, outOfStock(replacement)
		case errors.Is(err, ErrCustomerNotFound):
			return Case{}, customerNotFound(current.CustomerID)
		default:
			log.Printf("casework: complete failed kind=%s case_id=%s err=%v", p.Kind, current.ID, err)
			return Case{}, commitFailed(err)
		}
	}
	s.recorder.CaseTransition(p.Kind, current.Status, StatusCompleted)
	s.handOffAudit(p, updated)
	return updated, nil
}

// handOffAudit submits a completed case to the ledger without blocking the
// caller. Failures leave the audit reference empty.
func (s *Service) handOffAudit(p Policy, c Case) {
	if s.audit == nil {
		return
	}
	summary := summarize(c)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.auditTimeout)
		defer cancel()

		ref, err := s.audit.HandOff(ctx, summary)
		if err != nil {
			log.Printf("casework: audit hand-off failed kind=%s case_id=%s err=%v", p.Kind, c.ID, err)
			s.recorder.AuditHandOff(p.Kind, false)
			return
		}
		if err := s.store.SetAuditReference(ctx, p.Kind, c.ID, ref); err != nil {
			log.Printf("casework: store audit reference failed kind=%s case_id=%s tx_id=%s err=%v", p.Kind, c.ID, ref.TxID, err)
			s.recorder.AuditHandOff(p.Kind, false)
			return
		}
		s.recorder.AuditHandOff(p.Kind, true)
	}()
}

func summarize(c Case) AuditSummary {
	summary := AuditSummary{
		CaseID:            c.ID,
		Kind:              c.Kind,
		OrderID:           c.OrderID,
		CustomerID:        c.CustomerID,
		OriginalItemID:    c.OriginalItemID,
		ReplacementItemID: c.ReplacementItemID,
		Price:             c.OriginalPrice,
		FulfillmentType:   c.FulfillmentType,
		LoyaltyPoints:     c.LoyaltyPointsAwarded,
	}
	if c.CompletedAt != nil {
		summary.CompletedAt = c.CompletedAt.UTC()
	}
	return summary
}

// publish pushes a case event with its catalog message. It never fails.
func (s *Service) publish(ctx context.Context, p Policy, c Case, name string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = c.Status
	if _, ok := payload["message"]; !ok {
		if message, found := s.messages.Message(i18ncatalog.BaseLocale, p.MessageKey(name)); found {
			payload["message"] = message
		}
	}
	s.broadcaster.Publish(ctx, Event{
		Room:    c.Room(),
		Name:    p.Event(name),
		CaseID:  c.ID,
		Payload: payload,
	})
}

func (s *Service) view(c Case, order *Order, line *OrderLine) CaseView {
	out := CaseView{Case: c}
	if order != nil {
		out.Order = &OrderSummary{
			ID:           order.ID,
			CheckoutCode: order.CheckoutCode,
			PurchasedAt:  order.PurchasedAt(),
		}
	}
	if line != nil {
		item := *line
		out.Item = &item
	}
	return out
}
