// Package api serves the case workflows over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

const (
	// HeaderCustomerID carries the customer identity asserted by the gateway.
	HeaderCustomerID = "X-Customer-ID"
	// HeaderCashierID carries the cashier identity asserted by the gateway.
	HeaderCashierID = "X-Cashier-ID"
)

// Service is the case engine surface the routes call.
type Service interface {
	InitiateExchange(ctx context.Context, cmd domain.InitiateExchangeCommand) (domain.CaseView, error)
	ValidateExchange(ctx context.Context, cmd domain.ValidateExchangeCommand) (domain.CaseView, error)
	ValidateReplacement(ctx context.Context, cmd domain.ValidateReplacementCommand) (domain.CaseView, error)
	VerifyReplacementPrice(ctx context.Context, cmd domain.VerifyReplacementPriceCommand) (domain.PriceCheck, error)
	CompleteExchange(ctx context.Context, cmd domain.CompleteExchangeCommand) (domain.CaseView, error)
	CancelExchange(ctx context.Context, cmd domain.CancelExchangeCommand) (domain.CaseView, error)

	InitiateReturn(ctx context.Context, cmd domain.InitiateReturnCommand) (domain.CaseView, error)
	ValidateReturn(ctx context.Context, cmd domain.ValidateReturnCommand) (domain.CaseView, error)
	InspectReturn(ctx context.Context, cmd domain.InspectReturnCommand) (domain.CaseView, error)
	CompleteReturnLoyalty(ctx context.Context, cmd domain.CompleteReturnLoyaltyCommand) (domain.CaseView, error)
	CompleteReturnSwap(ctx context.Context, cmd domain.CompleteReturnSwapCommand) (domain.CaseView, error)
	RejectReturn(ctx context.Context, cmd domain.RejectReturnCommand) (domain.CaseView, error)
	CancelReturn(ctx context.Context, cmd domain.CancelReturnCommand) (domain.CaseView, error)

	GetStatus(ctx context.Context, kind domain.Kind, caseID string, customerID string) (domain.CaseView, error)
	ListMine(ctx context.Context, kind domain.Kind, customerID string) ([]domain.Case, error)
}

// Handler holds the route state.
type Handler struct {
	svc Service
}

// NewHandler builds the case API over svc.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the customer and cashier routes under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireIdentity(HeaderCustomerID))

			r.Post("/exchanges", h.InitiateExchange)
			r.Get("/exchanges/mine", h.ListMyExchanges)
			r.Get("/exchanges/{id}", h.GetExchange)
			r.Post("/exchanges/{id}/cancel", h.CancelExchange)
			r.Post("/exchanges/{id}/verify-price", h.VerifyReplacementPrice)

			r.Post("/returns", h.InitiateReturn)
			r.Get("/returns/mine", h.ListMyReturns)
			r.Get("/returns/{id}", h.GetReturn)
			r.Post("/returns/{id}/cancel", h.CancelReturn)
		})

		r.Route("/cashier", func(r chi.Router) {
			r.Use(requireIdentity(HeaderCashierID))

			r.Post("/exchanges/validate", h.ValidateExchange)
			r.Post("/exchanges/{id}/replacement", h.ValidateReplacement)
			r.Post("/exchanges/{id}/complete", h.CompleteExchange)

			r.Post("/returns/validate", h.ValidateReturn)
			r.Post("/returns/{id}/inspect", h.InspectReturn)
			r.Post("/returns/{id}/complete/loyalty", h.CompleteReturnLoyalty)
			r.Post("/returns/{id}/complete/swap", h.CompleteReturnSwap)
			r.Post("/returns/{id}/reject", h.RejectReturn)
			r.Post("/returns/{id}/cancel", h.CashierCancelReturn)
		})
	})
}

type identityKey struct{ header string }

// requireIdentity rejects requests without the identity header and stores
// its value on the request context.
func requireIdentity(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := strings.TrimSpace(r.Header.Get(header))
			if value == "" {
				writeError(w, r, apperrors.WithMetadata(apperrors.CodeUnauthenticated, "missing identity header", map[string]string{"Field": header}))
				return
			}
			ctx := context.WithValue(r.Context(), identityKey{header: header}, value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func customerID(r *http.Request) string {
	value, _ := r.Context().Value(identityKey{header: HeaderCustomerID}).(string)
	return value
}

func cashierID(r *http.Request) string {
	value, _ := r.Context().Value(identityKey{header: HeaderCashierID}).(string)
	return value
}

func caseID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

type casesResponse struct {
	Cases []domain.Case `json:"cases"`
}
