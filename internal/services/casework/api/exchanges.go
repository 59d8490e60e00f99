package api

import (
	"net/http"

	"github.com/louisbranch/counterdesk/internal/platform/httpx"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

type initiateRequest struct {
	OrderID string `json:"orderId"`
	ItemID  string `json:"itemId"`
	Reason  string `json:"reason,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type tokenRequest struct {
	QRToken      string `json:"qrToken"`
	CheckoutCode string `json:"checkoutCode,omitempty"`
}

type barcodeRequest struct {
	Barcode string `json:"barcode"`
}

// InitiateExchange handles POST /api/exchanges.
func (h *Handler) InitiateExchange(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.InitiateExchange(r.Context(), domain.InitiateExchangeCommand{
		OrderID:    req.OrderID,
		ItemID:     req.ItemID,
		CustomerID: customerID(r),
	})
	writeResult(w, r, http.StatusCreated, view, err)
}

// ListMyExchanges handles GET /api/exchanges/mine.
func (h *Handler) ListMyExchanges(w http.ResponseWriter, r *http.Request) {
	cases, err := h.svc.ListMine(r.Context(), domain.KindExchange, customerID(r))
	writeResult(w, r, http.StatusOK, casesResponse{Cases: nonNil(cases)}, err)
}

// GetExchange handles GET /api/exchanges/{id}.
func (h *Handler) GetExchange(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetStatus(r.Context(), domain.KindExchange, caseID(r), customerID(r))
	writeResult(w, r, http.StatusOK, view, err)
}

// CancelExchange handles POST /api/exchanges/{id}/cancel.
func (h *Handler) CancelExchange(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.CancelExchange(r.Context(), domain.CancelExchangeCommand{
		CaseID:     caseID(r),
		CustomerID: customerID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// VerifyReplacementPrice handles POST /api/exchanges/{id}/verify-price. A
// mismatch is reported in the body, not as an error.
func (h *Handler) VerifyReplacementPrice(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	check, err := h.svc.VerifyReplacementPrice(r.Context(), domain.VerifyReplacementPriceCommand{
		CaseID:     caseID(r),
		CustomerID: customerID(r),
		Barcode:    req.Barcode,
	})
	writeResult(w, r, http.StatusOK, check, err)
}

// ValidateExchange handles POST /api/cashier/exchanges/validate.
func (h *Handler) ValidateExchange(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.ValidateExchange(r.Context(), domain.ValidateExchangeCommand{
		Token:     req.QRToken,
		CashierID: cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// ValidateReplacement handles POST /api/cashier/exchanges/{id}/replacement.
func (h *Handler) ValidateReplacement(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.ValidateReplacement(r.Context(), domain.ValidateReplacementCommand{
		CaseID:  caseID(r),
		Barcode: req.Barcode,
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// CompleteExchange handles POST /api/cashier/exchanges/{id}/complete.
func (h *Handler) CompleteExchange(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.CompleteExchange(r.Context(), domain.CompleteExchangeCommand{
		CaseID:    caseID(r),
		Barcode:   req.Barcode,
		CashierID: cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

func nonNil(cases []domain.Case) []domain.Case {
	if cases == nil {
		return []domain.Case{}
	}
	return cases
}
