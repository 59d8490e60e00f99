package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/counterdesk/internal/platform/httpx"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

type inspectRequest struct {
	Result string `json:"result"`
	Notes  string `json:"notes,omitempty"`
}

type loyaltyRequest struct {
	LoyaltyAmount decimal.Decimal `json:"loyaltyAmount"`
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InitiateReturn handles POST /api/returns.
func (h *Handler) InitiateReturn(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.InitiateReturn(r.Context(), domain.InitiateReturnCommand{
		OrderID:    req.OrderID,
		ItemID:     req.ItemID,
		CustomerID: customerID(r),
		Reason:     req.Reason,
		Notes:      req.Notes,
	})
	writeResult(w, r, http.StatusCreated, view, err)
}

// ListMyReturns handles GET /api/returns/mine.
func (h *Handler) ListMyReturns(w http.ResponseWriter, r *http.Request) {
	cases, err := h.svc.ListMine(r.Context(), domain.KindReturn, customerID(r))
	writeResult(w, r, http.StatusOK, casesResponse{Cases: nonNil(cases)}, err)
}

// GetReturn handles GET /api/returns/{id}.
func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetStatus(r.Context(), domain.KindReturn, caseID(r), customerID(r))
	writeResult(w, r, http.StatusOK, view, err)
}

// CancelReturn handles POST /api/returns/{id}/cancel.
func (h *Handler) CancelReturn(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.CancelReturn(r.Context(), domain.CancelReturnCommand{
		CaseID:     caseID(r),
		CustomerID: customerID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// ValidateReturn handles POST /api/cashier/returns/validate.
func (h *Handler) ValidateReturn(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.ValidateReturn(r.Context(), domain.ValidateReturnCommand{
		Token:        req.QRToken,
		CheckoutCode: req.CheckoutCode,
		CashierID:    cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// InspectReturn handles POST /api/cashier/returns/{id}/inspect.
func (h *Handler) InspectReturn(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.InspectReturn(r.Context(), domain.InspectReturnCommand{
		CaseID:    caseID(r),
		Result:    domain.InspectionStatus(strings.ToUpper(strings.TrimSpace(req.Result))),
		Notes:     req.Notes,
		CashierID: cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// CompleteReturnLoyalty handles POST /api/cashier/returns/{id}/complete/loyalty.
func (h *Handler) CompleteReturnLoyalty(w http.ResponseWriter, r *http.Request) {
	var req loyaltyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.CompleteReturnLoyalty(r.Context(), domain.CompleteReturnLoyaltyCommand{
		CaseID:        caseID(r),
		LoyaltyAmount: req.LoyaltyAmount,
		CashierID:     cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// CompleteReturnSwap handles POST /api/cashier/returns/{id}/complete/swap.
func (h *Handler) CompleteReturnSwap(w http.ResponseWriter, r *http.Request) {
	var req barcodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	view, err := h.svc.CompleteReturnSwap(r.Context(), domain.CompleteReturnSwapCommand{
		CaseID:    caseID(r),
		Barcode:   req.Barcode,
		CashierID: cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// RejectReturn handles POST /api/cashier/returns/{id}/reject. The body is
// optional.
func (h *Handler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeError(w, r, invalidBody(err))
			return
		}
	}
	view, err := h.svc.RejectReturn(r.Context(), domain.RejectReturnCommand{
		CaseID:    caseID(r),
		Reason:    req.Reason,
		CashierID: cashierID(r),
	})
	writeResult(w, r, http.StatusOK, view, err)
}

// CashierCancelReturn handles POST /api/cashier/returns/{id}/cancel.
func (h *Handler) CashierCancelReturn(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.CancelReturn(r.Context(), domain.CancelReturnCommand{CaseID: caseID(r)})
	writeResult(w, r, http.StatusOK, view, err)
}
