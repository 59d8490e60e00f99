package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/counterdesk/internal/services/casework/api"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
	"github.com/louisbranch/counterdesk/internal/services/casework/token"
)

func testKeyring(t *testing.T) *token.Keyring {
	t.Helper()
	keyring, err := token.NewKeyring(map[string][]byte{"v1": []byte("0123456789abcdef0123456789abcdef")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	return keyring
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		HTTPAddr:           "127.0.0.1:0",
		DBPath:             filepath.Join(dir, "db", "counterdesk.db"),
		ExchangeWindowDays: 7,
		ReturnWindowDays:   14,
		Keyring:            testKeyring(t),
		AuditLedgerPath:    filepath.Join(dir, "audit", "case-audit.jsonl"),
		AuditTimeout:       time.Second,
	}
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTPAddr = " "
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRequiresKeyring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keyring = nil
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("expected error for missing keyring")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestNewHandlerUpEndpoint(t *testing.T) {
	server, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	rr := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/up", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if strings.TrimSpace(rr.Body.String()) != "OK" {
		t.Fatalf("body = %q, want OK", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestNewHandlerWSEndpointRejectsPost(t *testing.T) {
	server, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	rr := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestExchangeFlowWritesAuditLedger(t *testing.T) {
	cfg := testConfig(t)
	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	closed := false
	defer func() {
		if !closed {
			server.Close()
		}
	}()
	seedServer(t, server)
	handler := server.httpServer.Handler

	var initiated domain.CaseView
	do(t, handler, http.MethodPost, "/api/exchanges", api.HeaderCustomerID, "cust-1",
		`{"orderId":"order-1","itemId":"prod-shirt"}`, http.StatusCreated, &initiated)
	if initiated.Case.Status != domain.StatusPending || initiated.Case.QRToken == "" {
		t.Fatalf("unexpected initiated case: %+v", initiated.Case)
	}

	var validated domain.CaseView
	do(t, handler, http.MethodPost, "/api/cashier/exchanges/validate", api.HeaderCashierID, "cashier-1",
		`{"qrToken":"`+initiated.Case.QRToken+`"}`, http.StatusOK, &validated)
	if validated.Case.Status != domain.StatusValidated {
		t.Fatalf("status = %s, want VALIDATED", validated.Case.Status)
	}

	caseURL := "/api/cashier/exchanges/" + initiated.Case.ID
	do(t, handler, http.MethodPost, caseURL+"/replacement", api.HeaderCashierID, "cashier-1",
		`{"barcode":"480002"}`, http.StatusOK, nil)

	var completed domain.CaseView
	do(t, handler, http.MethodPost, caseURL+"/complete", api.HeaderCashierID, "cashier-1",
		`{"barcode":"480002"}`, http.StatusOK, &completed)
	if completed.Case.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", completed.Case.Status)
	}

	server.Close()
	closed = true

	file, err := os.Open(cfg.AuditLedgerPath)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer file.Close()
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record struct {
			TxID string `json:"txId"`
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode ledger line: %v", err)
		}
		if record.TxID == "" || record.Hash == "" {
			t.Fatalf("incomplete ledger record: %s", scanner.Text())
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("ledger lines = %d, want 1", lines)
	}
}

func TestMetricsEndpointServesCaseCounters(t *testing.T) {
	server, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	rr := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("listen and serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server shutdown")
	}
}

func seedServer(t *testing.T, server *Server) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := server.store.PutUser(ctx, "cust-1", "Ana", decimal.Zero, now.Add(-30*24*time.Hour)); err != nil {
		t.Fatalf("put user: %v", err)
	}
	for _, product := range []domain.Product{
		{ID: "prod-shirt", Name: "Shirt", Barcode: "480001", Price: decimal.RequireFromString("100.00"), StockQuantity: 4},
		{ID: "prod-shirt-blue", Name: "Shirt blue", Barcode: "480002", Price: decimal.RequireFromString("100.00"), StockQuantity: 2},
	} {
		if err := server.store.PutProduct(ctx, product); err != nil {
			t.Fatalf("put product %s: %v", product.ID, err)
		}
	}
	confirmedAt := now.Add(-48 * time.Hour)
	if err := server.store.PutOrder(ctx, domain.Order{
		ID: "order-1", CustomerID: "cust-1", CheckoutCode: "CHK-1001",
		Status: domain.OrderConfirmed, ConfirmedAt: &confirmedAt, CreatedAt: confirmedAt,
		Lines: []domain.OrderLine{
			{ID: "line-1", ProductID: "prod-shirt", Name: "Shirt", Quantity: 1, UnitPrice: decimal.RequireFromString("100.00")},
		},
	}); err != nil {
		t.Fatalf("put order: %v", err)
	}
}

func do(t *testing.T, handler http.Handler, method, path, header, identity, body string, wantStatus int, out any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, identity)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d, body %s", method, path, rr.Code, wantStatus, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}
