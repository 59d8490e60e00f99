package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

var recordedAt = time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)

type memorySink struct {
	records []Record
	err     error
}

func (s *memorySink) Append(_ context.Context, record Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleSummary() domain.AuditSummary {
	return domain.AuditSummary{
		CaseID:            "case-1",
		Kind:              domain.KindExchange,
		OrderID:           "order-1",
		CustomerID:        "cust-1",
		OriginalItemID:    "prod-shirt",
		ReplacementItemID: "prod-shirt-blue",
		Price:             decimal.RequireFromString("100"),
		LoyaltyPoints:     decimal.Zero,
		CompletedAt:       time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC),
	}
}

func newTestLedger(sink Sink) *Ledger {
	return NewLedger(sink,
		WithClock(func() time.Time { return recordedAt }),
		WithIDGenerator(func() (string, error) { return "tx-1", nil }),
	)
}

func TestCanonicalIsStable(t *testing.T) {
	t.Parallel()

	first, err := Canonical(sampleSummary())
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	summary := sampleSummary()
	summary.Price = decimal.RequireFromString("100.000")
	second, err := Canonical(summary)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected equal canonical forms:\n%s\n%s", first, second)
	}
	want := `{"caseId":"case-1","kind":"exchange","orderId":"order-1","customerId":"cust-1","originalItemId":"prod-shirt","replacementItemId":"prod-shirt-blue","price":"100.00","fulfillmentType":"","loyaltyPoints":"0.00","completedAt":"2026-03-10T15:30:00Z"}`
	if string(first) != want {
		t.Fatalf("unexpected canonical form:\n got %s\nwant %s", first, want)
	}
}

func TestHandOffHashesAndAppends(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	ref, err := newTestLedger(sink).HandOff(context.Background(), sampleSummary())
	if err != nil {
		t.Fatalf("hand off: %v", err)
	}
	canonical, _ := Canonical(sampleSummary())
	if ref.TxID != "tx-1" || ref.Hash != Hash(canonical) || len(ref.Hash) != 64 {
		t.Fatalf("unexpected reference %+v", ref)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.CaseID != "case-1" || !record.RecordedAt.Equal(recordedAt) || string(record.Summary) != string(canonical) {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestHandOffFailuresAreAuditUnavailable(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ledger  *Ledger
		ctx     context.Context
		summary domain.AuditSummary
	}{
		{name: "sink error", ledger: newTestLedger(&memorySink{err: errors.New("disk full")}), ctx: context.Background(), summary: sampleSummary()},
		{name: "no sink", ledger: NewLedger(nil), ctx: context.Background(), summary: sampleSummary()},
		{name: "cancelled", ledger: newTestLedger(&memorySink{}), ctx: cancelled, summary: sampleSummary()},
		{name: "missing case id", ledger: newTestLedger(&memorySink{}), ctx: context.Background(), summary: domain.AuditSummary{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.ledger.HandOff(tc.ctx, tc.summary)
			if apperrors.CodeOf(err) != apperrors.CodeCaseAuditUnavailable {
				t.Fatalf("expected audit unavailable, got %v", err)
			}
		})
	}
}

func TestFileSinkAppendsLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger", "audit.jsonl")
	sink, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("open file sink: %v", err)
	}
	ledger := newTestLedger(sink)
	for i := 0; i < 2; i++ {
		if _, err := ledger.HandOff(context.Background(), sampleSummary()); err != nil {
			t.Fatalf("hand off %d: %v", i, err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Append(context.Background(), Record{}); err == nil {
		t.Fatal("expected append after close to fail")
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer file.Close()
	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		if record.TxID != "tx-1" || record.Hash == "" {
			t.Fatalf("unexpected record %+v", record)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestOpenFileSinkRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := OpenFileSink(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestKafkaSinkKeysByCase(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	sink := &KafkaSink{writer: writer}
	if _, err := newTestLedger(sink).HandOff(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("hand off: %v", err)
	}
	if len(writer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "case-1" {
		t.Fatalf("expected key case-1, got %q", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "tx-1" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	if err := sink.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestNewKafkaSinkValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaSink(nil, "case-audit"); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaSink([]string{" "}, "case-audit"); err == nil {
		t.Fatal("expected error for blank broker")
	}
	if _, err := NewKafkaSink([]string{"localhost:9092"}, ""); err == nil {
		t.Fatal("expected error without topic")
	}
	sink, err := NewKafkaSink([]string{"localhost:9092"}, "case-audit")
	if err != nil {
		t.Fatalf("new kafka sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMultiSinkRequiresEverySink(t *testing.T) {
	t.Parallel()

	ok := &memorySink{}
	failing := &memorySink{err: errors.New("broker down")}
	if err := (MultiSink{ok, failing}).Append(context.Background(), Record{TxID: "tx-1"}); err == nil {
		t.Fatal("expected error when one sink fails")
	}
	if len(ok.records) != 1 {
		t.Fatalf("expected healthy sink to receive record, got %d", len(ok.records))
	}
	if err := (MultiSink{}).Append(context.Background(), Record{}); err == nil {
		t.Fatal("expected error with no sinks")
	}
}
