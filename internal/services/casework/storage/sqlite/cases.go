package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

var _ domain.Store = (*Store)(nil)

const caseColumns = `id, kind, order_id, line_id, customer_id, cashier_id,
original_item_id, original_item_name, original_price, qr_token, status,
replacement_item_id, replacement_item_name, return_reason, return_reason_notes,
inspection_status, inspection_notes, fulfillment_type, loyalty_points_awarded,
initiated_at, validated_at, inspected_at, completed_at, cancelled_at,
audit_tx_id, audit_hash`

// PutCase inserts a new case.
func (s *Store) PutCase(ctx context.Context, c domain.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("case id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cases (`+caseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		c.ID, string(c.Kind), c.OrderID, c.LineID, c.CustomerID, c.CashierID,
		c.OriginalItemID, c.OriginalItemName, c.OriginalPrice.String(), c.QRToken, string(c.Status),
		c.ReplacementItemID, c.ReplacementItemName, string(c.ReturnReason), c.ReturnReasonNotes,
		string(c.InspectionStatus), c.InspectionNotes, string(c.FulfillmentType), c.LoyaltyPointsAwarded.String(),
		toMillis(c.InitiatedAt), toNullMillis(c.ValidatedAt), toNullMillis(c.InspectedAt),
		toNullMillis(c.CompletedAt), toNullMillis(c.CancelledAt),
		c.AuditTxID, c.AuditHash,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		if isForeignKeyConstraintError(err) {
			return fmt.Errorf("put case %s: %w", c.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("put case: %w", err)
	}
	return nil
}

// GetCase loads one case by kind and id.
func (s *Store) GetCase(ctx context.Context, kind domain.Kind, caseID string) (domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return domain.Case{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Case{}, fmt.Errorf("storage is not configured")
	}
	return getCase(ctx, s.sqlDB, kind, strings.TrimSpace(caseID))
}

func getCase(ctx context.Context, q execer, kind domain.Kind, caseID string) (domain.Case, error) {
	row := q.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ? AND kind = ?`, caseID, string(kind))
	c, err := scanCase(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, domain.ErrNotFound
		}
		return domain.Case{}, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// FindOpenCase loads the open case for (kind, order line).
func (s *Store) FindOpenCase(ctx context.Context, kind domain.Kind, orderID string, lineID string, open []domain.Status) (domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return domain.Case{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Case{}, fmt.Errorf("storage is not configured")
	}
	if len(open) == 0 {
		return domain.Case{}, domain.ErrNotFound
	}
	placeholders, statusValues := statusArgs(open)
	args := append([]any{string(kind), strings.TrimSpace(orderID), strings.TrimSpace(lineID)}, statusValues...)
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE kind = ? AND order_id = ? AND line_id = ? AND status IN (`+placeholders+`)
ORDER BY initiated_at ASC, id ASC
LIMIT 1
`, args...)
	c, err := scanCase(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, domain.ErrNotFound
		}
		return domain.Case{}, fmt.Errorf("find open case: %w", err)
	}
	return c, nil
}

// FindOpenCaseByOrder loads the earliest case on an order in one of the
// given statuses.
func (s *Store) FindOpenCaseByOrder(ctx context.Context, kind domain.Kind, orderID string, open []domain.Status) (domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return domain.Case{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Case{}, fmt.Errorf("storage is not configured")
	}
	if len(open) == 0 {
		return domain.Case{}, domain.ErrNotFound
	}
	placeholders, statusValues := statusArgs(open)
	args := append([]any{string(kind), strings.TrimSpace(orderID)}, statusValues...)
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE kind = ? AND order_id = ? AND status IN (`+placeholders+`)
ORDER BY initiated_at ASC, id ASC
LIMIT 1
`, args...)
	c, err := scanCase(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Case{}, domain.ErrNotFound
		}
		return domain.Case{}, fmt.Errorf("find open case by order: %w", err)
	}
	return c, nil
}

// ListCasesByCustomer lists a customer's cases newest first.
func (s *Store) ListCasesByCustomer(ctx context.Context, kind domain.Kind, customerID string) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE kind = ? AND customer_id = ?
ORDER BY initiated_at DESC, id DESC
`, string(kind), strings.TrimSpace(customerID))
	if err != nil {
		return nil, fmt.Errorf("list cases by customer: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListStaleOpenCases lists open cases initiated before the cutoff, oldest first.
func (s *Store) ListStaleOpenCases(ctx context.Context, kind domain.Kind, open []domain.Status, initiatedBefore time.Time) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if len(open) == 0 {
		return nil, nil
	}
	placeholders, statusValues := statusArgs(open)
	args := append([]any{string(kind)}, statusValues...)
	args = append(args, toMillis(initiatedBefore))
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE kind = ? AND status IN (`+placeholders+`) AND initiated_at < ?
ORDER BY initiated_at ASC, id ASC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale cases: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// TransitionCase writes the case's mutable fields only while its status is
// still one of t.From.
func (s *Store) TransitionCase(ctx context.Context, t domain.Transition) (domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return domain.Case{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Case{}, fmt.Errorf("storage is not configured")
	}
	if err := transitionCaseExec(ctx, s.sqlDB, t); err != nil {
		return domain.Case{}, err
	}
	return getCase(ctx, s.sqlDB, t.Case.Kind, t.Case.ID)
}

func transitionCaseExec(ctx context.Context, q execer, t domain.Transition) error {
	if len(t.From) == 0 {
		return fmt.Errorf("transition requires expected statuses")
	}
	c := t.Case
	placeholders, statusValues := statusArgs(t.From)
	args := []any{
		string(c.Status), c.CashierID,
		c.ReplacementItemID, c.ReplacementItemName,
		string(c.InspectionStatus), c.InspectionNotes,
		string(c.FulfillmentType), c.LoyaltyPointsAwarded.String(),
		toNullMillis(c.ValidatedAt), toNullMillis(c.InspectedAt),
		toNullMillis(c.CompletedAt), toNullMillis(c.CancelledAt),
		c.ID, string(c.Kind),
	}
	args = append(args, statusValues...)
	result, err := q.ExecContext(ctx, `
UPDATE cases SET
    status = ?,
    cashier_id = ?,
    replacement_item_id = ?,
    replacement_item_name = ?,
    inspection_status = ?,
    inspection_notes = ?,
    fulfillment_type = ?,
    loyalty_points_awarded = ?,
    validated_at = ?,
    inspected_at = ?,
    completed_at = ?,
    cancelled_at = ?
WHERE id = ? AND kind = ? AND status IN (`+placeholders+`)
`, args...)
	if err != nil {
		return fmt.Errorf("transition case: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition case rows affected: %w", err)
	}
	if affected == 0 {
		if _, lookupErr := getCase(ctx, q, c.Kind, c.ID); lookupErr != nil {
			return lookupErr
		}
		return domain.ErrStaleStatus
	}
	return nil
}

// SetAuditReference records the ledger reference while it is still empty.
func (s *Store) SetAuditReference(ctx context.Context, kind domain.Kind, caseID string, ref domain.AuditReference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ref.TxID) == "" || strings.TrimSpace(ref.Hash) == "" {
		return fmt.Errorf("audit tx id and hash are required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE cases SET audit_tx_id = ?, audit_hash = ?
WHERE id = ? AND kind = ? AND status = ? AND audit_tx_id = ''
`, ref.TxID, ref.Hash, strings.TrimSpace(caseID), string(kind), string(domain.StatusCompleted))
	if err != nil {
		return fmt.Errorf("set audit reference: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set audit reference rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set audit reference %s: %w", caseID, domain.ErrStaleStatus)
	}
	return nil
}

func collectCases(rows *sql.Rows) ([]domain.Case, error) {
	var out []domain.Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}

func scanCase(scan func(dest ...any) error) (domain.Case, error) {
	var (
		c                                    domain.Case
		kind, status                         string
		returnReason, inspection, fulfilment string
		originalPrice, loyaltyPoints         string
		initiatedAt                          int64
		validatedAt, inspectedAt             sql.NullInt64
		completedAt, cancelledAt             sql.NullInt64
	)
	if err := scan(
		&c.ID, &kind, &c.OrderID, &c.LineID, &c.CustomerID, &c.CashierID,
		&c.OriginalItemID, &c.OriginalItemName, &originalPrice, &c.QRToken, &status,
		&c.ReplacementItemID, &c.ReplacementItemName, &returnReason, &c.ReturnReasonNotes,
		&inspection, &c.InspectionNotes, &fulfilment, &loyaltyPoints,
		&initiatedAt, &validatedAt, &inspectedAt, &completedAt, &cancelledAt,
		&c.AuditTxID, &c.AuditHash,
	); err != nil {
		return domain.Case{}, err
	}
	var err error
	if c.OriginalPrice, err = parseDecimal("original_price", originalPrice); err != nil {
		return domain.Case{}, err
	}
	if c.LoyaltyPointsAwarded, err = parseDecimal("loyalty_points_awarded", loyaltyPoints); err != nil {
		return domain.Case{}, err
	}
	c.Kind = domain.Kind(kind)
	c.Status = domain.Status(status)
	c.ReturnReason = domain.ReturnReason(returnReason)
	c.InspectionStatus = domain.InspectionStatus(inspection)
	c.FulfillmentType = domain.FulfillmentType(fulfilment)
	c.InitiatedAt = fromMillis(initiatedAt)
	c.ValidatedAt = fromNullMillis(validatedAt)
	c.InspectedAt = fromNullMillis(inspectedAt)
	c.CompletedAt = fromNullMillis(completedAt)
	c.CancelledAt = fromNullMillis(cancelledAt)
	return c, nil
}
