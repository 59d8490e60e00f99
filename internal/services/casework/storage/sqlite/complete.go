package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// CompleteCase applies every write of a finished case in one transaction.
// Nothing is visible unless all of them succeed.
func (s *Store) CompleteCase(ctx context.Context, c domain.Completion) (domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return domain.Case{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Case{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(c.OrderID) == "" || strings.TrimSpace(c.LineID) == "" {
		return domain.Case{}, fmt.Errorf("completion requires order and line ids")
	}
	if c.LineStatus == "" || c.LineStatus == domain.LinePurchased {
		return domain.Case{}, fmt.Errorf("completion requires a final line status")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, fmt.Errorf("begin completion: %w", err)
	}
	rollbackWith := func(cause error) (domain.Case, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return domain.Case{}, fmt.Errorf("%w: rollback completion: %v", cause, rollbackErr)
		}
		return domain.Case{}, cause
	}

	if err := markLineExec(ctx, tx, c); err != nil {
		return rollbackWith(err)
	}
	for _, change := range c.StockChanges {
		if err := adjustStockExec(ctx, tx, change); err != nil {
			return rollbackWith(err)
		}
	}
	if c.Loyalty != nil {
		if err := creditLoyaltyExec(ctx, tx, *c.Loyalty); err != nil {
			return rollbackWith(err)
		}
	}
	if err := transitionCaseExec(ctx, tx, c.Transition); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, fmt.Errorf("commit completion: %w", err)
	}
	return getCase(ctx, s.sqlDB, c.Case.Kind, c.Case.ID)
}

// markLineExec moves a line out of PURCHASED. A line that already left it
// belongs to another completed case.
func markLineExec(ctx context.Context, q execer, c domain.Completion) error {
	fulfillment, err := json.Marshal(c.Fulfillment)
	if err != nil {
		return fmt.Errorf("encode line fulfillment: %w", err)
	}
	result, err := q.ExecContext(ctx, `
UPDATE order_lines SET status = ?, fulfillment_json = ?
WHERE order_id = ? AND id = ? AND status = ?
`, string(c.LineStatus), string(fulfillment), c.OrderID, c.LineID, string(domain.LinePurchased))
	if err != nil {
		return fmt.Errorf("mark order line: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark order line rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM order_lines WHERE order_id = ? AND id = ?`, c.OrderID, c.LineID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mark order line %s: %w", c.LineID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check order line %s: %w", c.LineID, err)
	}
	return fmt.Errorf("mark order line %s is %s: %w", c.LineID, strings.ToLower(status), domain.ErrLineStatusChanged)
}
