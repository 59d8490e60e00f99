package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

// PutUser registers a customer with a starting loyalty balance.
func (s *Store) PutUser(ctx context.Context, userID string, name string, points decimal.Decimal, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, name, loyalty_points, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, loyalty_points = excluded.loyalty_points
`, strings.TrimSpace(userID), name, points.String(), toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetLoyaltyPoints returns a customer's current balance.
func (s *Store) GetLoyaltyPoints(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if s == nil || s.sqlDB == nil {
		return decimal.Zero, fmt.Errorf("storage is not configured")
	}
	return loyaltyPoints(ctx, s.sqlDB, strings.TrimSpace(userID))
}

// ListLoyaltyHistory lists a customer's loyalty entries oldest first.
func (s *Store) ListLoyaltyHistory(ctx context.Context, userID string) ([]domain.LoyaltyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event, points, occurred_at
FROM loyalty_history
WHERE user_id = ?
ORDER BY occurred_at ASC, id ASC
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list loyalty history: %w", err)
	}
	defer rows.Close()

	var out []domain.LoyaltyEntry
	for rows.Next() {
		var (
			entry      domain.LoyaltyEntry
			points     string
			occurredAt int64
		)
		if err := rows.Scan(&entry.Event, &points, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan loyalty entry: %w", err)
		}
		if entry.Points, err = parseDecimal("points", points); err != nil {
			return nil, err
		}
		entry.Date = fromMillis(occurredAt)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loyalty history: %w", err)
	}
	return out, nil
}

func loyaltyPoints(ctx context.Context, q execer, userID string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT loyalty_points FROM users WHERE id = ?`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("get loyalty points: %w", err)
	}
	return parseDecimal("loyalty_points", raw)
}

// creditLoyaltyExec adds points and appends a history entry. The balance
// update compares against the value read so a concurrent credit is never
// lost.
func creditLoyaltyExec(ctx context.Context, q execer, credit domain.LoyaltyCredit) error {
	current, err := loyaltyPoints(ctx, q, credit.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("credit loyalty %s: %w", credit.CustomerID, domain.ErrCustomerNotFound)
		}
		return err
	}
	result, err := q.ExecContext(ctx, `
UPDATE users SET loyalty_points = ?
WHERE id = ? AND loyalty_points = ?
`, current.Add(credit.Entry.Points).String(), credit.CustomerID, current.String())
	if err != nil {
		return fmt.Errorf("credit loyalty: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit loyalty rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("credit loyalty %s: balance changed concurrently", credit.CustomerID)
	}
	if _, err := q.ExecContext(ctx, `
INSERT INTO loyalty_history (user_id, event, points, occurred_at)
VALUES (?, ?, ?, ?)
`, credit.CustomerID, credit.Entry.Event, credit.Entry.Points.String(), toMillis(credit.Entry.Date)); err != nil {
		return fmt.Errorf("append loyalty history: %w", err)
	}
	return nil
}
