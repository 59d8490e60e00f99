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

// PutOrder inserts or replaces an order with its lines.
func (s *Store) PutOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.CustomerID) == "" {
		return fmt.Errorf("order id and customer id are required")
	}
	if strings.TrimSpace(order.CheckoutCode) == "" {
		return fmt.Errorf("order checkout code is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback order write: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO orders (id, customer_id, checkout_code, status, confirmed_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    customer_id = excluded.customer_id,
    checkout_code = excluded.checkout_code,
    status = excluded.status,
    confirmed_at = excluded.confirmed_at,
    created_at = excluded.created_at
`, order.ID, order.CustomerID, order.CheckoutCode, string(order.Status), toNullMillis(order.ConfirmedAt), toMillis(order.CreatedAt)); err != nil {
		return rollbackWith(fmt.Errorf("put order: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, order.ID); err != nil {
		return rollbackWith(fmt.Errorf("clear order lines: %w", err))
	}
	for idx, line := range order.Lines {
		if strings.TrimSpace(line.ID) == "" || strings.TrimSpace(line.ProductID) == "" {
			return rollbackWith(fmt.Errorf("order line %d requires id and product id", idx))
		}
		status := line.Status
		if status == "" {
			status = domain.LinePurchased
		}
		fulfillment, err := json.Marshal(line.Fulfillment)
		if err != nil {
			return rollbackWith(fmt.Errorf("encode line fulfillment: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO order_lines (order_id, id, position, product_id, name, sku, quantity, unit_price, status, fulfillment_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, order.ID, line.ID, idx, line.ProductID, line.Name, line.SKU, line.Quantity, line.UnitPrice.String(), string(status), string(fulfillment)); err != nil {
			return rollbackWith(fmt.Errorf("put order line %s: %w", line.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order write: %w", err)
	}
	return nil
}

// GetOrder loads an order with its lines.
func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Order{}, fmt.Errorf("storage is not configured")
	}
	return s.getOrderWhere(ctx, "id = ?", strings.TrimSpace(orderID))
}

// GetOrderByCheckoutCode loads an order by its human-readable code.
func (s *Store) GetOrderByCheckoutCode(ctx context.Context, checkoutCode string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Order{}, fmt.Errorf("storage is not configured")
	}
	return s.getOrderWhere(ctx, "checkout_code = ?", strings.TrimSpace(checkoutCode))
}

func (s *Store) getOrderWhere(ctx context.Context, predicate string, arg string) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		confirmedAt sql.NullInt64
		createdAt   int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, customer_id, checkout_code, status, confirmed_at, created_at
FROM orders
WHERE `+predicate, arg).Scan(&order.ID, &order.CustomerID, &order.CheckoutCode, &status, &confirmedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.ConfirmedAt = fromNullMillis(confirmedAt)
	order.CreatedAt = fromMillis(createdAt)

	lines, err := listOrderLines(ctx, s.sqlDB, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func listOrderLines(ctx context.Context, q execer, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, product_id, name, sku, quantity, unit_price, status, fulfillment_json
FROM order_lines
WHERE order_id = ?
ORDER BY position ASC
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			line        domain.OrderLine
			unitPrice   string
			status      string
			fulfillment string
		)
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Name, &line.SKU, &line.Quantity, &unitPrice, &status, &fulfillment); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if line.UnitPrice, err = parseDecimal("unit_price", unitPrice); err != nil {
			return nil, err
		}
		line.Status = domain.LineStatus(status)
		if strings.TrimSpace(fulfillment) != "" {
			if err := json.Unmarshal([]byte(fulfillment), &line.Fulfillment); err != nil {
				return nil, fmt.Errorf("decode line fulfillment: %w", err)
			}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}
