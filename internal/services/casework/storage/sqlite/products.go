package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

const productColumns = `id, name, sku, barcode, price, sale_price, sale_active, stock_quantity, deleted_at`

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(product.ID) == "" || strings.TrimSpace(product.Barcode) == "" {
		return fmt.Errorf("product id and barcode are required")
	}
	if product.StockQuantity < 0 {
		return fmt.Errorf("product stock must not be negative")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO products (`+productColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    sku = excluded.sku,
    barcode = excluded.barcode,
    price = excluded.price,
    sale_price = excluded.sale_price,
    sale_active = excluded.sale_active,
    stock_quantity = excluded.stock_quantity,
    deleted_at = excluded.deleted_at
`, product.ID, product.Name, product.SKU, product.Barcode, product.Price.String(), product.SalePrice.String(),
		product.SaleActive, product.StockQuantity, toNullMillis(product.DeletedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("put product %s: barcode %s: %w", product.ID, product.Barcode, domain.ErrConflict)
		}
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// GetProduct loads a product by id, including soft-deleted ones.
func (s *Store) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Product{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, strings.TrimSpace(productID))
	return scanProductRow(row)
}

// GetProductByBarcode loads the live product with a barcode.
func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Product{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+productColumns+`
FROM products
WHERE barcode = ? AND deleted_at IS NULL
`, strings.TrimSpace(barcode))
	return scanProductRow(row)
}

func scanProductRow(row *sql.Row) (domain.Product, error) {
	var (
		product          domain.Product
		price, salePrice string
		deletedAt        sql.NullInt64
	)
	err := row.Scan(&product.ID, &product.Name, &product.SKU, &product.Barcode, &price, &salePrice,
		&product.SaleActive, &product.StockQuantity, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if product.Price, err = parseDecimal("price", price); err != nil {
		return domain.Product{}, err
	}
	if product.SalePrice, err = parseDecimal("sale_price", salePrice); err != nil {
		return domain.Product{}, err
	}
	product.DeletedAt = fromNullMillis(deletedAt)
	return product, nil
}

// adjustStockExec applies one stock change. Decrements only match rows
// with enough stock left.
func adjustStockExec(ctx context.Context, q execer, change domain.StockChange) error {
	if change.Delta == 0 {
		return nil
	}
	result, err := q.ExecContext(ctx, `
UPDATE products
SET stock_quantity = stock_quantity + ?
WHERE id = ? AND stock_quantity + ? >= 0
`, change.Delta, change.ProductID, change.Delta)
	if err != nil {
		return fmt.Errorf("adjust stock %s: %w", change.ProductID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust stock rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, change.ProductID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("adjust stock %s: %w", change.ProductID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check product %s: %w", change.ProductID, err)
	}
	return fmt.Errorf("adjust stock %s: %w", change.ProductID, domain.ErrInsufficientStock)
}
