// Package seed loads YAML fixture manifests of customers, products and
// orders into the case database for local development.
package seed

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/counterdesk/internal/platform/money"
	"github.com/louisbranch/counterdesk/internal/services/casework/domain"
)

//go:embed manifests/*.yaml
var manifestFS embed.FS

// Manifest declares one fixture set.
type Manifest struct {
	Name     string            `yaml:"name"`
	Users    []ManifestUser    `yaml:"users"`
	Products []ManifestProduct `yaml:"products"`
	Orders   []ManifestOrder   `yaml:"orders"`
}

// ManifestUser is one customer with a loyalty balance.
type ManifestUser struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	LoyaltyPoints string `yaml:"loyaltyPoints"`
}

// ManifestProduct is one catalog entry.
type ManifestProduct struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	SKU        string `yaml:"sku"`
	Barcode    string `yaml:"barcode"`
	Price      string `yaml:"price"`
	SalePrice  string `yaml:"salePrice"`
	SaleActive bool   `yaml:"saleActive"`
	Stock      int    `yaml:"stock"`
}

// ManifestOrder is one confirmed checkout. ConfirmedDaysAgo is relative to
// the seeding run so fixtures stay inside the case windows.
type ManifestOrder struct {
	ID               string              `yaml:"id"`
	CustomerID       string              `yaml:"customerId"`
	CheckoutCode     string              `yaml:"checkoutCode"`
	ConfirmedDaysAgo int                 `yaml:"confirmedDaysAgo"`
	Lines            []ManifestOrderLine `yaml:"lines"`
}

// ManifestOrderLine references a product; the line price is the product's
// effective price at seeding time unless UnitPrice is set.
type ManifestOrderLine struct {
	ID        string `yaml:"id"`
	ProductID string `yaml:"productId"`
	Quantity  int    `yaml:"quantity"`
	UnitPrice string `yaml:"unitPrice"`
}

// Writer is the storage surface the runner needs.
type Writer interface {
	PutUser(ctx context.Context, userID, name string, points decimal.Decimal, createdAt time.Time) error
	PutProduct(ctx context.Context, product domain.Product) error
	PutOrder(ctx context.Context, order domain.Order) error
}

// ListManifests returns the names of the bundled manifests.
func ListManifests() ([]string, error) {
	entries, err := manifestFS.ReadDir("manifests")
	if err != nil {
		return nil, fmt.Errorf("read manifests: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadBundled decodes one of the bundled manifests by name.
func LoadBundled(name string) (Manifest, error) {
	data, err := manifestFS.ReadFile(path.Join("manifests", strings.TrimSpace(name)+".yaml"))
	if err != nil {
		return Manifest{}, fmt.Errorf("unknown manifest %q", name)
	}
	return Decode(data)
}

// LoadFile decodes a manifest from disk.
func LoadFile(filePath string) (Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data)
}

// Decode parses manifest YAML, rejecting unknown keys.
func Decode(data []byte) (Manifest, error) {
	var manifest Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, errors.New("manifest is empty")
		}
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

// Runner applies manifests. Applying the same manifest twice converges on
// the same rows.
type Runner struct {
	store   Writer
	now     func() time.Time
	out     io.Writer
	verbose bool
}

// NewRunner builds a runner; out receives progress lines when verbose.
func NewRunner(store Writer, out io.Writer, verbose bool) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{store: store, now: time.Now, out: out, verbose: verbose}
}

// Apply writes users, then products, then orders.
func (r *Runner) Apply(ctx context.Context, manifest Manifest) error {
	if r == nil || r.store == nil {
		return errors.New("seed store is required")
	}
	now := r.now().UTC()

	for _, user := range manifest.Users {
		if strings.TrimSpace(user.ID) == "" {
			return errors.New("user id is required")
		}
		points, err := parseAmount(user.LoyaltyPoints, "user "+user.ID+" loyaltyPoints")
		if err != nil {
			return err
		}
		if err := r.store.PutUser(ctx, user.ID, user.Name, points, now); err != nil {
			return fmt.Errorf("put user %s: %w", user.ID, err)
		}
		r.logf("user %s", user.ID)
	}

	products := make(map[string]domain.Product, len(manifest.Products))
	for _, item := range manifest.Products {
		product, err := item.product()
		if err != nil {
			return err
		}
		if err := r.store.PutProduct(ctx, product); err != nil {
			return fmt.Errorf("put product %s: %w", product.ID, err)
		}
		products[product.ID] = product
		r.logf("product %s stock=%d", product.ID, product.StockQuantity)
	}

	for _, item := range manifest.Orders {
		order, err := item.order(now, products)
		if err != nil {
			return err
		}
		if err := r.store.PutOrder(ctx, order); err != nil {
			return fmt.Errorf("put order %s: %w", order.ID, err)
		}
		r.logf("order %s lines=%d", order.ID, len(order.Lines))
	}

	fmt.Fprintf(r.out, "Seeded %q: %d users, %d products, %d orders\n",
		manifest.Name, len(manifest.Users), len(manifest.Products), len(manifest.Orders))
	return nil
}

func (r *Runner) logf(format string, args ...any) {
	if !r.verbose {
		return
	}
	fmt.Fprintf(r.out, "  "+format+"\n", args...)
}

func (p ManifestProduct) product() (domain.Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}
	price, err := parseAmount(p.Price, "product "+p.ID+" price")
	if err != nil {
		return domain.Product{}, err
	}
	salePrice, err := parseAmount(p.SalePrice, "product "+p.ID+" salePrice")
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Barcode:       p.Barcode,
		Price:         price,
		SalePrice:     salePrice,
		SaleActive:    p.SaleActive,
		StockQuantity: p.Stock,
	}, nil
}

func (o ManifestOrder) order(now time.Time, products map[string]domain.Product) (domain.Order, error) {
	if strings.TrimSpace(o.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if o.ConfirmedDaysAgo < 0 {
		return domain.Order{}, fmt.Errorf("order %s confirmedDaysAgo must not be negative", o.ID)
	}
	confirmedAt := now.Add(-time.Duration(o.ConfirmedDaysAgo) * 24 * time.Hour)
	order := domain.Order{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		CheckoutCode: o.CheckoutCode,
		Status:       domain.OrderConfirmed,
		ConfirmedAt:  &confirmedAt,
		CreatedAt:    confirmedAt,
	}
	for _, line := range o.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("order %s line %s references unknown product %q", o.ID, line.ID, line.ProductID)
		}
		unitPrice := product.EffectivePrice()
		if strings.TrimSpace(line.UnitPrice) != "" {
			parsed, err := parseAmount(line.UnitPrice, "order "+o.ID+" unitPrice")
			if err != nil {
				return domain.Order{}, err
			}
			unitPrice = parsed
		}
		quantity := line.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:        line.ID,
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Status:    domain.LinePurchased,
		})
	}
	return order, nil
}

func parseAmount(raw, label string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	value, err := money.Parse(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", label, err)
	}
	return value, nil
}
