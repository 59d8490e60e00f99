package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the checkout state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
)

// LineStatus tracks what happened to one purchased line.
type LineStatus string

const (
	LinePurchased LineStatus = "PURCHASED"
	LineExchanged LineStatus = "EXCHANGED"
	LineReturned  LineStatus = "RETURNED"
)

// Order is a confirmed checkout as seen by case workflows.
type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customerId"`
	CheckoutCode string      `json:"checkoutCode"`
	Status       OrderStatus `json:"status"`
	ConfirmedAt  *time.Time  `json:"confirmedAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	Lines        []OrderLine `json:"lines"`
}

// PurchasedAt is the instant the case window counts from.
func (o Order) PurchasedAt() time.Time {
	if o.ConfirmedAt != nil {
		return *o.ConfirmedAt
	}
	return o.CreatedAt
}

// FindLine locates a line by line id, or else by product id. When several
// lines carry the product, the first still PURCHASED one wins.
func (o Order) FindLine(itemID string) (OrderLine, bool) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return OrderLine{}, false
	}
	for _, line := range o.Lines {
		if line.ID == itemID {
			return line, true
		}
	}
	var (
		match OrderLine
		found bool
	)
	for _, line := range o.Lines {
		if line.ProductID != itemID {
			continue
		}
		if line.Status == LinePurchased {
			return line, true
		}
		if !found {
			match, found = line, true
		}
	}
	return match, found
}

// OrderLine is one purchased item on an order.
type OrderLine struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Status      LineStatus      `json:"status"`
	Fulfillment LineFulfillment `json:"fulfillment"`
}

// LineFulfillment is the metadata a completed case stamps on its order line.
type LineFulfillment struct {
	CaseID              string     `json:"caseId,omitempty"`
	ReplacementItemID   string     `json:"replacementItemId,omitempty"`
	ReplacementItemName string     `json:"replacementItemName,omitempty"`
	ReturnReason        string     `json:"returnReason,omitempty"`
	InspectionStatus    string     `json:"inspectionStatus,omitempty"`
	FulfillmentType     string     `json:"fulfillmentType,omitempty"`
	ValidatedAt         *time.Time `json:"validatedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// Product is a catalog item that can be scanned at the counter.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Barcode       string          `json:"barcode"`
	Price         decimal.Decimal `json:"price"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	SaleActive    bool            `json:"saleActive"`
	StockQuantity int             `json:"stockQuantity"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
}

// EffectivePrice is the active sale price when one applies, else the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SaleActive && p.SalePrice.IsPositive() {
		return p.SalePrice
	}
	return p.Price
}

// OnSale reports whether EffectivePrice comes from a sale.
func (p Product) OnSale() bool {
	return p.SaleActive && p.SalePrice.IsPositive()
}

// LoyaltyEntry is one line of a customer's loyalty history.
type LoyaltyEntry struct {
	Event  string          `json:"event"`
	Points decimal.Decimal `json:"points"`
	Date   time.Time       `json:"date"`
}

// LoyaltyEventEarn marks points credited by a return.
const LoyaltyEventEarn = "earn"
