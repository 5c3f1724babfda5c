package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

const DefaultCategory = "Tools"

type Item struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"userId"`
	Name               string          `json:"name"`
	ProductCode        string          `json:"productCode"`
	Category           string          `json:"category"`
	Unit               string          `json:"unit"`
	CurrentStock       int             `json:"currentStock"`
	MinimumStock       int             `json:"minimumStock"`
	MaximumStock       int             `json:"maximumStock,omitempty"`
	Usage              int             `json:"usage"`
	Price              decimal.Decimal `json:"price"`
	VarianceQuantity   int             `json:"varianceQuantity"`
	VariancePercentage float64         `json:"variancePercentage"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastUpdated        time.Time       `json:"lastUpdated"`
	Version            int64           `json:"version"`
}

// StockValue is price × currentStock.
func (it Item) StockValue() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.CurrentStock)))
}

// Sales is price × usage.
func (it Item) Sales() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Usage)))
}

// Recompute refreshes the derived variance fields.
func (it *Item) Recompute() {
	v := CalculateVariance(it.CurrentStock, it.MinimumStock)
	it.VarianceQuantity = v.Quantity
	it.VariancePercentage = v.Percentage
}

// Validate checks the invariants every stored item must hold.
func (it Item) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(it.Name) == "" {
		verr.Add("name", "required")
	}
	if strings.TrimSpace(it.ProductCode) == "" {
		verr.Add("productCode", "required")
	}
	if it.CurrentStock < 0 {
		verr.Add("currentStock", "must not be negative")
	}
	if it.MinimumStock < 0 {
		verr.Add("minimumStock", "must not be negative")
	}
	if it.MaximumStock < 0 {
		verr.Add("maximumStock", "must not be negative")
	}
	if it.Usage < 0 {
		verr.Add("usage", "must not be negative")
	}
	if it.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	return verr.Err()
}

// itemDoc is the stored shape of an item.
type itemDoc struct {
	UserID             string          `json:"userId"`
	Name               string          `json:"name"`
	ProductCode        string          `json:"productCode"`
	Category           string          `json:"category"`
	Unit               string          `json:"unit"`
	CurrentStock       looseInt        `json:"currentStock"`
	MinimumStock       looseInt        `json:"minimumStock"`
	MaximumStock       looseInt        `json:"maximumStock,omitempty"`
	Usage              looseInt        `json:"usage"`
	Price              decimal.Decimal `json:"price"`
	VarianceQuantity   looseInt        `json:"varianceQuantity"`
	VariancePercentage float64         `json:"variancePercentage"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastUpdated        time.Time       `json:"lastUpdated"`
}

// DecodeItem converts a stored document into an Item. Malformed documents
// are rejected with a ValidationError.
func DecodeItem(doc docstore.Document) (Item, error) {
	var d itemDoc
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return Item{}, NewValidationError("document", fmt.Sprintf("item %s: %v", doc.ID, err))
	}
	it := Item{
		ID:                 doc.ID,
		UserID:             d.UserID,
		Name:               d.Name,
		ProductCode:        d.ProductCode,
		Category:           d.Category,
		Unit:               d.Unit,
		CurrentStock:       int(d.CurrentStock),
		MinimumStock:       int(d.MinimumStock),
		MaximumStock:       int(d.MaximumStock),
		Usage:              int(d.Usage),
		Price:              d.Price,
		VarianceQuantity:   int(d.VarianceQuantity),
		VariancePercentage: d.VariancePercentage,
		CreatedAt:          d.CreatedAt,
		LastUpdated:        d.LastUpdated,
		Version:            doc.Version,
	}
	if err := it.Validate(); err != nil {
		return Item{}, err
	}
	return it, nil
}

// EncodeItem renders the stored shape of it. ID and Version are owned by
// the store and are not part of the data.
func EncodeItem(it Item) (json.RawMessage, error) {
	return json.Marshal(itemDoc{
		UserID:             it.UserID,
		Name:               it.Name,
		ProductCode:        it.ProductCode,
		Category:           it.Category,
		Unit:               it.Unit,
		CurrentStock:       looseInt(it.CurrentStock),
		MinimumStock:       looseInt(it.MinimumStock),
		MaximumStock:       looseInt(it.MaximumStock),
		Usage:              looseInt(it.Usage),
		Price:              it.Price,
		VarianceQuantity:   looseInt(it.VarianceQuantity),
		VariancePercentage: it.VariancePercentage,
		CreatedAt:          it.CreatedAt,
		LastUpdated:        it.LastUpdated,
	})
}
