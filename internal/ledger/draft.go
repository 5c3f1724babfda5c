package ledger

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

// Text is form input. It accepts JSON strings and JSON numbers so clients
// may send either.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// ItemDraft is the loose input of Create. Numeric fields that do not parse
// become 0.
type ItemDraft struct {
	Name         Text `json:"name"`
	ProductCode  Text `json:"productCode"`
	Category     Text `json:"category"`
	Unit         Text `json:"unit"`
	CurrentStock Text `json:"currentStock"`
	MinimumStock Text `json:"minimumStock"`
	MaximumStock Text `json:"maximumStock"`
	Usage        Text `json:"usage"`
	Price        Text `json:"price"`
}

func (d ItemDraft) item() domain.Item {
	it := domain.Item{
		Name:         strings.TrimSpace(string(d.Name)),
		ProductCode:  strings.TrimSpace(string(d.ProductCode)),
		Category:     category(d.Category),
		Unit:         strings.TrimSpace(string(d.Unit)),
		CurrentStock: domain.ParseCount(string(d.CurrentStock)),
		MaximumStock: domain.ParseCount(string(d.MaximumStock)),
		Usage:        domain.ParseCount(string(d.Usage)),
		Price:        parsePrice(d.Price),
	}
	it.MinimumStock = seedMinimum(d.MinimumStock, it.CurrentStock)
	return it
}

// ItemPatch carries the fields of an Update; nil means unchanged.
type ItemPatch struct {
	Name         *Text `json:"name"`
	ProductCode  *Text `json:"productCode"`
	Category     *Text `json:"category"`
	Unit         *Text `json:"unit"`
	CurrentStock *Text `json:"currentStock"`
	MinimumStock *Text `json:"minimumStock"`
	MaximumStock *Text `json:"maximumStock"`
	Usage        *Text `json:"usage"`
	Price        *Text `json:"price"`
}

func (p ItemPatch) apply(it *domain.Item) error {
	verr := &domain.ValidationError{}
	if p.Name != nil {
		it.Name = strings.TrimSpace(string(*p.Name))
		requireText(verr, "name", it.Name)
	}
	if p.ProductCode != nil {
		it.ProductCode = strings.TrimSpace(string(*p.ProductCode))
		requireText(verr, "productCode", it.ProductCode)
	}
	if p.Unit != nil {
		it.Unit = strings.TrimSpace(string(*p.Unit))
		requireText(verr, "unit", it.Unit)
	}
	if p.Category != nil {
		it.Category = category(*p.Category)
	}
	if p.CurrentStock != nil {
		it.CurrentStock = domain.ParseCount(string(*p.CurrentStock))
	}
	if p.MinimumStock != nil {
		it.MinimumStock = seedMinimum(*p.MinimumStock, it.CurrentStock)
	}
	if p.MaximumStock != nil {
		it.MaximumStock = domain.ParseCount(string(*p.MaximumStock))
	}
	if p.Usage != nil {
		it.Usage = domain.ParseCount(string(*p.Usage))
	}
	if p.Price != nil {
		it.Price = parsePrice(*p.Price)
	}
	return verr.Err()
}

// ItemFilter is the inventory screen search: a case-insensitive substring
// of name, product code or category, and an exact category.
type ItemFilter struct {
	Search   string
	Category string
}

func (f ItemFilter) Match(it domain.Item) bool {
	if f.Category != "" && it.Category != f.Category {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Name), q) ||
		strings.Contains(strings.ToLower(it.ProductCode), q) ||
		strings.Contains(strings.ToLower(it.Category), q)
}

func category(t Text) string {
	if c := strings.TrimSpace(string(t)); c != "" {
		return c
	}
	return domain.DefaultCategory
}

// seedMinimum falls back to the current stock when the minimum is missing,
// zero or not a number.
func seedMinimum(t Text, current int) int {
	if m := domain.ParseCount(string(t)); m != 0 {
		return m
	}
	return current
}

func parsePrice(t Text) decimal.Decimal {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
