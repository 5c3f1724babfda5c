// Package analytics derives the dashboard from the current item set. It
// holds no state and never fails: empty or degenerate input yields zeros.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

const (
	// NotAvailable names a missing top category or top seller.
	NotAvailable = "N/A"

	topPerformers = 5
)

var (
	highValueFloor   = decimal.NewFromInt(1000)
	mediumValueFloor = decimal.NewFromInt(100)
	priceLowCeil     = decimal.NewFromInt(100)
	priceMediumCeil  = decimal.NewFromInt(500)
	priceHighCeil    = decimal.NewFromInt(1000)
)

type Dashboard struct {
	TotalItems     int              `json:"totalItems"`
	TotalValue     decimal.Decimal  `json:"totalValue"`
	LowStock       int              `json:"lowStock"`
	OutOfStock     int              `json:"outOfStock"`
	Categories     int              `json:"categories"`
	HighValue      int              `json:"highValue"`
	TotalSales     decimal.Decimal  `json:"totalSales"`
	TopCategory    string           `json:"topCategory"`
	TopSellingItem string           `json:"topSellingItem"`
	AveragePrice   decimal.Decimal  `json:"averagePrice"`
	HighestPrice   decimal.Decimal  `json:"highestPrice"`
	LowestPrice    decimal.Decimal  `json:"lowestPrice"`
	PriceRanges    PriceRanges      `json:"priceRanges"`
	MonthlyGrowth  float64          `json:"monthlyGrowth"`
	Inventory      InventoryMetrics `json:"inventoryMetrics"`
}

type InventoryMetrics struct {
	TurnoverRate           float64                        `json:"turnoverRate"`
	Health                 Health                         `json:"inventoryHealth"`
	StockValueByCategory   map[string]decimal.Decimal     `json:"stockValueByCategory"`
	TopPerformingItems     []Performer                    `json:"topPerformingItems"`
	CategoryPerformance    map[string]CategoryPerformance `json:"categoryPerformance"`
	StockValueDistribution ValueDistribution              `json:"stockValueDistribution"`
}

type Health struct {
	Optimal      int `json:"optimal"`
	Overstocked  int `json:"overstocked"`
	Understocked int `json:"understocked"`
	DeadStock    int `json:"deadStock"`
}

type Performer struct {
	Name  string          `json:"name"`
	Sales decimal.Decimal `json:"sales"`
	Stock int             `json:"stock"`
}

type CategoryPerformance struct {
	TotalSales decimal.Decimal `json:"totalSales"`
	ItemCount  int             `json:"itemCount"`
	StockValue decimal.Decimal `json:"stockValue"`
}

type ValueDistribution struct {
	High   int `json:"highValue"`
	Medium int `json:"mediumValue"`
	Low    int `json:"lowValue"`
}

type PriceRanges struct {
	Low     int `json:"low"`
	Medium  int `json:"medium"`
	High    int `json:"high"`
	Premium int `json:"premium"`
}

// Aggregate computes the dashboard for items. Sales, when given, add to
// the usage of the item they reference.
func Aggregate(items []domain.Item, sales ...domain.Sale) Dashboard {
	items = withSales(items, sales)

	d := Dashboard{
		TotalItems:     len(items),
		TotalValue:     decimal.Zero,
		TotalSales:     decimal.Zero,
		TopCategory:    NotAvailable,
		TopSellingItem: NotAvailable,
		AveragePrice:   decimal.Zero,
		HighestPrice:   decimal.Zero,
		LowestPrice:    decimal.Zero,
		Inventory: InventoryMetrics{
			StockValueByCategory: map[string]decimal.Decimal{},
			CategoryPerformance:  map[string]CategoryPerformance{},
			TopPerformingItems:   []Performer{},
		},
	}
	if len(items) == 0 {
		return d
	}

	var (
		totalUsage int
		totalStock int
		priceSum   = decimal.Zero
		bestSales  decimal.Decimal
		catOrder   []string
		catPrice   = map[string]decimal.Decimal{}
		catCount   = map[string]int{}
		inv        = &d.Inventory
	)
	for i, it := range items {
		value := it.StockValue()
		sales := it.Sales()

		d.TotalValue = d.TotalValue.Add(value)
		d.TotalSales = d.TotalSales.Add(sales)
		totalUsage += it.Usage
		totalStock += it.CurrentStock
		priceSum = priceSum.Add(it.Price)

		switch {
		case it.CurrentStock == 0:
			d.OutOfStock++
		case it.CurrentStock < it.MinimumStock:
			d.LowStock++
		}
		if value.GreaterThan(highValueFloor) {
			d.HighValue++
		}

		if i == 0 || sales.GreaterThan(bestSales) {
			bestSales = sales
			d.TopSellingItem = it.Name
		}
		if it.Price.GreaterThan(d.HighestPrice) {
			d.HighestPrice = it.Price
		}
		if it.Price.IsPositive() && (d.LowestPrice.IsZero() || it.Price.LessThan(d.LowestPrice)) {
			d.LowestPrice = it.Price
		}
		d.PriceRanges.add(it.Price)

		inv.Health.add(it)
		inv.StockValueDistribution.add(value)

		if it.Category != "" {
			if _, ok := catCount[it.Category]; !ok {
				catOrder = append(catOrder, it.Category)
				catPrice[it.Category] = decimal.Zero
				inv.StockValueByCategory[it.Category] = decimal.Zero
				inv.CategoryPerformance[it.Category] = CategoryPerformance{TotalSales: decimal.Zero, StockValue: decimal.Zero}
			}
			catCount[it.Category]++
			catPrice[it.Category] = catPrice[it.Category].Add(it.Price)
			inv.StockValueByCategory[it.Category] = inv.StockValueByCategory[it.Category].Add(value)
			cp := inv.CategoryPerformance[it.Category]
			cp.TotalSales = cp.TotalSales.Add(sales)
			cp.ItemCount++
			cp.StockValue = cp.StockValue.Add(value)
			inv.CategoryPerformance[it.Category] = cp
		}
	}

	n := len(items)
	d.Categories = len(catOrder)
	d.AveragePrice = priceSum.Div(decimal.NewFromInt(int64(n)))
	d.MonthlyGrowth = float64(totalUsage) / float64(n)
	d.TopCategory = topCategory(catOrder, catPrice, catCount)

	avgStock := float64(totalStock) / float64(n)
	if avgStock > 0 {
		inv.TurnoverRate = float64(totalUsage) / avgStock * 100
	}
	inv.TopPerformingItems = topPerforming(items)
	return d
}

// topCategory is the category with the highest average price. The first
// category seen wins a tie.
func topCategory(order []string, sum map[string]decimal.Decimal, count map[string]int) string {
	best := NotAvailable
	var bestAvg decimal.Decimal
	for i, c := range order {
		avg := sum[c].Div(decimal.NewFromInt(int64(count[c])))
		if i == 0 || avg.GreaterThan(bestAvg) {
			best, bestAvg = c, avg
		}
	}
	return best
}

func topPerforming(items []domain.Item) []Performer {
	ranked := make([]domain.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Sales().GreaterThan(ranked[j].Sales())
	})
	if len(ranked) > topPerformers {
		ranked = ranked[:topPerformers]
	}
	out := make([]Performer, 0, len(ranked))
	for _, it := range ranked {
		out = append(out, Performer{Name: it.Name, Sales: it.Sales(), Stock: it.CurrentStock})
	}
	return out
}

func (h *Health) add(it domain.Item) {
	ceiling := it.MaximumStock
	if ceiling == 0 {
		ceiling = it.MinimumStock * 2
	}
	switch {
	case it.CurrentStock > ceiling:
		h.Overstocked++
	case it.CurrentStock >= it.MinimumStock:
		h.Optimal++
	case it.CurrentStock > 0:
		h.Understocked++
	}
	if it.Usage == 0 && it.CurrentStock > 0 {
		h.DeadStock++
	}
}

func (v *ValueDistribution) add(value decimal.Decimal) {
	switch {
	case value.GreaterThan(highValueFloor):
		v.High++
	case value.GreaterThanOrEqual(mediumValueFloor):
		v.Medium++
	default:
		v.Low++
	}
}

func (p *PriceRanges) add(price decimal.Decimal) {
	switch {
	case price.LessThanOrEqual(priceLowCeil):
		p.Low++
	case price.LessThanOrEqual(priceMediumCeil):
		p.Medium++
	case price.LessThanOrEqual(priceHighCeil):
		p.High++
	default:
		p.Premium++
	}
}

func withSales(items []domain.Item, sales []domain.Sale) []domain.Item {
	if len(sales) == 0 {
		return items
	}
	byID := make(map[string]int, len(sales))
	byCode := make(map[string]int, len(sales))
	for _, s := range sales {
		if s.Quantity <= 0 {
			continue
		}
		if s.ItemID != "" {
			byID[s.ItemID] += s.Quantity
		} else if s.ProductCode != "" {
			byCode[s.ProductCode] += s.Quantity
		}
	}
	out := make([]domain.Item, len(items))
	for i, it := range items {
		it.Usage += byID[it.ID] + byCode[it.ProductCode]
		out[i] = it
	}
	return out
}
