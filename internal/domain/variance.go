package domain

// VarianceDeadBand is the percentage below target that must be exceeded
// before a deficit is reported.
const VarianceDeadBand = -5.0

// Variance is an item's deviation from its minimum (target) stock.
type Variance struct {
	Quantity   int     `json:"varianceQuantity"`
	Percentage float64 `json:"variancePercentage"`
}

// CalculateVariance reports deficits steeper than the dead-band only.
// A zero minimum and any surplus both yield the zero Variance.
func CalculateVariance(current, minimum int) Variance {
	if minimum == 0 {
		return Variance{}
	}
	q := current - minimum
	p := float64(q) / float64(minimum) * 100
	if p > VarianceDeadBand {
		return Variance{}
	}
	return Variance{Quantity: q, Percentage: p}
}
