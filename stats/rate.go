package stats

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rate is a percentage rounded to 2 decimal places. It marshals to a bare
// JSON number.
type Rate struct {
	d decimal.Decimal
}

// Percent returns attended/total as a rate, or 0 when total is 0.
func Percent(attended, total int) Rate {
	return Rate{d: ratio(attended, total).Mul(hundred).Round(2)}
}

// AveragePercent averages per-student ratios (0..1) into a rate. An empty
// slice is 0.
func AveragePercent(ratios []decimal.Decimal) Rate {
	if len(ratios) == 0 {
		return Rate{d: decimal.Zero}
	}
	return Rate{d: decimal.Avg(ratios[0], ratios[1:]...).Mul(hundred).Round(2)}
}

// MeanRate averages already rounded rates.
func MeanRate(rates []Rate) Rate {
	if len(rates) == 0 {
		return Rate{d: decimal.Zero}
	}
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r.d)
	}
	return Rate{d: sum.Div(decimal.NewFromInt(int64(len(rates)))).Round(2)}
}

func ratio(n, d int) decimal.Decimal {
	if d == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(int64(d)))
}

func (r Rate) Decimal() decimal.Decimal { return r.d }

func (r Rate) Float64() float64 { return r.d.InexactFloat64() }

func (r Rate) String() string { return r.d.String() }

func (r Rate) Cmp(o Rate) int { return r.d.Cmp(o.d) }

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.d.String()), nil
}

func (r *Rate) UnmarshalJSON(b []byte) error {
	return r.d.UnmarshalJSON(b)
}
