package domain

import catalogdomain "github.com/billfold/billfold/internal/catalog/domain"

// Longer commitments earn a discount on the per-month rate: quarterly
// bills three months at 95%, annual bills twelve months at 85%.
const (
	quarterlyPct = 95
	annualPct    = 85
)

// CalculatePrice returns the charge in minor units for a line at the
// given cycle. Multiplication happens before the percentage so the
// half-up rounding is applied once, on the final amount.
func CalculatePrice(unitPrice int64, quantity int64, cycle catalogdomain.BillingCycle) int64 {
	if unitPrice <= 0 || quantity <= 0 {
		return 0
	}
	base := unitPrice * quantity
	switch cycle {
	case catalogdomain.CycleQuarterly:
		return roundPct(base*3, quarterlyPct)
	case catalogdomain.CycleAnnual:
		return roundPct(base*12, annualPct)
	default:
		return base
	}
}

func roundPct(amount int64, pct int64) int64 {
	return (amount*pct + 50) / 100
}
