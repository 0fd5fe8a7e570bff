// Package fees computes the guest-facing price breakdown for an organizer
// price. The same function backs the quote shown at checkout and the amount
// actually authorized, so the two can never drift apart.
package fees

import "math"

const (
	commissionRate = 0.05
	surchargeRate  = 0.015
	surchargeFixed = 0.25
)

// Breakdown is a quote in minor currency units. Each component is rounded
// to the cent independently before summing; amounts are persisted in cents
// so stored values carry no floating point drift.
type Breakdown struct {
	OwnerCents      int64 `json:"owner_cents"`
	CommissionCents int64 `json:"commission_cents"`
	SurchargeCents  int64 `json:"surcharge_cents"`
	TotalCents      int64 `json:"total_cents"`
}

// ServiceFeeCents is everything the guest pays on top of the organizer price
func (b Breakdown) ServiceFeeCents() int64 {
	return b.CommissionCents + b.SurchargeCents
}

// Quote computes the breakdown for an organizer price in major units
// (e.g. euros). Commission is 5% of the price, the gateway surcharge is
// 1.5% plus a fixed 0.25.
func Quote(price float64) Breakdown {
	owner := toCents(price)
	commission := toCents(price * commissionRate)
	surcharge := toCents(price*surchargeRate + surchargeFixed)

	return Breakdown{
		OwnerCents:      owner,
		CommissionCents: commission,
		SurchargeCents:  surcharge,
		TotalCents:      owner + commission + surcharge,
	}
}

func toCents(major float64) int64 {
	return int64(math.Round(major * 100))
}
