package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteRoundsComponentsIndependently(t *testing.T) {
	// 5.00: commission 0.25, surcharge 0.325 rounds up to 0.33
	b := Quote(5.00)

	assert.Equal(t, int64(500), b.OwnerCents)
	assert.Equal(t, int64(25), b.CommissionCents)
	assert.Equal(t, int64(33), b.SurchargeCents)
	assert.Equal(t, int64(558), b.TotalCents)
	assert.Equal(t, int64(58), b.ServiceFeeCents())
}

func TestQuoteIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Quote(19.99), Quote(19.99))
	}
}

func TestQuoteTotalIsSumOfRoundedComponents(t *testing.T) {
	prices := []float64{1, 2.50, 9.99, 10, 33.33, 100, 249.95}
	for _, p := range prices {
		b := Quote(p)
		assert.Equal(t, b.OwnerCents+b.CommissionCents+b.SurchargeCents, b.TotalCents,
			"price %v", p)
	}
}

func TestQuoteSmallPrice(t *testing.T) {
	// 2.00: commission 0.10, surcharge 0.03+0.25=0.28
	b := Quote(2.00)

	assert.Equal(t, int64(200), b.OwnerCents)
	assert.Equal(t, int64(10), b.CommissionCents)
	assert.Equal(t, int64(28), b.SurchargeCents)
	assert.Equal(t, int64(238), b.TotalCents)
}
