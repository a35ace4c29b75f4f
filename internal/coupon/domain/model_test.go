package domain

import "testing"

func TestDiscountFor(t *testing.T) {
	cases := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{"ten percent", Coupon{Type: TypePercentage, Value: 10}, 8000, 800},
		{"percentage rounds half up", Coupon{Type: TypePercentage, Value: 15}, 333, 50},
		{"fixed amount", Coupon{Type: TypeFixed, Value: 500}, 8000, 500},
		{"fixed clamped to subtotal", Coupon{Type: TypeFixed, Value: 10000}, 8000, 8000},
		{"hundred percent", Coupon{Type: TypePercentage, Value: 100}, 8000, 8000},
		{"zero subtotal", Coupon{Type: TypePercentage, Value: 10}, 0, 0},
		{"negative value", Coupon{Type: TypeFixed, Value: -100}, 8000, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coupon.DiscountFor(tc.subtotal); got != tc.want {
				t.Fatalf("DiscountFor(%d) = %d, want %d", tc.subtotal, got, tc.want)
			}
		})
	}
}
