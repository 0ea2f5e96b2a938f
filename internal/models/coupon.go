package models

import "time"

// Coupon discount shapes.
const (
	DiscountTypeFixed      = "fixed"
	DiscountTypePercentage = "percentage"
)

// Coupon is a discount code. UsageCount is incremented atomically once per
// successful order creation, never for orders that did not complete.
type Coupon struct {
	BaseModel
	Code           string    `gorm:"uniqueIndex" json:"code"`
	Description    string    `json:"description"`
	DiscountType   string    `json:"discount_type"`
	DiscountValue  float64   `json:"discount_value"`
	MaxDiscount    float64   `json:"max_discount"`
	MinOrderAmount float64   `json:"min_order_amount"`
	ValidFrom      time.Time `json:"valid_from"`
	ValidUntil     time.Time `json:"valid_until"`
	UsageLimit     int       `json:"usage_limit"`
	UsageCount     int       `json:"usage_count"`
	IsActive       bool      `json:"is_active"`
}
