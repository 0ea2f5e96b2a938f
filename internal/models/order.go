package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is the priced, stateful record a checkout produces. Items are frozen
// snapshots owned by the order, not live references to catalog products.
// Invariant: TotalAmount == Subtotal + DeliveryFee - Discount, never negative.
type Order struct {
	BaseModel
	UserID              uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	User                *User           `json:"user,omitempty"`
	ShopID              *uuid.UUID      `gorm:"type:uuid" json:"shop_id"`
	OrderNumber         string          `gorm:"uniqueIndex" json:"order_number"`
	Status              string          `json:"status"`
	StatusNote          string          `json:"status_note"`
	PlacedAt            time.Time       `json:"placed_at"`
	Subtotal            float64         `json:"subtotal"`
	DeliveryFee         float64         `json:"delivery_fee"`
	Discount            float64         `json:"discount"`
	TotalAmount         float64         `json:"total_amount"`
	Currency            string          `json:"currency"`
	CouponCode          string          `json:"coupon_code"`
	VerificationCode    string          `json:"verification_code,omitempty"`
	DeliveredAt         *time.Time      `json:"delivered_at"`
	PaymentMethod       string          `json:"payment_method"`
	DeliveryAddressID   *uuid.UUID      `gorm:"type:uuid" json:"delivery_address_id"`
	DeliveryAddressLine string          `json:"delivery_address_line"`
	DeliveryCity        string          `json:"delivery_city"`
	AgentName           string          `json:"agent_name"`
	AgentPhone          string          `json:"agent_phone"`
	Instructions        string          `json:"instructions"`
	Items               []OrderItem     `json:"items,omitempty"`
	Timeline            []TimelineEvent `json:"timeline,omitempty"`
}

// OrderItem is a line snapshot copied from the cart at order time,
// independent of later catalog changes.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName string     `json:"product_name"`
	Weight      string     `json:"weight"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	LinePrice   float64    `json:"line_price"`
	Image       string     `json:"image"`
}

// TimelineEvent is one append-only entry in an order's status log.
// Rows are never edited or deleted.
type TimelineEvent struct {
	BaseModel
	OrderID     uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	Stage       string    `json:"stage"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OccurredAt  time.Time `json:"occurred_at"`
}
