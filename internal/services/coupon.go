package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/models"
)

// ErrCouponExhausted is returned by Redeem when the usage limit was reached
// between validation and redemption.
var ErrCouponExhausted = errors.New("coupon usage limit reached")

// Coupon rejection reasons, user-facing.
const (
	CouponReasonNotFound   = "coupon not found or inactive"
	CouponReasonExpired    = "coupon is outside its validity window"
	CouponReasonMinAmount  = "order amount is below the coupon minimum"
	CouponReasonUsageLimit = "coupon usage limit reached"
)

// CouponResult is the outcome of evaluating a code against an order amount.
// Invalid codes are a result, not an error.
type CouponResult struct {
	Valid    bool           `json:"valid"`
	Reason   string         `json:"reason,omitempty"`
	Discount float64        `json:"discount"`
	Coupon   *models.Coupon `json:"-"`
}

// CouponValidator evaluates discount codes against active coupons.
type CouponValidator struct {
	db *gorm.DB
}

func NewCouponValidator(db *gorm.DB) *CouponValidator {
	return &CouponValidator{db: db}
}

// NormalizeCouponCode makes code lookup case-insensitive.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EvaluateCoupon checks one coupon against an order amount at a point in
// time and computes the discount it would grant.
func EvaluateCoupon(coupon *models.Coupon, amount float64, now time.Time) CouponResult {
	if coupon == nil || !coupon.IsActive {
		return CouponResult{Reason: CouponReasonNotFound}
	}
	if now.Before(coupon.ValidFrom) || now.After(coupon.ValidUntil) {
		return CouponResult{Reason: CouponReasonExpired}
	}
	if amount < coupon.MinOrderAmount {
		return CouponResult{Reason: CouponReasonMinAmount}
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return CouponResult{Reason: CouponReasonUsageLimit}
	}

	discount := coupon.DiscountValue
	if coupon.DiscountType == models.DiscountTypePercentage {
		discount = amount * coupon.DiscountValue / 100
		if coupon.MaxDiscount > 0 {
			discount = math.Min(discount, coupon.MaxDiscount)
		}
	}

	return CouponResult{
		Valid:    true,
		Discount: RoundRupees(discount),
		Coupon:   coupon,
	}
}

// Validate looks up a code and evaluates it against the proposed amount.
func (v *CouponValidator) Validate(ctx context.Context, code string, amount float64) CouponResult {
	var coupon models.Coupon
	err := v.db.WithContext(ctx).
		Where("code = ?", NormalizeCouponCode(code)).
		First(&coupon).Error
	if err != nil {
		return CouponResult{Reason: CouponReasonNotFound}
	}

	return EvaluateCoupon(&coupon, amount, time.Now())
}

// RedeemCoupon increments the usage counter exactly once, atomically, and
// only while the limit is not exhausted. It must run inside the same
// transaction that creates the order so a failed order never consumes a use.
func RedeemCoupon(tx *gorm.DB, couponID uuid.UUID) error {
	res := tx.Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", couponID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCouponExhausted
	}
	return nil
}
