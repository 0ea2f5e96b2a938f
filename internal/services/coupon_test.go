package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/freshcut/internal/models"
)

func activeCoupon() *models.Coupon {
	return &models.Coupon{
		Code:           "MEAT50",
		DiscountType:   models.DiscountTypeFixed,
		DiscountValue:  50,
		MinOrderAmount: 500,
		ValidFrom:      time.Now().Add(-24 * time.Hour),
		ValidUntil:     time.Now().Add(24 * time.Hour),
		UsageLimit:     100,
		IsActive:       true,
	}
}

func TestEvaluateCouponFixed(t *testing.T) {
	result := EvaluateCoupon(activeCoupon(), 579, time.Now())
	assert.True(t, result.Valid)
	assert.Equal(t, 50.0, result.Discount)
}

func TestEvaluateCouponMinAmountBoundary(t *testing.T) {
	// Exactly the minimum is valid.
	result := EvaluateCoupon(activeCoupon(), 500, time.Now())
	assert.True(t, result.Valid)

	// One unit below is not.
	result = EvaluateCoupon(activeCoupon(), 499, time.Now())
	assert.False(t, result.Valid)
	assert.Equal(t, CouponReasonMinAmount, result.Reason)
}

func TestEvaluateCouponPercentageCap(t *testing.T) {
	coupon := activeCoupon()
	coupon.DiscountType = models.DiscountTypePercentage
	coupon.DiscountValue = 20
	coupon.MaxDiscount = 100

	result := EvaluateCoupon(coupon, 600, time.Now())
	assert.True(t, result.Valid)
	assert.Equal(t, 100.0, result.Discount)

	coupon.MaxDiscount = 0
	result = EvaluateCoupon(coupon, 600, time.Now())
	assert.Equal(t, 120.0, result.Discount)
}

func TestEvaluateCouponRejections(t *testing.T) {
	inactive := activeCoupon()
	inactive.IsActive = false
	assert.Equal(t, CouponReasonNotFound, EvaluateCoupon(inactive, 600, time.Now()).Reason)

	expired := activeCoupon()
	expired.ValidUntil = time.Now().Add(-time.Hour)
	assert.Equal(t, CouponReasonExpired, EvaluateCoupon(expired, 600, time.Now()).Reason)

	notYet := activeCoupon()
	notYet.ValidFrom = time.Now().Add(time.Hour)
	assert.Equal(t, CouponReasonExpired, EvaluateCoupon(notYet, 600, time.Now()).Reason)

	exhausted := activeCoupon()
	exhausted.UsageCount = exhausted.UsageLimit
	assert.Equal(t, CouponReasonUsageLimit, EvaluateCoupon(exhausted, 600, time.Now()).Reason)
}

func TestValidatorLookupIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	coupon := activeCoupon()
	require.NoError(t, db.Create(coupon).Error)

	validator := NewCouponValidator(db)
	result := validator.Validate(context.Background(), "  meat50 ", 579)
	assert.True(t, result.Valid)
	assert.Equal(t, 50.0, result.Discount)
}

func TestRedeemCouponIncrementsOnce(t *testing.T) {
	db := newTestDB(t)
	coupon := activeCoupon()
	coupon.UsageLimit = 2
	require.NoError(t, db.Create(coupon).Error)

	require.NoError(t, RedeemCoupon(db, coupon.ID))
	require.NoError(t, RedeemCoupon(db, coupon.ID))

	var stored models.Coupon
	require.NoError(t, db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 2, stored.UsageCount)

	// The limit is enforced atomically by the guarded update.
	err := RedeemCoupon(db, coupon.ID)
	assert.ErrorIs(t, err, ErrCouponExhausted)

	require.NoError(t, db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 2, stored.UsageCount)
}

func TestRedeemCouponUnlimited(t *testing.T) {
	db := newTestDB(t)
	coupon := activeCoupon()
	coupon.UsageLimit = 0
	require.NoError(t, db.Create(coupon).Error)

	for i := 0; i < 5; i++ {
		require.NoError(t, RedeemCoupon(db, coupon.ID))
	}

	var stored models.Coupon
	require.NoError(t, db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 5, stored.UsageCount)
}
