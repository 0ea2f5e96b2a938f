package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/models"
)

func newTestReconciler(t *testing.T, db *gorm.DB) *PaymentReconciler {
	t.Helper()
	gateway := NewRazorpayClient("key_id", "merchant_secret", "")
	return NewPaymentReconciler(db, NewOrderService(db), NewCouponValidator(db), gateway, nil)
}

func checkoutFor(address *models.Address) CheckoutRequest {
	return CheckoutRequest{
		AddressID: address.ID,
		Items: []CheckoutItem{
			{Name: "Chicken Curry Cut", WeightKg: 1, Quantity: 2, UnitPrice: 220},
			{Name: "Mutton Boneless", WeightKg: 0.5, Quantity: 1, UnitPrice: 278},
		},
	}
}

func TestPlaceCashOrderEndToEnd(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	// An in-flight prior order leaves the buyer under the free-delivery
	// threshold.
	_, err := r.orders.CreateOrder(context.Background(), sampleInput(user, address))
	require.NoError(t, err)

	order, err := r.PlaceCashOrder(context.Background(), user.ID, checkoutFor(address))
	require.NoError(t, err)

	// 220*1*2 + 278*0.5*1 = 440 + 139 = 579; fee waived, no discount.
	assert.Equal(t, 579.0, order.Subtotal)
	assert.Zero(t, order.DeliveryFee)
	assert.Zero(t, order.Discount)
	assert.Equal(t, 579.0, order.TotalAmount)
	assert.Equal(t, StatusPreparing, order.Status)
	assert.Equal(t, PaymentMethodCash, order.PaymentMethod)
	assert.Len(t, order.VerificationCode, 6)
	assert.Len(t, order.Timeline, 1)
	assert.Equal(t, "Order Placed", order.Timeline[0].Stage)
}

func TestPriceCheckoutRejectsBeforeAnyWrite(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)
	stranger, _ := seedBuyer(t, db)

	// Empty cart.
	_, err := r.PlaceCashOrder(context.Background(), user.ID, CheckoutRequest{AddressID: address.ID})
	assert.ErrorIs(t, err, ErrEmptyCart)

	// Someone else's address resolves as not found, leaking nothing.
	_, err = r.PlaceCashOrder(context.Background(), stranger.ID, checkoutFor(address))
	assert.ErrorIs(t, err, ErrAddressNotFound)

	// Zero-weight line.
	bad := checkoutFor(address)
	bad.Items[0].WeightKg = 0
	_, err = r.PlaceCashOrder(context.Background(), user.ID, bad)
	assert.ErrorIs(t, err, ErrInvalidItem)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestPlaceCashOrderAppliesCoupon(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	coupon := activeCoupon()
	require.NoError(t, db.Create(coupon).Error)

	req := checkoutFor(address)
	req.CouponCode = "meat50"

	order, err := r.PlaceCashOrder(context.Background(), user.ID, req)
	require.NoError(t, err)

	assert.Equal(t, 50.0, order.Discount)
	assert.Equal(t, 529.0, order.TotalAmount)
	assert.Equal(t, "MEAT50", order.CouponCode)

	var stored models.Coupon
	require.NoError(t, db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, stored.UsageCount)
}

func TestPlaceCashOrderRejectsInvalidCoupon(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	req := checkoutFor(address)
	req.CouponCode = "NOPE"

	_, err := r.PlaceCashOrder(context.Background(), user.ID, req)
	var couponErr *CouponInvalidError
	require.ErrorAs(t, err, &couponErr)
	assert.Equal(t, CouponReasonNotFound, couponErr.Reason)
}

func TestCreatePaymentIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_MkQhgzCxyz",
			"amount":   req["amount"],
			"currency": req["currency"],
			"status":   "created",
		})
	}))
	defer server.Close()

	db := newTestDB(t)
	gateway := NewRazorpayClient("key_id", "merchant_secret", server.URL)
	r := NewPaymentReconciler(db, NewOrderService(db), NewCouponValidator(db), gateway, nil)
	user, address := seedBuyer(t, db)

	gatewayOrder, quote, err := r.CreatePaymentIntent(context.Background(), user.ID, checkoutFor(address))
	require.NoError(t, err)

	assert.Equal(t, "order_MkQhgzCxyz", gatewayOrder.ID)
	// 579 rupees expressed in paise.
	assert.Equal(t, int64(57900), gatewayOrder.Amount)
	assert.Equal(t, 579.0, quote.Total)

	// The intent is transient: nothing is persisted until verification.
	var orders, records int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.PaymentRecord{}).Count(&records).Error)
	assert.Zero(t, orders)
	assert.Zero(t, records)
}

func TestConfirmOnlinePayment(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCxyz|pay_N1abcDEFgh"),
		Method:         "upi",
		Checkout:       checkoutFor(address),
	}

	order, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Razorpay (upi)", order.PaymentMethod)
	assert.Equal(t, StatusPreparing, order.Status)

	var record models.PaymentRecord
	require.NoError(t, db.First(&record, "payment_id = ?", req.PaymentID).Error)
	assert.Equal(t, models.PaymentStatusLinked, record.Status)
	require.NotNil(t, record.OrderID)
	assert.Equal(t, order.ID, *record.OrderID)
}

func TestConfirmOnlinePaymentRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      "deadbeef",
		Checkout:       checkoutFor(address),
	}

	_, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	var orders, records int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.PaymentRecord{}).Count(&records).Error)
	assert.Zero(t, orders)
	assert.Zero(t, records)
}

func TestConfirmOnlinePaymentRejectsForeignPaymentID(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	victim, victimAddress := seedBuyer(t, db)
	other, otherAddress := seedBuyer(t, db)

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCxyz|pay_N1abcDEFgh"),
		Checkout:       checkoutFor(victimAddress),
	}

	_, err := r.ConfirmOnlinePayment(context.Background(), victim.ID, req)
	require.NoError(t, err)

	// Replaying another buyer's payment id and signature must not hand out
	// their order.
	replay := req
	replay.Checkout = checkoutFor(otherAddress)
	_, err = r.ConfirmOnlinePayment(context.Background(), other.ID, replay)
	assert.ErrorIs(t, err, ErrPaymentOwnership)

	// Nor can a stranded capture be claimed with someone else's checkout.
	stranded := checkoutFor(victimAddress)
	stranded.Items = nil
	req2 := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCwvu",
		PaymentID:      "pay_N2ijkLMNop",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCwvu|pay_N2ijkLMNop"),
		Checkout:       stranded,
	}
	_, err = r.ConfirmOnlinePayment(context.Background(), victim.ID, req2)
	require.ErrorIs(t, err, ErrOrderNotRecorded)

	req2.Checkout = checkoutFor(otherAddress)
	_, err = r.ConfirmOnlinePayment(context.Background(), other.ID, req2)
	assert.ErrorIs(t, err, ErrPaymentOwnership)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}

func TestPriceCheckoutShopLookupFailure(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	// An unknown shop id only means the distance is unknown; pricing falls
	// back to the flat fee.
	missing := uuid.New()
	req := checkoutFor(address)
	req.ShopID = &missing
	_, err := r.PriceCheckout(context.Background(), user.ID, req)
	require.NoError(t, err)

	// A broken lookup is a different matter and must surface.
	require.NoError(t, db.Migrator().DropTable(&models.Shop{}))
	_, err = r.PriceCheckout(context.Background(), user.ID, req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCapturedPaymentRecordsAmount(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	// Fail order creation after pricing succeeded: the stranded capture
	// must still carry the paid amount for manual reconciliation.
	simulated := errors.New("simulated item insert failure")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("fail_order_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_items" {
			tx.AddError(simulated)
		}
	}))
	t.Cleanup(func() {
		_ = db.Callback().Create().Remove("fail_order_items")
	})

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCxyz|pay_N1abcDEFgh"),
		Checkout:       checkoutFor(address),
	}

	_, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	require.ErrorIs(t, err, ErrOrderNotRecorded)

	unreconciled, err := r.ListUnreconciled(context.Background())
	require.NoError(t, err)
	require.Len(t, unreconciled, 1)
	assert.Equal(t, int64(57900), unreconciled[0].AmountPaise)
	assert.NotEmpty(t, unreconciled[0].FailureReason)
}

func TestConfirmOnlinePaymentIsIdempotentPerPaymentID(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCxyz|pay_N1abcDEFgh"),
		Checkout:       checkoutFor(address),
	}

	first, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	require.NoError(t, err)

	second, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}

func TestCapturedPaymentSurvivesOrderFailure(t *testing.T) {
	db := newTestDB(t)
	r := newTestReconciler(t, db)
	user, address := seedBuyer(t, db)

	// A verified payment whose checkout can no longer be priced: the
	// capture must be kept and surfaced distinctly, never lost.
	broken := checkoutFor(address)
	broken.Items = nil

	req := VerifyPaymentRequest{
		GatewayOrderID: "order_MkQhgzCxyz",
		PaymentID:      "pay_N1abcDEFgh",
		Signature:      signPayload("merchant_secret", "order_MkQhgzCxyz|pay_N1abcDEFgh"),
		Checkout:       broken,
	}

	_, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	assert.ErrorIs(t, err, ErrOrderNotRecorded)

	unreconciled, err := r.ListUnreconciled(context.Background())
	require.NoError(t, err)
	require.Len(t, unreconciled, 1)
	assert.Equal(t, "pay_N1abcDEFgh", unreconciled[0].PaymentID)
	assert.Equal(t, models.PaymentStatusCaptured, unreconciled[0].Status)

	// Re-verifying the same payment id retries order creation instead of
	// paying twice: fix the cart and confirm again.
	req.Checkout = checkoutFor(address)
	order, err := r.ConfirmOnlinePayment(context.Background(), user.ID, req)
	require.NoError(t, err)

	unreconciled, err = r.ListUnreconciled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unreconciled)

	var record models.PaymentRecord
	require.NoError(t, db.First(&record, "payment_id = ?", req.PaymentID).Error)
	assert.Equal(t, models.PaymentStatusLinked, record.Status)
	require.NotNil(t, record.OrderID)
	assert.Equal(t, order.ID, *record.OrderID)
}

func TestToPaise(t *testing.T) {
	assert.Equal(t, int64(57900), ToPaise(579))
	assert.Equal(t, int64(59999), ToPaise(599.99))
	assert.Equal(t, int64(10), ToPaise(0.1))
}
