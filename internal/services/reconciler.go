package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/models"
)

// PaymentMethodCash is the descriptor stamped on cash-path orders.
const PaymentMethodCash = "Cash on Delivery"

var (
	ErrAddressNotFound = errors.New("delivery address not found")
	// ErrSignatureMismatch rejects a payment attempt permanently; the same
	// signature is never retried.
	ErrSignatureMismatch = errors.New("payment signature verification failed")
	// ErrOrderNotRecorded is the post-capture failure: the gateway confirmed
	// the payment but the order could not be persisted. The captured payment
	// record stays behind for manual reconciliation.
	ErrOrderNotRecorded = errors.New("payment captured but order not recorded")
	// ErrPaymentOwnership rejects a payment id first submitted by a
	// different buyer.
	ErrPaymentOwnership = errors.New("payment belongs to a different buyer")
)

// CouponInvalidError surfaces a coupon rejection with its user-facing reason.
type CouponInvalidError struct {
	Reason string
}

func (e *CouponInvalidError) Error() string {
	return e.Reason
}

// CheckoutItem is one cart line as submitted by the client. WeightKg prices
// the line; Weight is the display descriptor frozen onto the order.
type CheckoutItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Weight    string  `json:"weight"`
	WeightKg  float64 `json:"weight_kg"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Image     string  `json:"image"`
}

// CheckoutRequest is the shared input of the quote, cash and online paths.
type CheckoutRequest struct {
	ShopID       *uuid.UUID     `json:"shop_id"`
	AddressID    uuid.UUID      `json:"address_id"`
	Items        []CheckoutItem `json:"items"`
	CouponCode   string         `json:"coupon_code"`
	Instructions string         `json:"instructions"`
}

// PricedCheckout is a checkout after pricing: resolved address, quote and
// frozen item snapshots, ready for order creation.
type PricedCheckout struct {
	Quote   Quote
	Address *models.Address
	Shop    *models.Shop
	Coupon  *models.Coupon
	Items   []CreateOrderItem
}

// PaymentReconciler turns a priced checkout into exactly one order (or
// none), over two mutually exclusive payment paths.
type PaymentReconciler struct {
	db       *gorm.DB
	orders   *OrderService
	coupons  *CouponValidator
	gateway  *RazorpayClient
	telegram *TelegramService
}

func NewPaymentReconciler(db *gorm.DB, orders *OrderService, coupons *CouponValidator, gateway *RazorpayClient, telegram *TelegramService) *PaymentReconciler {
	return &PaymentReconciler{
		db:       db,
		orders:   orders,
		coupons:  coupons,
		gateway:  gateway,
		telegram: telegram,
	}
}

// PriceCheckout validates the cart, resolves the owned delivery address and
// shop, fetches the buyer's prior-order count and produces the quote. No
// writes happen here.
func (r *PaymentReconciler) PriceCheckout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*PricedCheckout, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	var subtotal float64
	items := make([]CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 || item.WeightKg <= 0 || item.UnitPrice <= 0 || item.Name == "" {
			return nil, ErrInvalidItem
		}

		line := LineTotal(item.UnitPrice, item.WeightKg, item.Quantity)
		subtotal += line

		weight := item.Weight
		if weight == "" {
			weight = fmt.Sprintf("%g kg", item.WeightKg)
		}

		items = append(items, CreateOrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Weight:    weight,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LinePrice: line,
			Image:     item.Image,
		})
	}

	var address models.Address
	if err := r.db.WithContext(ctx).
		First(&address, "id = ? AND user_id = ?", req.AddressID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	priced := &PricedCheckout{Address: &address, Items: items}

	var shopCoords, destCoords *LatLng
	if req.ShopID != nil {
		var shop models.Shop
		err := r.db.WithContext(ctx).
			First(&shop, "id = ? AND is_active = ?", *req.ShopID, true).Error
		switch {
		case err == nil:
			priced.Shop = &shop
			shopCoords = &LatLng{Lat: shop.Latitude, Lng: shop.Longitude}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			// A missing or inactive shop falls back to the flat fee; a
			// failed lookup must not.
			return nil, err
		}
	}
	if address.Latitude != nil && address.Longitude != nil {
		destCoords = &LatLng{Lat: *address.Latitude, Lng: *address.Longitude}
	}

	priorOrders, err := r.orders.PriorOrderCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	var discount float64
	if req.CouponCode != "" {
		result := r.coupons.Validate(ctx, req.CouponCode, subtotal)
		if !result.Valid {
			return nil, &CouponInvalidError{Reason: result.Reason}
		}
		discount = result.Discount
		priced.Coupon = result.Coupon
	}

	priced.Quote = ComputeQuote(subtotal, shopCoords, destCoords, priorOrders, discount)
	return priced, nil
}

// PlaceCashOrder is the cash-on-delivery path: price, then create the order
// directly. No external calls.
func (r *PaymentReconciler) PlaceCashOrder(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*models.Order, error) {
	priced, err := r.PriceCheckout(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	order, err := r.orders.CreateOrder(ctx, r.creationInput(userID, req, priced, PaymentMethodCash))
	if err != nil {
		return nil, err
	}

	r.notify(order)
	return order, nil
}

// CreatePaymentIntent starts the online path: price the checkout and request
// a gateway payment intent for the total, in paise. The intent is transient;
// nothing is persisted until the payment is verified.
func (r *PaymentReconciler) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*GatewayOrder, *Quote, error) {
	priced, err := r.PriceCheckout(ctx, userID, req)
	if err != nil {
		return nil, nil, err
	}

	receipt := fmt.Sprintf("rcpt_%s", uuid.NewString())
	gatewayOrder, err := r.gateway.CreateOrder(ctx, ToPaise(priced.Quote.Total), DefaultCurrency, receipt, map[string]string{
		"user_id": userID.String(),
	})
	if err != nil {
		return nil, nil, err
	}

	return gatewayOrder, &priced.Quote, nil
}

// VerifyPaymentRequest completes the online path after the out-of-band
// gateway redirect.
type VerifyPaymentRequest struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	PaymentID      string          `json:"payment_id"`
	Signature      string          `json:"signature"`
	Method         string          `json:"method"`
	Checkout       CheckoutRequest `json:"checkout"`
}

// ConfirmOnlinePayment verifies the gateway signature, records the captured
// payment keyed by its gateway payment id, and only then creates the order.
// Re-submitting a payment id that already produced an order returns that
// order instead of creating another.
func (r *PaymentReconciler) ConfirmOnlinePayment(ctx context.Context, userID uuid.UUID, req VerifyPaymentRequest) (*models.Order, error) {
	if !r.gateway.VerifySignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		return nil, ErrSignatureMismatch
	}

	// Price first so the capture row carries the amount; a pricing failure
	// must still leave a captured record behind, so the error is only acted
	// on after the capture.
	var amountPaise int64
	priced, priceErr := r.PriceCheckout(ctx, userID, req.Checkout)
	if priceErr == nil {
		amountPaise = ToPaise(priced.Quote.Total)
	}

	record, existingOrder, err := r.capturePayment(ctx, userID, req, amountPaise)
	if err != nil {
		return nil, err
	}
	if existingOrder != nil {
		return existingOrder, nil
	}
	if priceErr != nil {
		return nil, r.orderNotRecorded(record, priceErr)
	}

	method := PaymentMethodDescriptor(req.Method)
	order, err := r.orders.CreateOrder(ctx, r.creationInput(userID, req.Checkout, priced, method))
	if err != nil {
		return nil, r.orderNotRecorded(record, err)
	}

	if err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"status":       models.PaymentStatusLinked,
			"order_id":     order.ID,
			"method":       req.Method,
			"amount_paise": ToPaise(order.TotalAmount),
		}).Error; err != nil {
		log.Printf("[Payment] Failed to link payment %s to order %s: %v", record.PaymentID, order.ID, err)
	}

	r.notify(order)
	return order, nil
}

// ListUnreconciled returns captured payments that never got an order, the
// rows a manual reconciliation works from.
func (r *PaymentReconciler) ListUnreconciled(ctx context.Context) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND order_id IS NULL", models.PaymentStatusCaptured).
		Order("created_at asc").
		Find(&records).Error
	return records, err
}

// capturePayment persists the captured-payment record before any order
// write. If the payment id was seen before, a linked record short-circuits
// to its order and a captured one is reused as a reconciliation retry. A
// payment id first captured by another buyer is rejected outright.
func (r *PaymentReconciler) capturePayment(ctx context.Context, userID uuid.UUID, req VerifyPaymentRequest, amountPaise int64) (*models.PaymentRecord, *models.Order, error) {
	db := r.db.WithContext(ctx)

	var existing models.PaymentRecord
	err := db.Where("payment_id = ?", req.PaymentID).First(&existing).Error
	if err == nil {
		if existing.UserID != userID {
			return nil, nil, ErrPaymentOwnership
		}
		if existing.Status == models.PaymentStatusLinked && existing.OrderID != nil {
			var order models.Order
			if err := db.Preload("Items").Preload("Timeline").
				First(&order, "id = ?", *existing.OrderID).Error; err != nil {
				return nil, nil, err
			}
			return &existing, &order, nil
		}
		return &existing, nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	now := time.Now()
	record := models.PaymentRecord{
		UserID:         userID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		AmountPaise:    amountPaise,
		Currency:       DefaultCurrency,
		Method:         req.Method,
		Status:         models.PaymentStatusCaptured,
		CapturedAt:     &now,
	}
	if err := db.Create(&record).Error; err != nil {
		return nil, nil, err
	}
	return &record, nil, nil
}

func (r *PaymentReconciler) orderNotRecorded(record *models.PaymentRecord, cause error) error {
	log.Printf("[Payment] ALERT: payment %s captured but order not recorded: %v", record.PaymentID, cause)
	if err := r.db.Model(&models.PaymentRecord{}).
		Where("id = ?", record.ID).
		Update("failure_reason", cause.Error()).Error; err != nil {
		log.Printf("[Payment] Failed to record failure reason for payment %s: %v", record.PaymentID, err)
	}
	return fmt.Errorf("%w: %v", ErrOrderNotRecorded, cause)
}

func (r *PaymentReconciler) creationInput(userID uuid.UUID, req CheckoutRequest, priced *PricedCheckout, method string) CreateOrderInput {
	input := CreateOrderInput{
		UserID:        userID,
		ShopID:        req.ShopID,
		Address:       priced.Address,
		Items:         priced.Items,
		Quote:         priced.Quote,
		PaymentMethod: method,
		Instructions:  req.Instructions,
	}
	if priced.Coupon != nil {
		input.CouponID = &priced.Coupon.ID
		input.CouponCode = priced.Coupon.Code
	}
	return input
}

func (r *PaymentReconciler) notify(order *models.Order) {
	if r.telegram == nil {
		return
	}
	go func() {
		if err := r.telegram.NotifyNewOrder(OrderNotification{
			OrderNumber:   order.OrderNumber,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			PaymentMethod: order.PaymentMethod,
			ItemCount:     len(order.Items),
		}); err != nil {
			log.Printf("[Payment] Telegram notification failed for order %s: %v", order.OrderNumber, err)
		}
	}()
}

// PaymentMethodDescriptor names the gateway and method on the order record.
func PaymentMethodDescriptor(method string) string {
	if method == "" {
		return "Razorpay"
	}
	return "Razorpay (" + method + ")"
}

// ToPaise converts a rupee amount to the gateway's smallest currency unit.
func ToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}
