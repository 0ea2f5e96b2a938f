package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/models"
)

const (
	orderNumberPrefix  = "FC-"
	orderNumberFormat  = orderNumberPrefix + "%06d"
	orderNumberRetries = 3
)

// Order lifecycle states.
const (
	StatusPreparing      = "Preparing"
	StatusOrderReady     = "Order Ready"
	StatusPickedUp       = "Picked Up"
	StatusOutForDelivery = "Out for Delivery"
	StatusDelivered      = "Delivered"
	StatusCancelled      = "Cancelled"
)

var (
	ErrEmptyCart         = errors.New("order must contain at least one item")
	ErrInvalidItem       = errors.New("order item has invalid quantity, weight or price")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// allowedTransitions enforces the forward lifecycle. Cancelled is reachable
// from any non-terminal state; terminal states allow nothing.
var allowedTransitions = map[string][]string{
	StatusPreparing:      {StatusOrderReady, StatusCancelled},
	StatusOrderReady:     {StatusPickedUp, StatusCancelled},
	StatusPickedUp:       {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// timelineDescriptions are the default human descriptions appended to the
// timeline per status, overridable by an explicit note.
var timelineDescriptions = map[string]string{
	StatusPreparing:      "Your order is being prepared",
	StatusOrderReady:     "Your order is packed and ready",
	StatusPickedUp:       "The delivery agent has picked up your order",
	StatusOutForDelivery: "Your order is out for delivery",
	StatusDelivered:      "Your order has been delivered",
	StatusCancelled:      "Your order has been cancelled",
}

// KnownStatus reports whether value is one of the defined lifecycle states.
func KnownStatus(value string) bool {
	_, ok := allowedTransitions[value]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderService owns the order lifecycle: atomic creation and status
// transitions with their append-only timeline.
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// CreateOrderItem is one frozen cart line going into a new order.
type CreateOrderItem struct {
	ProductID string
	Name      string
	Weight    string
	Quantity  int
	UnitPrice float64
	LinePrice float64
	Image     string
}

// CreateOrderInput carries everything a priced checkout resolved.
type CreateOrderInput struct {
	UserID        uuid.UUID
	ShopID        *uuid.UUID
	Address       *models.Address
	Items         []CreateOrderItem
	Quote         Quote
	CouponID      *uuid.UUID
	CouponCode    string
	PaymentMethod string
	Instructions  string
}

// CreateOrder persists a new order atomically: the order row, its item
// snapshots, the freshly issued verification code and the "Order Placed"
// timeline entry all commit together or not at all. Coupon redemption, when
// present, joins the same transaction.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range input.Items {
		if item.Quantity < 1 || item.UnitPrice <= 0 || item.Name == "" {
			return nil, ErrInvalidItem
		}
	}

	code, err := GenerateVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := models.Order{
		UserID:           input.UserID,
		ShopID:           input.ShopID,
		Status:           StatusPreparing,
		PlacedAt:         now,
		Subtotal:         input.Quote.Subtotal,
		DeliveryFee:      input.Quote.DeliveryFee,
		Discount:         input.Quote.Discount,
		TotalAmount:      input.Quote.Total,
		Currency:         DefaultCurrency,
		CouponCode:       input.CouponCode,
		VerificationCode: code,
		PaymentMethod:    input.PaymentMethod,
		Instructions:     input.Instructions,
	}

	if input.Address != nil {
		order.DeliveryAddressID = &input.Address.ID
		order.DeliveryAddressLine = input.Address.AddressLine
		order.DeliveryCity = input.Address.City
	}

	for _, item := range input.Items {
		snapshot := models.OrderItem{
			ProductName: item.Name,
			Weight:      item.Weight,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LinePrice:   item.LinePrice,
			Image:       item.Image,
		}
		if item.ProductID != "" {
			if id, err := uuid.Parse(item.ProductID); err == nil {
				snapshot.ProductID = &id
			}
		}
		order.Items = append(order.Items, snapshot)
	}

	order.Timeline = []models.TimelineEvent{{
		Stage:       "Order Placed",
		Description: "Your order has been placed",
		Completed:   true,
		OccurredAt:  now,
	}}

	// Two checkouts committing at once can both draw the same order number;
	// the unique index rejects the loser, which re-runs the transaction and
	// draws the next number.
	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := nextOrderNumber(tx)
			if err != nil {
				return err
			}
			order.OrderNumber = number

			if input.CouponID != nil {
				if err := RedeemCoupon(tx, *input.CouponID); err != nil {
					return err
				}
			}

			return tx.Create(&order).Error
		})
		if err == nil || !isOrderNumberConflict(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// StatusUpdate is one requested lifecycle transition. Agent fields are
// optional and typically arrive with Out for Delivery.
type StatusUpdate struct {
	Status     string
	Note       string
	AgentName  string
	AgentPhone string
}

// UpdateStatus transitions an order owned by userID to a new status,
// appending exactly one timeline entry. Delivered is the only transition
// that also stamps DeliveredAt. Rejections leave the order untouched.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, update StatusUpdate) (*models.Order, error) {
	newStatus := update.Status
	if !KnownStatus(newStatus) {
		return nil, ErrUnknownStatus
	}

	var order models.Order
	err := s.db.WithContext(ctx).
		Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&order, "id = ? AND user_id = ?", orderID, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrOrderNotFound
				}
				return err
			}

			if !CanTransition(order.Status, newStatus) {
				return ErrInvalidTransition
			}

			now := time.Now()
			updates := map[string]any{
				"status":      newStatus,
				"status_note": update.Note,
			}
			if update.AgentName != "" {
				updates["agent_name"] = update.AgentName
				updates["agent_phone"] = update.AgentPhone
			}
			if newStatus == StatusDelivered {
				updates["delivered_at"] = &now
			}

			if err := tx.Model(&order).Updates(updates).Error; err != nil {
				return err
			}

			description := update.Note
			if description == "" {
				description = timelineDescriptions[newStatus]
			}

			event := models.TimelineEvent{
				OrderID:     order.ID,
				Stage:       newStatus,
				Description: description,
				Completed:   true,
				OccurredAt:  now,
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}

			order.Status = newStatus
			order.StatusNote = update.Note
			if update.AgentName != "" {
				order.AgentName = update.AgentName
				order.AgentPhone = update.AgentPhone
			}
			if newStatus == StatusDelivered {
				order.DeliveredAt = &now
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// PriorOrderCount returns how many orders the buyer has already had
// delivered; the free-delivery rule keys off this, so in-flight and
// cancelled orders do not count against the allowance.
func (s *OrderService) PriorOrderCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND status = ?", userID, StatusDelivered).
		Count(&count).Error
	return int(count), err
}

// nextOrderNumber issues the next human-readable sequential number inside
// the creation transaction. Numbers are zero-padded to a fixed width, so
// the lexical maximum is the numeric maximum.
func nextOrderNumber(tx *gorm.DB) (string, error) {
	var last string
	err := tx.Model(&models.Order{}).
		Select("order_number").
		Order("order_number DESC").
		Limit(1).
		Scan(&last).Error
	if err != nil {
		return "", err
	}

	next := 1
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, orderNumberPrefix))
		if err != nil {
			return "", fmt.Errorf("unparseable order number %q: %w", last, err)
		}
		next = n + 1
	}
	return fmt.Sprintf(orderNumberFormat, next), nil
}

// isOrderNumberConflict matches the unique-index violation raised when two
// concurrent creations drew the same order number.
func isOrderNumberConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "order_number")
	}
	return strings.Contains(err.Error(), "order_number")
}
