package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/middleware"
	"github.com/example/freshcut/internal/models"
	"github.com/example/freshcut/internal/services"
	"github.com/example/freshcut/internal/utils"
)

// OrderHandler manages checkout and order endpoints.
type OrderHandler struct {
	db         *gorm.DB
	orders     *services.OrderService
	reconciler *services.PaymentReconciler
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, orders *services.OrderService, reconciler *services.PaymentReconciler) *OrderHandler {
	return &OrderHandler{db: db, orders: orders, reconciler: reconciler}
}

// Quote prices a checkout without creating anything.
func (h *OrderHandler) Quote(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	priced, err := h.reconciler.PriceCheckout(c.Context(), userID, req)
	if err != nil {
		return mapCheckoutError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": priced.Quote})
}

// CreateOrder places a cash-on-delivery order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.reconciler.PlaceCashOrder(c.Context(), userID, req)
	if err != nil {
		return mapCheckoutError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    orderResponse(order, time.Now()),
	})
}

// ListOrders returns orders for the authenticated buyer.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	now := time.Now()
	data := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		data = append(data, orderResponse(&orders[i], now))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order for the authenticated buyer.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at asc")
		}).
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orderResponse(&order, time.Now())})
}

type updateStatusRequest struct {
	Status     string `json:"status"`
	Note       string `json:"note"`
	AgentName  string `json:"agent_name"`
	AgentPhone string `json:"agent_phone"`
}

// UpdateStatus transitions an order through its lifecycle.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.UpdateStatus(c.Context(), id, userID, services.StatusUpdate{
		Status:     req.Status,
		Note:       req.Note,
		AgentName:  req.AgentName,
		AgentPhone: req.AgentPhone,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownStatus):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrInvalidTransition):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, services.ErrOrderNotFound):
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":     order.ID,
			"status": order.Status,
		},
	})
}

// orderResponse shapes an order for the wire. The verification code is
// included only while the visibility policy allows it.
func orderResponse(order *models.Order, now time.Time) fiber.Map {
	resp := fiber.Map{
		"id":             order.ID,
		"order_number":   order.OrderNumber,
		"status":         order.Status,
		"status_note":    order.StatusNote,
		"placed_at":      order.PlacedAt,
		"subtotal":       order.Subtotal,
		"delivery_fee":   order.DeliveryFee,
		"discount":       order.Discount,
		"total":          order.TotalAmount,
		"currency":       order.Currency,
		"coupon_code":    order.CouponCode,
		"payment_method": order.PaymentMethod,
		"address_line":   order.DeliveryAddressLine,
		"city":           order.DeliveryCity,
		"instructions":   order.Instructions,
		"delivered_at":   order.DeliveredAt,
		"items":          order.Items,
		"timeline":       order.Timeline,
	}
	if order.AgentName != "" {
		resp["agent_name"] = order.AgentName
		resp["agent_phone"] = order.AgentPhone
	}
	if services.CodeVisible(order.Status, order.DeliveredAt, now) {
		resp["verification_code"] = order.VerificationCode
	}
	return resp
}

// mapCheckoutError converts checkout/pricing failures into client errors.
func mapCheckoutError(err error) error {
	var couponErr *services.CouponInvalidError
	switch {
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidItem):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAddressNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.As(err, &couponErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, couponErr.Reason)
	}
	return err
}
