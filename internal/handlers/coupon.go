package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/middleware"
	"github.com/example/freshcut/internal/models"
	"github.com/example/freshcut/internal/services"
)

// CouponHandler manages coupon validation and administration.
type CouponHandler struct {
	db        *gorm.DB
	validator *services.CouponValidator
}

// NewCouponHandler constructs CouponHandler.
func NewCouponHandler(db *gorm.DB, validator *services.CouponValidator) *CouponHandler {
	return &CouponHandler{db: db, validator: validator}
}

type applyCouponRequest struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

// Apply evaluates a coupon code against a proposed order amount. Invalid
// codes return a reason, not an error status.
func (h *CouponHandler) Apply(c *fiber.Ctx) error {
	if _, ok := middleware.GetCurrentUserID(c); !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req applyCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	result := h.validator.Validate(c.Context(), req.Code, req.Amount)
	return c.JSON(fiber.Map{"success": true, "data": result})
}

// ListCoupons returns all coupons.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	var coupons []models.Coupon
	if err := h.db.Find(&coupons).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": coupons})
}

// CreateCoupon adds a new coupon.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var coupon models.Coupon
	if err := c.BodyParser(&coupon); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	coupon.Code = services.NormalizeCouponCode(coupon.Code)
	if coupon.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}
	if coupon.DiscountType != models.DiscountTypeFixed && coupon.DiscountType != models.DiscountTypePercentage {
		return fiber.NewError(fiber.StatusBadRequest, "discount_type must be fixed or percentage")
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": coupon})
}
