package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/freshcut/internal/middleware"
	"github.com/example/freshcut/internal/services"
)

// PaymentHandler manages the online payment path.
type PaymentHandler struct {
	reconciler *services.PaymentReconciler
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(reconciler *services.PaymentReconciler) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

// CreateIntent prices the checkout and requests a gateway payment intent.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	gatewayOrder, quote, err := h.reconciler.CreatePaymentIntent(c.Context(), userID, req)
	if err != nil {
		return mapPaymentError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"gateway_order_id": gatewayOrder.ID,
			"amount":           gatewayOrder.Amount,
			"currency":         gatewayOrder.Currency,
			"quote":            quote,
		},
	})
}

// VerifyPayment checks the gateway signature and, on success, creates the
// order. A mismatch rejects the payment with no order created.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing payment fields")
	}

	order, err := h.reconciler.ConfirmOnlinePayment(c.Context(), userID, req)
	if err != nil {
		return mapPaymentError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    orderResponse(order, time.Now()),
	})
}

// ListUnreconciled exposes captured payments that have no order yet.
func (h *PaymentHandler) ListUnreconciled(c *fiber.Ctx) error {
	records, err := h.reconciler.ListUnreconciled(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": records})
}

func mapPaymentError(err error) error {
	switch {
	case errors.Is(err, services.ErrSignatureMismatch):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrPaymentOwnership):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrGatewayTimeout):
		// Not a failure: the gateway may still complete the charge.
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, services.ErrGatewayUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "payment unavailable")
	case errors.Is(err, services.ErrOrderNotRecorded):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return mapCheckoutError(err)
}
