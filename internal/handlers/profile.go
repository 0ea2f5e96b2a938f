package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/middleware"
	"github.com/example/freshcut/internal/models"
)

// ProfileHandler manages the buyer's address book.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// ListAddresses returns the authenticated buyer's addresses.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var addresses []models.Address
	if err := h.db.Where("user_id = ?", userID).Find(&addresses).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

// CreateAddress adds an address to the buyer's book.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var address models.Address
	if err := c.BodyParser(&address); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if address.AddressLine == "" {
		return fiber.NewError(fiber.StatusBadRequest, "address_line is required")
	}

	address.UserID = userID
	if err := h.db.Create(&address).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

// UpdateAddress edits an owned address.
func (h *ProfileHandler) UpdateAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var address models.Address
	if err := h.db.First(&address, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "address not found")
		}
		return err
	}

	if err := c.BodyParser(&address); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	address.ID = id
	address.UserID = userID
	if err := h.db.Save(&address).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": address})
}

// DeleteAddress removes an owned address.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	res := h.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Address{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "address not found")
	}
	return c.JSON(fiber.Map{"success": true})
}
