package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/models"
)

// ShopHandler manages the shop records the pricing engine measures
// distances from.
type ShopHandler struct {
	db *gorm.DB
}

// NewShopHandler constructs ShopHandler.
func NewShopHandler(db *gorm.DB) *ShopHandler {
	return &ShopHandler{db: db}
}

// ListShops returns active shops.
func (h *ShopHandler) ListShops(c *fiber.Ctx) error {
	var shops []models.Shop
	if err := h.db.Where("is_active = ?", true).Find(&shops).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": shops})
}

// CreateShop adds a shop.
func (h *ShopHandler) CreateShop(c *fiber.Ctx) error {
	var shop models.Shop
	if err := c.BodyParser(&shop); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if shop.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}

	shop.IsActive = true
	if err := h.db.Create(&shop).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": shop})
}
