package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/freshcut/internal/config"
	"github.com/example/freshcut/internal/handlers"
	"github.com/example/freshcut/internal/middleware"
	"github.com/example/freshcut/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	orderService := services.NewOrderService(db)
	couponValidator := services.NewCouponValidator(db)
	gateway := services.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL)
	reconciler := services.NewPaymentReconciler(db, orderService, couponValidator, gateway, telegramService)

	authHandler := handlers.NewAuthHandler(db, cfg)
	orderHandler := handlers.NewOrderHandler(db, orderService, reconciler)
	paymentHandler := handlers.NewPaymentHandler(reconciler)
	couponHandler := handlers.NewCouponHandler(db, couponValidator)
	profileHandler := handlers.NewProfileHandler(db)
	shopHandler := handlers.NewShopHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Shops and coupon administration
	shops := api.Group("/shops")
	shops.Get("/", shopHandler.ListShops)
	shops.Post("/", shopHandler.CreateShop)

	coupons := api.Group("/coupons")
	coupons.Get("/", couponHandler.ListCoupons)
	coupons.Post("/", couponHandler.CreateCoupon)

	// Reconciliation: captured payments with no order
	api.Get("/payments/unreconciled", paymentHandler.ListUnreconciled)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/orders/quote", orderHandler.Quote)
	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Put("/orders/:id/status", orderHandler.UpdateStatus)

	protected.Post("/coupons/apply", couponHandler.Apply)

	protected.Post("/payments/intent", paymentHandler.CreateIntent)
	protected.Post("/payments/verify", paymentHandler.VerifyPayment)

	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)
}
