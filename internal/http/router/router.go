package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studentmarket-backend/internal/config"
	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers"
	"github.com/ignatzorin/studentmarket-backend/internal/http/middleware"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// Handlers — все хэндлеры API.
type Handlers struct {
	Health        *handlers.HealthHandler
	Orders        *handlers.OrderHandler
	Payments      *handlers.PaymentHandler
	Webhooks      *handlers.WebhookHandler
	Disputes      *handlers.DisputeHandler
	Moderation    *handlers.ModerationHandler
	Listings      *handlers.ListingHandler
	Messages      *handlers.MessageHandler
	Notifications *handlers.NotificationHandler
	Settings      *handlers.SettingsHandler
	Uploads       *handlers.UploadHandler
	WS            *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	// Шлюзы ретраят доставку, поэтому лимит мягче, чем для пользователей.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit*10, cfg.RateLimitPeriod))
	{
		webhooks.POST("/payments", h.Webhooks.Payments)
		webhooks.POST("/midtrans", h.Webhooks.Midtrans)
	}

	api.GET("/ws", h.WS.Handle)
	api.GET("/services/:id", middleware.UUIDValidator("id"), h.Listings.GetService)
	api.GET("/settings", h.Settings.GetSettings)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.POST("/services", h.Listings.CreateService)
		protected.DELETE("/services/:id", middleware.UUIDValidator("id"), h.Listings.DeactivateService)

		protected.POST("/checkout", h.Orders.StartCheckout)
		protected.POST("/orders", h.Orders.CreateOrder)
		protected.GET("/orders", h.Orders.ListOrders)

		order := protected.Group("/orders/:id")
		order.Use(middleware.UUIDValidator("id"))
		{
			order.GET("", h.Orders.GetOrder)
			order.POST("/deliver", h.Orders.DeliverOrder)
			order.POST("/revisions", h.Orders.RequestRevision)
			order.GET("/revisions", h.Orders.ListRevisions)
			order.GET("/revision-eligibility", h.Orders.RevisionEligibility)
			order.GET("/deliveries", h.Orders.ListDeliveries)
			order.POST("/complete", h.Orders.CompleteOrder)

			order.POST("/pay", h.Payments.PayOrder)
			order.GET("/payments", h.Payments.ListPayments)

			order.POST("/disputes", h.Disputes.CreateDispute)
			order.GET("/disputes", h.Disputes.ListDisputes)

			order.POST("/messages", h.Messages.SendMessage)
			order.GET("/messages", h.Messages.ListMessages)
		}

		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), h.Disputes.GetDispute)
		protected.POST("/messages/:id/report", middleware.UUIDValidator("id"), h.Messages.ReportMessage)

		protected.GET("/notifications", h.Notifications.ListNotifications)
		protected.GET("/notifications/unread/count", h.Notifications.CountUnread)
		protected.PUT("/notifications/read-all", h.Notifications.MarkAllAsRead)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkAsRead)

		protected.POST("/uploads", h.Uploads.Upload)
		protected.GET("/files/*path", h.Uploads.Download)

		// Роль администратора проверяется сервисами по записи пользователя.
		admin := protected.Group("/admin")
		{
			admin.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), h.Orders.CancelOrder)
			admin.POST("/orders/:id/refund", middleware.UUIDValidator("id"), h.Payments.Refund)
			admin.POST("/orders/:id/payout", middleware.UUIDValidator("id"), h.Payments.Payout)
			admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), h.Disputes.ResolveDispute)

			admin.GET("/messages/flagged", h.Moderation.ListFlagged)
			admin.POST("/messages/:id/violation", middleware.UUIDValidator("id"), h.Moderation.ConfirmViolation)
			admin.POST("/messages/:id/dismiss", middleware.UUIDValidator("id"), h.Moderation.DismissFlag)
			admin.GET("/users/:id/violations", middleware.UUIDValidator("id"), h.Moderation.ListViolations)
			admin.GET("/users/:id/suggested-penalty", middleware.UUIDValidator("id"), h.Moderation.SuggestPenalty)
			admin.GET("/audit", h.Moderation.AuditTrail)
			admin.PUT("/settings/commission", h.Settings.UpdateCommissionRate)
		}
	}

	return r
}
