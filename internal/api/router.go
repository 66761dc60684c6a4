package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/r1/internal/api/handlers"
	"greendrake/r1/internal/api/middleware"
	"greendrake/r1/internal/config"
	"greendrake/r1/internal/gateway"
	"greendrake/r1/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, gw gateway.Client, configSvc services.IConfigService) *gin.Engine {
	// Initialize services needed by API handlers HERE
	userService := services.NewUserService(db, cfg)
	listingService := services.NewListingService(db, cfg)
	contactService := services.NewContactService(db, cfg, listingService)
	paymentService := services.NewPaymentService(db, cfg, configSvc, userService, listingService, contactService, gw)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	restConfigHandler := handlers.NewRestConfigHandler(configSvc)
	restListingHandler := handlers.NewRestListingHandler(listingService)
	restPaymentHandler := handlers.NewRestPaymentHandler(paymentService)
	restContactHandler := handlers.NewRestContactHandler(contactService, paymentService)
	restWebhookHandler := handlers.NewRestWebhookHandler(cfg, gw, paymentService)

	// The gateway callback is registered outside the rate-limited group:
	// throttling redeliveries would turn a transient failure into a lost
	// notification.
	r.POST("/v1/payment/callback", restWebhookHandler.PaymentCallback)

	v1 := r.Group("/v1", rateLimiter.Limit())
	{
		// Public Routes
		v1.GET("/config", restConfigHandler.GetPublicConfig)
		v1.GET("/listing/:id", restListingHandler.GetListingByID)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated Routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listing", restListingHandler.CreateListing)
			authRequired.GET("/my/listings", restListingHandler.MyListings)

			authRequired.POST("/listing/:id/contact-payment", restPaymentHandler.InitiateContactPayment)
			authRequired.GET("/payments", restPaymentHandler.MyPayments)
			authRequired.GET("/payment/:correlation_id", restPaymentHandler.GetPayment)
			authRequired.POST("/payment/:correlation_id/demo-complete", restPaymentHandler.DemoCompletePayment)

			authRequired.GET("/my/contacts", restContactHandler.MyContacts)
			authRequired.POST("/contact/:id/cancel", restContactHandler.CancelContact)
		}

		// Staff Routes
		staffRequired := v1.Group("/staff")
		staffRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.StaffMiddleware())
		{
			staffRequired.POST("/listing/:id/approve", restListingHandler.ApproveListing)
			staffRequired.POST("/listing/:id/reject", restListingHandler.RejectListing)
			staffRequired.POST("/listing/:id/status", restListingHandler.OverrideListingStatus)

			staffRequired.POST("/payment/:id/refund", restPaymentHandler.RefundPayment)

			staffRequired.GET("/contacts", restContactHandler.ListContactsByStatus)
			staffRequired.GET("/contact/:id", restContactHandler.GetContactCase)
			staffRequired.POST("/contact/:id/contacted", restContactHandler.MarkContacted)
			staffRequired.POST("/contact/:id/visit", restContactHandler.ScheduleVisit)
			staffRequired.POST("/contact/:id/visit-done", restContactHandler.CompleteVisit)
			staffRequired.POST("/contact/:id/negotiate", restContactHandler.StartNegotiation)
			staffRequired.POST("/contact/:id/success", restContactHandler.CloseAsSuccess)
			staffRequired.POST("/contact/:id/failed", restContactHandler.CloseAsFailed)
			staffRequired.POST("/contact/:id/assign", restContactHandler.AssignContact)
			staffRequired.POST("/contact/:id/priority", restContactHandler.SetContactPriority)
			staffRequired.POST("/contact/:id/note", restContactHandler.AddContactNote)

			staffRequired.POST("/config", restConfigHandler.SetConfig)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
func SetupServiceRouter(cfg *config.Config, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
