package api

import (
	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge/notify"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/detect"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// NewRouter assembles the middleware chain and route table. The
// detection middleware sits after rate limiting so dropped requests
// raise no events, and before the handlers so every served request
// does.
func NewRouter(
	h *Handler,
	dispatcher *detect.Dispatcher,
	authSvc *auth.Service,
	hub *notify.Hub,
	log *logger.Logger,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(LoggingMiddleware(log))
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg.Security.RateLimit))
	router.Use(DetectionMiddleware(dispatcher, authSvc, log))
	// Recovery sits inside the detection middleware so a handler panic
	// is converted to a finalized 500 before the post-response hook
	// observes the status.
	router.Use(RecoveryMiddleware(log))

	router.GET("/health", h.Health)
	router.GET("/api/challenges", h.ListChallenges)
	router.GET("/ws/scoreboard", hub.Handle)

	api := router.Group("/api")
	{
		api.POST("/Users", h.RegisterUser)
		api.POST("/Feedbacks", h.CreateFeedback)
		api.DELETE("/Feedbacks/:id", h.DeleteFeedback)
		api.POST("/Complaints", h.CreateComplaint)
		api.GET("/Products/:id", h.GetProduct)
		api.PUT("/Products/:id", h.UpdateProduct)
		api.GET("/Deliverys", h.ListDeliveryMethods)
		api.GET("/Deliverys/:id", h.GetDeliveryMethod)
	}

	rest := router.Group("/rest")
	{
		rest.POST("/user/login", h.Login)
		rest.PUT("/user/profile", h.UpdateProfile)
		rest.POST("/saveLoginIp", h.SaveLoginIP)
		rest.GET("/basket/:id", h.GetBasket)
		rest.GET("/wallet/balance", h.GetWalletBalance)
		rest.PUT("/wallet/balance", h.AddWalletBalance)
		rest.GET("/recycles/:id", h.GetRecycleItem)
		rest.GET("/products/:id/reviews", h.ListProductReviews)
	}

	// Everything else still flows through the middleware chain, so the
	// path-based detectors see probes for assets this server never
	// registered a handler for.
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
