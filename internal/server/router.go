package server

import (
	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/auth"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/billing"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/handler"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/hub"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Gateway     *gateway.Gateway
	Billing     *billing.Service
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
	APIKey      string
	// SessionCreateLimiter caps session creation per owner.
	SessionCreateLimiter *middleware.RateLimiter
	Logger               *zap.Logger
	Version              string
	Storage              string
}

func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.AccessLog(log))

	healthHandler := &handler.HealthHandler{Version: deps.Version, Storage: deps.Storage}
	r.GET("/health", healthHandler.Check)

	updatesHandler := &handler.UpdatesHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig, APIKey: deps.APIKey}
	r.GET("/v1/updates", updatesHandler.Serve)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAPIKey(deps.APIKey))
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	sessionHandler := &handler.SessionHandler{Gateway: deps.Gateway}
	createSession := []gin.HandlerFunc{sessionHandler.Create}
	if deps.SessionCreateLimiter != nil {
		createSession = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(deps.SessionCreateLimiter, middleware.OwnerKey)}, createSession...)
	}
	protected.GET("/sessions", sessionHandler.List)
	protected.POST("/sessions", createSession...)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.PATCH("/sessions/:id/deactivate", sessionHandler.Deactivate)
	protected.PATCH("/sessions/:id/reactivate", sessionHandler.Reactivate)
	protected.DELETE("/sessions/:id", sessionHandler.Delete)

	promptHandler := &handler.PromptHandler{Gateway: deps.Gateway}
	protected.GET("/prompts", promptHandler.List)
	protected.POST("/prompts", promptHandler.Create)
	protected.GET("/prompts/:id", promptHandler.Get)
	protected.PATCH("/prompts/:id", promptHandler.Update)
	protected.POST("/prompts/:id/copy", promptHandler.Copy)
	protected.PATCH("/prompts/:id/activate", promptHandler.Activate)
	protected.PATCH("/prompts/:id/deactivate", promptHandler.Deactivate)
	protected.DELETE("/prompts/:id", promptHandler.Delete)

	billingHandler := &handler.BillingHandler{Billing: deps.Billing}
	protected.PATCH("/payment-method", billingHandler.SetPaymentMethod)
	protected.GET("/balance", billingHandler.Balance)
	protected.POST("/charges", billingHandler.Charge)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/sessions", sessionHandler.ListAll)
	admin.GET("/prompts", promptHandler.ListAll)
	admin.GET("/customers", billingHandler.ListCustomers)

	return r
}
