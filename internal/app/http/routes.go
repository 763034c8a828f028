package routes

import (
	adminapi "chainbill-backend/internal/api/admin"
	plansapi "chainbill-backend/internal/api/plans"
	sessionsapi "chainbill-backend/internal/api/sessions"
	subscriptionsapi "chainbill-backend/internal/api/subscriptions"
	usersapi "chainbill-backend/internal/api/users"
	"chainbill-backend/internal/app/http/middleware"
	"chainbill-backend/internal/nonce"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, nonceStore nonce.Store) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	public := r.Group("/")
	public.Use(middleware.SanitizeInputMiddleware())
	public.GET("/plans", plansapi.ListPlans)

	// Authenticated reads: session polling needs no nonce, a stale read has
	// no side effect to replay. The sanitizer runs ahead of the replay guard
	// so the guard parses (and hands the handler) the sanitized body.
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(), middleware.SanitizeInputMiddleware())
	auth.POST("/get-payment-session", sessionsapi.GetSession)
	auth.GET("/me", usersapi.GetCurrentUser)

	// Project reporting for API-key callers.
	auth.GET("/project/subscriptions", adminapi.ListProjectSubscribers)
	auth.GET("/project/payments", adminapi.ListProjectPayments)
	auth.GET("/project/stats", adminapi.GetProjectStats)

	// Mutations additionally pass the replay guard before any side effect
	// (bearer path only; API keys are outside replay scope).
	mutating := auth.Group("/")
	mutating.Use(middleware.ReplayGuard(nonceStore))

	mutating.POST("/create-payment-session", sessionsapi.CreateSession)
	mutating.POST("/update-payment-session", sessionsapi.UpdateSession)

	mutating.POST("/create-subscription", subscriptionsapi.CreateSubscription)
	mutating.POST("/cancel-subscription", subscriptionsapi.CancelSubscription)
}
