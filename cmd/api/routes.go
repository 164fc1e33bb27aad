package main

import (
	"reservation-caller/internal/httpapi"
	"reservation-caller/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, sigCheck httpapi.SignatureChecker, baseURL string) {
	// public
	r.GET("/healthz", h.Healthz)

	// Provider webhooks (public). Authenticity comes from the provider
	// signature check; with no dialer configured the check is disabled.
	r.POST("/webhooks/status", h.WebhookStatus(sigCheck, baseURL))
	r.POST("/webhooks/voice", h.WebhookVoice(sigCheck, baseURL))
	r.POST("/webhooks/gather", h.WebhookGather(sigCheck, baseURL))

	// Token issuance.
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAdmin))
		{
			calls.POST("/start", h.StartCall)
			calls.GET("", h.ListCalls)
			calls.GET("/:id", h.GetCall)
			calls.POST("/:id/decision", h.ApplyDecision)
			calls.POST("/:id/recall", h.Recall)
		}

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/sweep", h.AdminSweep)
		}
	}
}
