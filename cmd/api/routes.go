package main

import (
	"database/sql"
	"net/http"
	"time"

	"salon-leads/internal/httpapi"
	"salon-leads/internal/telephony"
	"salon-leads/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerPublicRoutes wires unauthenticated routes: health, metrics and provider webhooks.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerPublicRoutes(r *gin.Engine, db *sql.DB, voice telephony.WebhookHandler) {
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Twilio signs its requests; the handler verifies X-Twilio-Signature when a token is set.
	r.POST("/webhooks/twilio/voice", voice.HandleInboundCall)
}

func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	v1 := r.Group("/v1")
	v1.Use(authMW)
	h.Register(v1)
}
