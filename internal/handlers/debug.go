package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints that only exist in debug builds. The
// audit-test route pushes one envelope through the emitter so the broker
// pipeline can be verified end to end.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit pipeline check", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
