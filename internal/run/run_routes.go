package run

import (
	"rollcall/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	runs := r.Group("/runs")
	{
		runs.POST("", middleware.RateLimitByIP(1, 3), h.Reconcile)
	}

	reports := r.Group("/reports")
	{
		reports.GET("/:date", h.GetReport)
	}

	manifests := r.Group("/manifests")
	{
		manifests.GET("/:date", h.GetManifest)
	}
}
