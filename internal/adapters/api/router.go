package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter configures the gin engine for the auction engine API.
func NewRouter(handler *AuctionHandler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	listings := router.Group("/listings")
	{
		listings.POST("/:listing_id/bids", handler.PlaceBid)
		listings.GET("/:listing_id/bids", handler.ListBids)
		listings.GET("/:listing_id/history", handler.ListHistory)
		listings.POST("/:listing_id/settlement", handler.SettleAuction)
	}

	return router
}

// requestLogger logs one line per request with latency and status.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
