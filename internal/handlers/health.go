package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/logging"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health répond 200 tant que Postgres répond
func Health(db Pinger, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logging.FromContext(c, log).WithError(err).Error("❌ Postgres injoignable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "postgres": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "postgres": "up"})
	}
}
