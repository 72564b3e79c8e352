package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cache"
)

const (
	LoginMaxAttempts = 5
	LoginCooldown    = 15 * time.Minute

	ChatMaxRequests   = 10
	CartMaxRequests   = 30
	SearchMaxRequests = 60
	APIWindow         = time.Minute
)

// LoginRateLimit bloque une IP après trop d'échecs de connexion.
// Un 401 compte comme échec, un 200 remet le compteur à zéro.
func LoginRateLimit(limiter *cache.Limiter, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := "login:" + c.ClientIP()

		wait, err := limiter.Cooldown(ctx, key)
		if err != nil {
			log.WithError(err).Warn("⚠️ Rate limit login indisponible")
		}
		if wait > 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de tentatives échouées. Réessayez dans %d minutes", int(wait.Minutes())+1),
				"retry_after": int(wait.Seconds()),
			})
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			if _, err := limiter.RecordFailure(ctx, key, LoginMaxAttempts, LoginCooldown); err != nil {
				log.WithError(err).Warn("⚠️ Échec enregistrement tentative de login")
			}
		case http.StatusOK:
			if err := limiter.Reset(ctx, key); err != nil {
				log.WithError(err).Warn("⚠️ Échec remise à zéro rate limit login")
			}
		}
	}
}

// RateLimit limite le nombre de requêtes par IP sur une fenêtre glissante simple
func RateLimit(limiter *cache.Limiter, name string, max int, window time.Duration, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, err := limiter.Allow(c.Request.Context(), name+":"+c.ClientIP(), max, window)
		if err != nil {
			// Redis en panne: on laisse passer
			log.WithError(err).Warn("⚠️ Rate limit indisponible")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Trop de requêtes. Réessayez dans 1 minute",
				"retry_after": int(window.Seconds()),
			})
			return
		}
		c.Next()
	}
}
