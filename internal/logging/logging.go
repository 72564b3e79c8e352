package logging

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader est propagé vers le client pour corréler les logs
const RequestIDHeader = "X-Request-ID"

// New crée le logger JSON de l'application
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// GinLogger remplace le logger par défaut de gin
func GinLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		})

		switch {
		case c.Writer.Status() >= 500:
			entry.Error("❌ Requête échouée")
		case c.Writer.Status() >= 400:
			entry.Warn("⚠️ Requête refusée")
		default:
			entry.Info("requête traitée")
		}
	}
}

// FromContext retourne un logger enrichi avec l'identifiant de requête
func FromContext(c *gin.Context, log logrus.FieldLogger) logrus.FieldLogger {
	if id := c.GetString("request_id"); id != "" {
		return log.WithField("request_id", id)
	}
	return log
}
