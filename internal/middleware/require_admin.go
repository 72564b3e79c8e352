package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthRequired exige un utilisateur connecté
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "Connexion requise",
				"redirect": "/login",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin vérifie que l'utilisateur connecté est administrateur
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "Connexion administrateur requise",
				"redirect": "/admin/login",
			})
			return
		}
		if !id.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "Accès réservé aux administrateurs",
				"redirect": "/admin/login",
			})
			return
		}
		c.Next()
	}
}
