package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

const identityKey = "identity"

type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// LoadIdentity résout l'utilisateur courant, depuis un token Bearer ou
// depuis la session, et le place dans le contexte gin. Une requête anonyme
// continue sans identité.
func LoadIdentity(store sessions.Store, users UserLoader, tokens *utils.TokenIssuer, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int64

		if header := c.GetHeader("Authorization"); header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Format Authorization invalide"})
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
				return
			}
			userID = claims.UserID
		} else {
			userID = session.UserID(session.Get(c, store))
		}

		if userID == 0 {
			c.Next()
			return
		}

		// le compte est relu à chaque requête: le flag admin n'est jamais pris du client
		u, err := users.GetByID(c.Request.Context(), userID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.WithField("user_id", userID).Warn("⚠️ Session pour un compte inexistant")
		case err != nil:
			log.WithError(err).Error("❌ Erreur chargement utilisateur")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
			return
		default:
			SetIdentity(c, u.Identity())
		}
		c.Next()
	}
}

func SetIdentity(c *gin.Context, id models.Identity) {
	c.Set(identityKey, id)
	c.Set("user_id", id.UserID)
}

// CurrentIdentity retourne l'utilisateur authentifié de la requête
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok && id.UserID != 0
}
