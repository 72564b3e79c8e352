package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/accounts"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/middleware"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type AuthHandler struct {
	accounts *accounts.Service
	store    sessions.Store
	tokens   *utils.TokenIssuer
	mailer   *utils.Mailer
	audit    *utils.AuditLogger
	log      logrus.FieldLogger
}

func NewAuthHandler(svc *accounts.Service, store sessions.Store, tokens *utils.TokenIssuer, mailer *utils.Mailer, audit *utils.AuditLogger, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{accounts: svc, store: store, tokens: tokens, mailer: mailer, audit: audit, log: log}
}

// POST /register
func (h *AuthHandler) Register(c *gin.Context) {
	if _, ok := middleware.CurrentIdentity(c); ok {
		c.JSON(http.StatusOK, gin.H{"message": "Déjà connecté", "redirect": "/"})
		return
	}

	var input accounts.Registration
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	u, err := h.accounts.Register(c.Request.Context(), input)
	var verr *accounts.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		return
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur inscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	entry := utils.NewAuditEntry(c, u.Identity(), utils.ACTION_USER_CREATE, utils.RESOURCE_USER, strconv.FormatInt(u.ID, 10))
	h.audit.Record(entry)

	if h.mailer.Enabled() {
		email, name := u.Email, u.Name
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.mailer.SendWelcome(ctx, email, name); err != nil {
				h.log.WithError(err).Warn("⚠️ E-mail de bienvenue non envoyé")
			}
		}()
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Inscription réussie. Vous pouvez vous connecter.",
		"user":     u,
		"redirect": "/login",
	})
}

// POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	if _, ok := middleware.CurrentIdentity(c); ok {
		c.JSON(http.StatusOK, gin.H{"message": "Déjà connecté", "redirect": "/"})
		return
	}

	var input credentials
	if err := c.ShouldBind(&input); err != nil || input.Email == "" || input.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email et mot de passe requis"})
		return
	}

	u, err := h.accounts.Authenticate(c.Request.Context(), input.Email, input.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		entry := utils.NewAuditEntry(c, models.Identity{Email: input.Email}, utils.ACTION_LOGIN_FAILED, utils.RESOURCE_AUTH, "")
		h.audit.Record(utils.Failed(entry, err.Error()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiants invalides"})
		return
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur connexion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	s := session.Get(c, h.store)
	session.SetUserID(s, u.ID)
	if err := session.Save(c, s); err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur sauvegarde session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	h.audit.Record(utils.NewAuditEntry(c, u.Identity(), utils.ACTION_LOGIN_SUCCESS, utils.RESOURCE_AUTH, strconv.FormatInt(u.ID, 10)))
	c.JSON(http.StatusOK, gin.H{"message": "Connexion réussie", "user": u, "redirect": "/"})
}

// GET /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	who, _ := middleware.CurrentIdentity(c)

	s := session.Get(c, h.store)
	session.ClearUser(s)
	if err := session.Save(c, s); err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur sauvegarde session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	h.audit.Record(utils.NewAuditEntry(c, who, utils.ACTION_LOGOUT, utils.RESOURCE_AUTH, strconv.FormatInt(who.UserID, 10)))
	c.JSON(http.StatusOK, gin.H{"message": "Déconnecté", "redirect": "/"})
}

// POST /api/token : token Bearer pour les clients d'API
func (h *AuthHandler) Token(c *gin.Context) {
	var input credentials
	if err := c.ShouldBind(&input); err != nil || input.Email == "" || input.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email et mot de passe requis"})
		return
	}

	u, err := h.accounts.Authenticate(c.Request.Context(), input.Email, input.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiants invalides"})
		return
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur authentification API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	token, exp, err := h.tokens.Generate(u.Identity())
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur génération token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	h.audit.Record(utils.NewAuditEntry(c, u.Identity(), utils.ACTION_TOKEN_ISSUED, utils.RESOURCE_AUTH, strconv.FormatInt(u.ID, 10)))
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": "Bearer", "expires_at": exp})
}
