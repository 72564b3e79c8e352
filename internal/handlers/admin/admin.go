package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cedra_storefront/internal/accounts"
	"cedra_storefront/internal/cache"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/middleware"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/services"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

type Users interface {
	List(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int, error)
}

type Orders interface {
	ListAll(ctx context.Context) ([]models.Order, error)
	Count(ctx context.Context) (int, error)
	TotalSales(ctx context.Context) (decimal.Decimal, error)
}

type Products interface {
	Search(ctx context.Context, f repository.ProductFilter) ([]models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Handler regroupe le back-office
type Handler struct {
	accounts *accounts.Service
	users    Users
	orders   Orders
	products Products
	cache    *cache.ProductCache
	index    *services.ProductIndex
	images   services.ImageStore
	audit    *utils.AuditLogger
	store    sessions.Store
	log      logrus.FieldLogger
}

type Deps struct {
	Accounts *accounts.Service
	Users    Users
	Orders   Orders
	Products Products
	Cache    *cache.ProductCache
	Index    *services.ProductIndex
	Images   services.ImageStore
	Audit    *utils.AuditLogger
	Store    sessions.Store
	Log      logrus.FieldLogger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		accounts: d.Accounts,
		users:    d.Users,
		orders:   d.Orders,
		products: d.Products,
		cache:    d.Cache,
		index:    d.Index,
		images:   d.Images,
		audit:    d.Audit,
		store:    d.Store,
		log:      d.Log,
	}
}

// POST /admin/login
func (h *Handler) Login(c *gin.Context) {
	if who, ok := middleware.CurrentIdentity(c); ok && who.IsAdmin {
		c.JSON(http.StatusOK, gin.H{"message": "Déjà connecté", "redirect": "/admin/dashboard"})
		return
	}

	var input struct {
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.ShouldBind(&input); err != nil || input.Email == "" || input.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email et mot de passe requis"})
		return
	}

	u, err := h.accounts.AuthenticateAdmin(c.Request.Context(), input.Email, input.Password)
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		entry := utils.NewAuditEntry(c, models.Identity{Email: input.Email}, utils.ACTION_LOGIN_FAILED, utils.RESOURCE_AUTH, "admin")
		h.audit.Record(utils.Failed(entry, err.Error()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiants administrateur invalides"})
		return
	case errors.Is(err, accounts.ErrNotAdmin):
		entry := utils.NewAuditEntry(c, models.Identity{Email: input.Email}, utils.ACTION_ADMIN_ACCESS, utils.RESOURCE_AUTH, "admin")
		h.audit.Record(utils.Failed(entry, err.Error()))
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès administrateur refusé"})
		return
	case err != nil:
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur connexion admin")
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

	h.audit.Record(utils.NewAuditEntry(c, u.Identity(), utils.ACTION_ADMIN_ACCESS, utils.RESOURCE_AUTH, strconv.FormatInt(u.ID, 10)))
	c.JSON(http.StatusOK, gin.H{"message": "Bienvenue", "user": u, "redirect": "/admin/dashboard"})
}

type counts struct {
	Products int `json:"products"`
	Users    int `json:"users"`
	Orders   int `json:"orders"`
}

func (h *Handler) counts(ctx context.Context) (counts, error) {
	var out counts
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { out.Products, err = h.products.Count(ctx); return })
	g.Go(func() (err error) { out.Users, err = h.users.Count(ctx); return })
	g.Go(func() (err error) { out.Orders, err = h.orders.Count(ctx); return })
	return out, g.Wait()
}

// GET /admin/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	n, err := h.counts(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "❌ Erreur tableau de bord")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_products": n.Products,
		"total_users":    n.Users,
		"total_orders":   n.Orders,
	})
}

// GET /admin/dashboard/advanced
func (h *Handler) DashboardAdvanced(c *gin.Context) {
	n, err := h.counts(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "❌ Erreur tableau de bord")
		return
	}
	sales, err := h.orders.TotalSales(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "❌ Erreur total des ventes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": gin.H{
		"products":    n.Products,
		"users":       n.Users,
		"orders":      n.Orders,
		"total_sales": sales,
	}})
}

// GET /admin/users
func (h *Handler) Users(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "❌ Erreur liste utilisateurs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GET /admin/orders
func (h *Handler) Orders(c *gin.Context) {
	orders, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		h.serverError(c, err, "❌ Erreur liste commandes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) serverError(c *gin.Context, err error, msg string) {
	logging.FromContext(c, h.log).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
}
