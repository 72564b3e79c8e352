package routes

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cache"
	"cedra_storefront/internal/handlers"
	"cedra_storefront/internal/handlers/admin"
	"cedra_storefront/internal/handlers/product"
	"cedra_storefront/internal/handlers/user"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/metrics"
	"cedra_storefront/internal/middleware"
	"cedra_storefront/internal/utils"
)

// Deps regroupe tout ce dont les routes ont besoin
type Deps struct {
	Store       sessions.Store
	Users       middleware.UserLoader
	Tokens      *utils.TokenIssuer
	Limiter     *cache.Limiter
	Audit       *utils.AuditLogger
	Metrics     *metrics.Metrics
	DB          handlers.Pinger
	CORSOrigins []string
	// UploadDir est servi sous /uploads quand les images sont stockées en local
	UploadDir string
	Log       logrus.FieldLogger

	Products *product.Handler
	Auth     *user.AuthHandler
	Cart     *user.CartHandler
	Orders   *user.OrderHandler
	Admin    *admin.Handler
	Chat     *handlers.ChatHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(logging.GinLogger(d.Log), gin.Recovery(), d.Metrics.Middleware(), apiCORS(d.CORSOrigins))

	r.GET("/healthz", handlers.Health(d.DB, d.Log))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	app := r.Group("/", middleware.LoadIdentity(d.Store, d.Users, d.Tokens, d.Log))
	auth := middleware.AuthRequired()

	// Boutique
	app.GET("/", d.Products.Index)
	app.GET("/product/:id", d.Products.Get)
	app.GET("/images/*key", d.Products.Image)

	// Comptes
	app.POST("/register", d.Auth.Register)
	app.POST("/login", middleware.LoginRateLimit(d.Limiter, d.Log), d.Auth.Login)
	app.GET("/logout", auth, d.Auth.Logout)

	// Panier (session, aussi pour les visiteurs anonymes)
	app.GET("/cart", d.Cart.View)
	app.POST("/cart/add/:id", middleware.RateLimit(d.Limiter, "cart", middleware.CartMaxRequests, middleware.APIWindow, d.Log), d.Cart.Add)
	app.POST("/cart/remove/:id", d.Cart.Remove)

	// Commandes
	app.POST("/checkout", auth, d.Orders.Checkout)
	app.GET("/orders", auth, d.Orders.History)
	app.GET("/orders/:id", auth, d.Orders.Detail)
	app.GET("/orders/:id/qrcode", auth, d.Orders.QRCode)

	// API JSON
	api := app.Group("/api")
	{
		api.GET("/search", middleware.RateLimit(d.Limiter, "search", middleware.SearchMaxRequests, middleware.APIWindow, d.Log), d.Products.Search)
		api.POST("/token", middleware.LoginRateLimit(d.Limiter, d.Log), d.Auth.Token)
		api.POST("/chat", middleware.RateLimit(d.Limiter, "chat", middleware.ChatMaxRequests, middleware.APIWindow, d.Log), d.Chat.Chat)
	}

	// Back-office
	app.POST("/admin/login", middleware.LoginRateLimit(d.Limiter, d.Log), d.Admin.Login)
	adm := app.Group("/admin", middleware.RequireAdmin())
	{
		adm.GET("/dashboard", d.Admin.Dashboard)
		adm.GET("/dashboard/advanced", d.Admin.DashboardAdvanced)
		adm.GET("/users", d.Admin.Users)
		adm.GET("/orders", d.Admin.Orders)
		adm.GET("/products", d.Admin.Products)

		adm.POST("/products/add",
			middleware.AuditCriticalActions(d.Audit, utils.ACTION_PRODUCT_CREATE, utils.RESOURCE_PRODUCT),
			d.Admin.AddProduct)
		adm.POST("/products/edit/:id",
			middleware.AuditCriticalActions(d.Audit, utils.ACTION_PRODUCT_UPDATE, utils.RESOURCE_PRODUCT),
			d.Admin.EditProduct)
		adm.POST("/products/delete/:id",
			middleware.AuditCriticalActions(d.Audit, utils.ACTION_PRODUCT_DELETE, utils.RESOURCE_PRODUCT),
			d.Admin.DeleteProduct)

		adm.GET("/audit", d.Admin.AuditLogs)
		adm.GET("/audit/:resource/:resource_id", d.Admin.AuditLogsByResource)
	}
}

// apiCORS s'applique avant le routage: un preflight OPTIONS ne correspond
// à aucune route et n'atteindrait pas un middleware de groupe.
func apiCORS(origins []string) gin.HandlerFunc {
	handler := cors.New(corsConfig(origins))
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			handler(c)
		}
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
		ExposeHeaders:    []string{logging.RequestIDHeader, "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
