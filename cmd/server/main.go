package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/accounts"
	"cedra_storefront/internal/cache"
	"cedra_storefront/internal/checkout"
	"cedra_storefront/internal/config"
	"cedra_storefront/internal/database"
	"cedra_storefront/internal/handlers"
	"cedra_storefront/internal/handlers/admin"
	"cedra_storefront/internal/handlers/product"
	"cedra_storefront/internal/handlers/user"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/metrics"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/routes"
	"cedra_storefront/internal/services"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

func main() {
	log := logging.New("info")
	if err := run(log); err != nil {
		log.WithError(err).Fatal("❌ Arrêt du serveur")
	}
}

func run(log *logrus.Logger) error {
	config.Load(log)

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer clients.Close()

	// Stores
	productRepo := repository.NewProductRepository(clients.Postgres)
	userRepo := repository.NewUserRepository(clients.Postgres)
	orderRepo := repository.NewOrderRepository(clients.Postgres)

	accountSvc := accounts.NewService(userRepo, log)
	if err := accountSvc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		if errors.Is(err, accounts.ErrAdminNotProvisioned) {
			log.Error("❌ Aucun administrateur: définissez ADMIN_EMAIL et ADMIN_PASSWORD")
		}
		return err
	}

	// Services
	var images services.ImageStore
	uploadDir := ""
	if clients.MinIO != nil {
		images = services.NewMinIOImageStore(clients.MinIO, cfg.MinIOBucket)
	} else {
		local := services.NewLocalImageStore(cfg.UploadDir)
		images = local
		uploadDir = local.Dir()
	}

	productCache := cache.NewProductCache(clients.Redis)
	limiter := cache.NewLimiter(clients.Redis)
	index := services.NewProductIndex(clients.Elastic)
	if index.Enabled() {
		go backfillIndex(ctx, index, productRepo, log)
	}
	audit := utils.NewAuditLogger(clients.Scylla, log)
	m := metrics.New()
	store := session.NewStore(cfg.SessionSecret, cfg.CookieSecure)
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	mailer := utils.NewMailer(utils.MailerConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if !mailer.Enabled() {
		log.Warn("⚠️ SMTP_HOST absent: e-mails désactivés")
	}
	chat := services.NewChatProxy(services.ChatConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.ChatTimeout,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Store:       store,
		Users:       userRepo,
		Tokens:      tokens,
		Limiter:     limiter,
		Audit:       audit,
		Metrics:     m,
		DB:          clients.Postgres,
		CORSOrigins: cfg.CORSOrigins,
		UploadDir:   uploadDir,
		Log:         log,

		Products: product.NewHandler(productRepo, productCache, index, images, log),
		Auth:     user.NewAuthHandler(accountSvc, store, tokens, mailer, audit, log),
		Cart:     user.NewCartHandler(productRepo, store, log),
		Orders: user.NewOrderHandler(
			checkout.NewMaterializer(orderRepo, log),
			orderRepo, productRepo, store, mailer, audit, m, log,
		),
		Admin: admin.NewHandler(admin.Deps{
			Accounts: accountSvc,
			Users:    userRepo,
			Orders:   orderRepo,
			Products: productRepo,
			Cache:    productCache,
			Index:    index,
			Images:   images,
			Audit:    audit,
			Store:    store,
			Log:      log,
		}),
		Chat: handlers.NewChatHandler(chat, m, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// le proxy IA peut prendre jusqu'à CHAT_TIMEOUT
		WriteTimeout: cfg.ChatTimeout + 20*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("🚀 Serveur Cedra lancé")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("🛑 Arrêt demandé, fin des requêtes en cours")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	audit.Wait()
	log.Info("👋 Serveur arrêté")
	return nil
}

// backfillIndex recopie le catalogue Postgres dans Elasticsearch au démarrage
func backfillIndex(ctx context.Context, index *services.ProductIndex, products *repository.ProductRepository, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	all, err := products.Search(ctx, repository.ProductFilter{})
	if err != nil {
		log.WithError(err).Warn("⚠️ Lecture du catalogue pour l'index impossible")
		return
	}
	n, err := index.Reindex(ctx, all)
	entry := log.WithFields(logrus.Fields{"indexed": n, "products": len(all)})
	if err != nil {
		entry.WithError(err).Warn("⚠️ Réindexation Elasticsearch incomplète")
		return
	}
	entry.Info("🔍 Index Elasticsearch synchronisé")
}
