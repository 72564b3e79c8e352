package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cart"
	"cedra_storefront/internal/checkout"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/metrics"
	"cedra_storefront/internal/middleware"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/session"
	"cedra_storefront/internal/utils"
)

type OrderReader interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
}

type OrderHandler struct {
	materializer *checkout.Materializer
	orders       OrderReader
	catalog      cart.Catalog
	store        sessions.Store
	mailer       *utils.Mailer
	audit        *utils.AuditLogger
	metrics      *metrics.Metrics
	log          logrus.FieldLogger
}

func NewOrderHandler(
	materializer *checkout.Materializer,
	orders OrderReader,
	catalog cart.Catalog,
	store sessions.Store,
	mailer *utils.Mailer,
	audit *utils.AuditLogger,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *OrderHandler {
	return &OrderHandler{
		materializer: materializer,
		orders:       orders,
		catalog:      catalog,
		store:        store,
		mailer:       mailer,
		audit:        audit,
		metrics:      m,
		log:          log,
	}
}

// POST /checkout
func (h *OrderHandler) Checkout(c *gin.Context) {
	who, _ := middleware.CurrentIdentity(c)
	log := logging.FromContext(c, h.log).WithField("user_id", who.UserID)

	s := session.Get(c, h.store)
	crt := cart.Load(s)

	res, err := h.materializer.Checkout(c.Request.Context(), crt, who)
	switch {
	case errors.Is(err, checkout.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentification requise", "redirect": "/login"})
		return
	case errors.Is(err, checkout.ErrEmptyCart):
		h.metrics.Checkout("empty", decimal.Zero)
		c.JSON(http.StatusBadRequest, gin.H{"warning": "Votre panier est vide.", "redirect": "/"})
		return
	case errors.Is(err, checkout.ErrOrderTooLarge):
		h.metrics.Checkout("too_large", decimal.Zero)
		c.JSON(http.StatusBadRequest, gin.H{"warning": "Le montant de la commande dépasse la limite autorisée.", "redirect": "/cart"})
		return
	case errors.Is(err, checkout.ErrNoValidItems):
		h.metrics.Checkout("no_items", decimal.Zero)
		// le panier a été nettoyé des produits disparus
		cart.Save(s, crt)
		if err := session.Save(c, s); err != nil {
			log.WithError(err).Error("❌ Erreur sauvegarde session")
		}
		c.JSON(http.StatusBadRequest, gin.H{"warning": "Aucun produit de votre panier n'est encore disponible.", "redirect": "/cart"})
		return
	case err != nil:
		h.metrics.Checkout("failed", decimal.Zero)
		log.WithError(err).Error("❌ Erreur création commande")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Impossible d'enregistrer la commande, veuillez réessayer."})
		return
	}

	order := res.Order
	cart.Save(s, crt)
	if err := session.Save(c, s); err != nil {
		// la commande est validée; un panier resté en session sera recommandé au pire
		log.WithError(err).Error("❌ Erreur sauvegarde session après commande")
	}

	h.metrics.Checkout("created", order.Total)
	entry := utils.NewAuditEntry(c, who, utils.ACTION_ORDER_CREATE, utils.RESOURCE_ORDER, strconv.FormatInt(order.ID, 10))
	h.audit.Record(utils.WithValues(entry, nil, order))

	if h.mailer.Enabled() && who.Email != "" {
		h.sendConfirmation(who, *order)
	}

	log.WithFields(logrus.Fields{"order_id": order.ID, "total": order.Total.StringFixed(2)}).Info("🛒 Commande créée")
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Commande passée avec succès !",
		"order":    order,
		"skipped":  res.Skipped,
		"redirect": "/orders",
	})
}

func (h *OrderHandler) sendConfirmation(who models.Identity, order models.Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ids := make([]int64, 0, len(order.Items))
		for _, item := range order.Items {
			if item.ProductID != nil {
				ids = append(ids, *item.ProductID)
			}
		}
		titles := map[int64]string{}
		if products, err := h.catalog.GetMany(ctx, ids); err == nil {
			for id, p := range products {
				titles[id] = p.Title
			}
		}

		if err := h.mailer.SendOrderConfirmation(ctx, who.Email, who.Name, order, titles); err != nil {
			h.log.WithError(err).WithField("order_id", order.ID).Warn("⚠️ E-mail de confirmation non envoyé")
		}
	}()
}

// GET /orders
func (h *OrderHandler) History(c *gin.Context) {
	who, _ := middleware.CurrentIdentity(c)

	orders, err := h.orders.ListByUser(c.Request.Context(), who.UserID)
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur lecture commandes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GET /orders/:id
func (h *OrderHandler) Detail(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

// GET /orders/:id/qrcode
func (h *OrderHandler) QRCode(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}

	png, err := utils.OrderReceiptQR(*order, 256)
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur génération QR")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ownedOrder charge la commande demandée. Une commande d'un autre client
// répond 404 pour ne pas révéler son existence, sauf pour un admin.
func (h *OrderHandler) ownedOrder(c *gin.Context) (*models.Order, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID commande invalide"})
		return nil, false
	}

	order, err := h.orders.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return nil, false
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur lecture commande")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return nil, false
	}

	who, _ := middleware.CurrentIdentity(c)
	if order.UserID != who.UserID && !who.IsAdmin {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return nil, false
	}
	return order, true
}
