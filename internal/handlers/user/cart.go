package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cart"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/session"
)

type Catalog interface {
	cart.Catalog
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type CartHandler struct {
	catalog Catalog
	store   sessions.Store
	log     logrus.FieldLogger
}

func NewCartHandler(catalog Catalog, store sessions.Store, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{catalog: catalog, store: store, log: log}
}

// GET /cart
func (h *CartHandler) View(c *gin.Context) {
	crt := cart.Load(session.Get(c, h.store))

	view, err := crt.View(c.Request.Context(), h.catalog)
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur lecture panier")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /cart/add/:id  (qty optionnel, 1 par défaut)
func (h *CartHandler) Add(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	var input struct {
		Qty *int `json:"qty" form:"qty"`
	}
	// ContentLength vaut -1 pour un corps chunked
	if err := c.ShouldBind(&input); err != nil && c.Request.ContentLength != 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantité invalide"})
		return
	}
	qty := 1
	if input.Qty != nil {
		qty = *input.Qty
	}

	if _, err := h.catalog.GetByID(c.Request.Context(), id); errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	} else if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur lecture produit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	s := session.Get(c, h.store)
	crt := cart.Load(s)
	if err := crt.Add(id, qty); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.save(c, s, crt) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ajouté au panier", "product_id": id, "qty": crt.Quantity(id)})
}

// POST /cart/remove/:id
func (h *CartHandler) Remove(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	s := session.Get(c, h.store)
	crt := cart.Load(s)
	crt.Remove(id)
	if !h.save(c, s, crt) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article retiré", "redirect": "/cart"})
}

func (h *CartHandler) save(c *gin.Context, s *sessions.Session, crt *cart.Cart) bool {
	cart.Save(s, crt)
	if err := session.Save(c, s); err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur sauvegarde session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return false
	}
	return true
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return 0, false
	}
	return id, true
}
