package product

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/cache"
	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/services"
)

const searchResultSize = 20

type Catalog interface {
	Search(ctx context.Context, f repository.ProductFilter) ([]models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// Handler sert la partie publique du catalogue
type Handler struct {
	catalog Catalog
	cache   *cache.ProductCache
	index   *services.ProductIndex
	images  services.ImageStore
	log     logrus.FieldLogger
}

func NewHandler(catalog Catalog, pc *cache.ProductCache, index *services.ProductIndex, images services.ImageStore, log logrus.FieldLogger) *Handler {
	return &Handler{catalog: catalog, cache: pc, index: index, images: images, log: log}
}

// GET /?q=&category=&min=&max=
func (h *Handler) Index(c *gin.Context) {
	filter := repository.ProductFilter{
		Query:    strings.TrimSpace(c.Query("q")),
		Category: strings.TrimSpace(c.Query("category")),
	}

	var err error
	if filter.MinPrice, err = parsePrice(c.Query("min")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prix minimum invalide"})
		return
	}
	if filter.MaxPrice, err = parsePrice(c.Query("max")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prix maximum invalide"})
		return
	}

	products, err := h.catalog.Search(c.Request.Context(), filter)
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur recherche produits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"q":        filter.Query,
		"category": filter.Category,
	})
}

// GET /product/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}
	ctx := c.Request.Context()

	if p, ok := h.cache.Get(ctx, id); ok {
		c.JSON(http.StatusOK, gin.H{"product": p})
		return
	}

	p, err := h.catalog.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur lecture produit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	if err := h.cache.Set(ctx, p); err != nil {
		h.log.WithError(err).Warn("⚠️ Mise en cache produit échouée")
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

// GET /api/search?q= : Elasticsearch, sinon (erreur ou aucun résultat) filtre SQL sur le titre
func (h *Handler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paramètre q requis"})
		return
	}
	ctx := c.Request.Context()
	log := logging.FromContext(c, h.log)

	if h.index.Enabled() {
		products, err := h.searchIndex(ctx, q)
		switch {
		case err != nil:
			log.WithError(err).Warn("⚠️ Recherche Elasticsearch échouée, repli sur Postgres")
		case len(products) > 0:
			c.JSON(http.StatusOK, gin.H{"products": products, "source": "elasticsearch"})
			return
		default:
			// l'index peut ne pas encore contenir tout le catalogue
			log.WithField("query", q).Debug("🔍 Aucun résultat Elasticsearch, repli sur Postgres")
		}
	}

	products, err := h.catalog.Search(ctx, repository.ProductFilter{Query: q})
	if err != nil {
		log.WithError(err).Error("❌ Erreur recherche produits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "source": "postgres"})
}

// searchIndex recharge depuis Postgres les produits trouvés par l'index, dans
// l'ordre de pertinence. Un id indexé mais supprimé de Postgres est ignoré.
func (h *Handler) searchIndex(ctx context.Context, q string) ([]models.Product, error) {
	ids, err := h.index.Search(ctx, q, searchResultSize)
	if err != nil {
		return nil, err
	}
	found, err := h.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// GET /images/*key : redirige vers l'URL servie par le stockage
func (h *Handler) Image(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	url, err := h.images.URL(c.Request.Context(), key)
	if errors.Is(err, services.ErrInvalidImageKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image introuvable"})
		return
	}
	if err != nil {
		logging.FromContext(c, h.log).WithError(err).Error("❌ Erreur URL image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
