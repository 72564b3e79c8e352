package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/services"
)

const maxTitleLength = 200

// GET /admin/products
func (h *Handler) Products(c *gin.Context) {
	products, err := h.products.Search(c.Request.Context(), repository.ProductFilter{})
	if err != nil {
		h.serverError(c, err, "❌ Erreur liste produits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type productForm struct {
	Title       string
	Price       decimal.Decimal
	Description string
	Category    string
}

func parseProductForm(c *gin.Context) (productForm, map[string]string) {
	f := productForm{
		Title:       strings.TrimSpace(c.PostForm("title")),
		Description: strings.TrimSpace(c.PostForm("description")),
		Category:    strings.TrimSpace(c.PostForm("category")),
	}
	errs := map[string]string{}

	if f.Title == "" {
		errs["title"] = "titre requis"
	} else if len(f.Title) > maxTitleLength {
		errs["title"] = "titre trop long"
	}

	price, err := decimal.NewFromString(strings.TrimSpace(c.PostForm("price")))
	switch {
	case err != nil:
		errs["price"] = "prix invalide"
	case price.IsNegative():
		errs["price"] = "le prix doit être positif"
	default:
		f.Price = price.Round(2)
	}
	return f, errs
}

// saveImage stocke le fichier "image" s'il est présent; "" sinon
func (h *Handler) saveImage(c *gin.Context) (string, bool) {
	file, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) || (err == nil && file.Filename == "") {
		return "", true
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formulaire invalide"})
		return "", false
	}

	key, err := h.images.Save(c.Request.Context(), file)
	if errors.Is(err, services.ErrImageTooLarge) || errors.Is(err, services.ErrImageType) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"image": err.Error()}})
		return "", false
	}
	if err != nil {
		h.serverError(c, err, "❌ Erreur upload image")
		return "", false
	}
	return key, true
}

// POST /admin/products/add
func (h *Handler) AddProduct(c *gin.Context) {
	form, errs := parseProductForm(c)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	key, ok := h.saveImage(c)
	if !ok {
		return
	}

	p := &models.Product{
		Title:       form.Title,
		Price:       form.Price,
		Description: form.Description,
		Category:    form.Category,
		Image:       key,
	}
	if err := h.products.Create(c.Request.Context(), p); err != nil {
		h.discardImage(c, key)
		h.serverError(c, err, "❌ Erreur création produit")
		return
	}

	c.Set("audit_resource_id", strconv.FormatInt(p.ID, 10))
	c.Set("audit_new_value", p)
	h.reindex(*p)

	logging.FromContext(c, h.log).WithField("product_id", p.ID).Info("✅ Produit ajouté")
	c.JSON(http.StatusCreated, gin.H{"message": "Produit ajouté", "product": p, "redirect": "/admin/products"})
}

// POST /admin/products/edit/:id
func (h *Handler) EditProduct(c *gin.Context) {
	existing, ok := h.loadProduct(c)
	if !ok {
		return
	}

	form, errs := parseProductForm(c)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	key, ok := h.saveImage(c)
	if !ok {
		return
	}

	old := *existing
	updated := *existing
	updated.Title = form.Title
	updated.Price = form.Price
	updated.Description = form.Description
	updated.Category = form.Category
	if key != "" {
		updated.Image = key
	}

	if err := h.products.Update(c.Request.Context(), &updated); err != nil {
		h.discardImage(c, key)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
			return
		}
		h.serverError(c, err, "❌ Erreur mise à jour produit")
		return
	}

	// l'ancienne image n'est plus référencée
	if key != "" && old.Image != "" {
		h.discardImage(c, old.Image)
	}
	h.invalidate(c, updated.ID)
	h.reindex(updated)

	c.Set("audit_old_value", old)
	c.Set("audit_new_value", updated)
	c.JSON(http.StatusOK, gin.H{"message": "Produit mis à jour", "product": updated, "redirect": "/admin/products"})
}

// POST /admin/products/delete/:id
// Les lignes de commande gardent leur prix figé; leur product_id passe à NULL.
func (h *Handler) DeleteProduct(c *gin.Context) {
	existing, ok := h.loadProduct(c)
	if !ok {
		return
	}

	if err := h.products.Delete(c.Request.Context(), existing.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
			return
		}
		h.serverError(c, err, "❌ Erreur suppression produit")
		return
	}

	if existing.Image != "" {
		h.discardImage(c, existing.Image)
	}
	h.invalidate(c, existing.ID)
	h.unindex(existing.ID)

	c.Set("audit_old_value", existing)
	c.JSON(http.StatusOK, gin.H{"message": "Produit supprimé", "redirect": "/admin/products"})
}

func (h *Handler) loadProduct(c *gin.Context) (*models.Product, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return nil, false
	}

	p, err := h.products.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		return nil, false
	}
	if err != nil {
		h.serverError(c, err, "❌ Erreur lecture produit")
		return nil, false
	}
	return p, true
}

func (h *Handler) discardImage(c *gin.Context, key string) {
	if key == "" {
		return
	}
	if err := h.images.Delete(c.Request.Context(), key); err != nil {
		logging.FromContext(c, h.log).WithError(err).WithField("key", key).Warn("⚠️ Image non supprimée")
	}
}

func (h *Handler) invalidate(c *gin.Context, id int64) {
	if err := h.cache.Invalidate(c.Request.Context(), id); err != nil {
		logging.FromContext(c, h.log).WithError(err).WithField("product_id", id).Warn("⚠️ Cache produit non invalidé")
	}
}

func (h *Handler) reindex(p models.Product) {
	if !h.index.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.index.Index(ctx, p); err != nil {
			h.log.WithError(err).WithField("product_id", p.ID).Warn("⚠️ Indexation Elasticsearch échouée")
		}
	}()
}

func (h *Handler) unindex(id int64) {
	if !h.index.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.index.Delete(ctx, id); err != nil {
			h.log.WithError(err).WithField("product_id", id).Warn("⚠️ Suppression Elasticsearch échouée")
		}
	}()
}
