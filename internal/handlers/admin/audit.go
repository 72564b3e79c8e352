package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cedra_storefront/internal/utils"
)

// AuditLogs liste le journal d'audit avec filtres
// GET /admin/audit?user_id=&action=&resource=&success=&limit=
func (h *Handler) AuditLogs(c *gin.Context) {
	f := utils.AuditFilter{
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id invalide"})
			return
		}
		f.UserID = id
	}
	if v := c.Query("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "success invalide"})
			return
		}
		f.Success = &b
	}
	if !parseLimit(c, &f, utils.DefaultAuditLimit) {
		return
	}

	h.listAudit(c, f, gin.H{
		"user_id":  f.UserID,
		"action":   f.Action,
		"resource": f.Resource,
		"success":  f.Success,
		"limit":    f.Limit,
	})
}

// AuditLogsByResource liste l'historique d'une ressource
// GET /admin/audit/:resource/:resource_id
func (h *Handler) AuditLogsByResource(c *gin.Context) {
	f := utils.AuditFilter{
		Resource:   c.Param("resource"),
		ResourceID: c.Param("resource_id"),
	}
	if !parseLimit(c, &f, 50) {
		return
	}

	h.listAudit(c, f, gin.H{
		"resource":    f.Resource,
		"resource_id": f.ResourceID,
		"limit":       f.Limit,
	})
}

func (h *Handler) listAudit(c *gin.Context, f utils.AuditFilter, filters gin.H) {
	logs, err := h.audit.List(c.Request.Context(), f)
	if errors.Is(err, utils.ErrAuditUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Journal d'audit non configuré"})
		return
	}
	if err != nil {
		h.serverError(c, err, "❌ Erreur récupération logs audit")
		return
	}

	// limite atteinte : échantillon trié, pas nécessairement les plus récentes
	partial := len(logs) >= f.Limit
	c.JSON(http.StatusOK, gin.H{
		"logs":    logs,
		"total":   len(logs),
		"partial": partial,
		"filters": filters,
	})
}

func parseLimit(c *gin.Context, f *utils.AuditFilter, fallback int) bool {
	f.Limit = fallback
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit invalide"})
			return false
		}
		f.Limit = min(n, utils.MaxAuditLimit)
	}
	return true
}
