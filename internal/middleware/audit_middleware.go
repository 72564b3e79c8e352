package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cedra_storefront/internal/utils"
)

// AuditCriticalActions audite l'action une fois la requête traitée.
// Les handlers peuvent fournir l'id créé via c.Set("audit_resource_id", ...)
// et l'état avant/après via "audit_old_value" / "audit_new_value".
func AuditCriticalActions(audit *utils.AuditLogger, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		who, _ := CurrentIdentity(c)
		resourceID := c.Param("id")
		if v := c.GetString("audit_resource_id"); v != "" {
			resourceID = v
		}

		entry := utils.NewAuditEntry(c, who, action, resource, resourceID)
		oldValue, _ := c.Get("audit_old_value")
		newValue, _ := c.Get("audit_new_value")
		entry = utils.WithValues(entry, oldValue, newValue)

		if status := c.Writer.Status(); status < 200 || status >= 300 {
			entry = utils.Failed(entry, http.StatusText(status))
		}
		audit.Record(entry)
	}
}
