package handler

import (
	"net/http"
	"strings"

	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Request headers identifying the caller. Identity is trusted as given;
// token validation happens in front of this service.
const (
	HeaderOperatorID = "X-Operator-ID"
	HeaderTenantID   = "X-Tenant-ID"
)

// Context keys set by Authenticate.
const (
	ctxOperatorID = "operatorID"
	ctxTenantID   = "tenantID"
)

// Authenticate reads the caller's operator and tenant from the request
// headers. Browsers cannot set headers on WebSocket upgrades, so the
// operatorId/tenantId query parameters are accepted as a fallback.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := strings.TrimSpace(c.GetHeader(HeaderOperatorID))
		if operatorID == "" {
			operatorID = strings.TrimSpace(c.Query("operatorId"))
		}
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		if tenantID == "" {
			tenantID = strings.TrimSpace(c.Query("tenantId"))
		}

		if operatorID == "" || tenantID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, models.Fail(codeUnauthorized, "Missing authentication headers"))
			return
		}

		c.Set(ctxOperatorID, operatorID)
		c.Set(ctxTenantID, tenantID)
		utils.GetLogger().Debug("Request authenticated",
			"operatorId", operatorID, "tenantId", tenantID, "path", c.FullPath())
		c.Next()
	}
}

func caller(c *gin.Context) (operatorID, tenantID string) {
	return c.GetString(ctxOperatorID), c.GetString(ctxTenantID)
}
