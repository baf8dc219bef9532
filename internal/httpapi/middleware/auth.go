package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/auth"
)

const TenantKeyKey = "tenantKey"

// AuthRequired validates the Bearer JWT minted by the token endpoint and puts
// the tenant key into the request context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 40101, "message": "missing authorization header", "data": nil,
			})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 40102, "message": "invalid authorization header", "data": nil,
			})
			return
		}
		claims, err := auth.ParseJWT(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 40103, "message": "invalid token", "data": nil,
			})
			return
		}
		c.Set(TenantKeyKey, claims.TenantKey)
		c.Next()
	}
}
