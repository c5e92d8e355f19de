package rbac

import (
	"context"
	"errors"
	"net/http"

	"call-pipeline/internal/auth"

	"github.com/gin-gonic/gin"
)

var ErrForbidden = errors.New("rbac: business not accessible")

// RequireBusiness enforces that every call-request read is scoped: a
// business_id must be present in the verified identity.
func RequireBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.BusinessID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "business_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses the check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ScopeBusiness resolves the business a request acts on. An empty request
// falls back to the caller's own business; only super_admin may name
// another one.
func ScopeBusiness(ctx context.Context, requested string) (string, error) {
	id, err := auth.IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	if id.BusinessID == "" {
		return "", auth.ErrNoBusiness
	}
	if requested == "" || requested == id.BusinessID {
		return id.BusinessID, nil
	}
	if IsSuperAdmin(id.Role) {
		return requested, nil
	}
	return "", ErrForbidden
}
