package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
	"github.com/noah-isme/course-registration-loadsim/pkg/response"
)

// ContextOperatorKey is the gin context key storing operator claims.
const ContextOperatorKey = "currentOperator"

type tokenValidator interface {
	ValidateToken(token string) (*models.OperatorClaims, error)
}

// JWT protects routes by requiring a valid operator token.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextOperatorKey, claims)
		c.Next()
	}
}

// RequireRole lets through only operators holding one of the roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextOperatorKey)
		if !exists {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		claims, ok := value.(*models.OperatorClaims)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Abort(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
