package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-loadsim/internal/middleware"
	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

func claimsFromContext(c *gin.Context) *models.OperatorClaims {
	value, exists := c.Get(middleware.ContextOperatorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.OperatorClaims)
	if !ok {
		return nil
	}
	return claims
}
