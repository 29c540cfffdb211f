package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

type validatorStub struct {
	claims *models.OperatorClaims
}

func (v validatorStub) ValidateToken(token string) (*models.OperatorClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type requestRecorder struct {
	method string
	path   string
	status int
}

func (r *requestRecorder) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.method, r.path, r.status = method, path, status
}

func newProtectedRouter(claims *models.OperatorClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/runs", JWT(validatorStub{claims: claims}), RequireRole(models.RoleOperator), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newProtectedRouter(&models.OperatorClaims{Role: models.RoleOperator})

	for _, header := range []string{"", "Basic abc", "Bearer bad"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/runs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestJWTAndRoleAllowOperators(t *testing.T) {
	r := newProtectedRouter(&models.OperatorClaims{Role: models.RoleOperator})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRequireRoleRejectsViewers(t *testing.T) {
	r := newProtectedRouter(&models.OperatorClaims{Role: models.RoleViewer})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	req.Header.Set("Authorization", "bearer good")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := &requestRecorder{}
	r := gin.New()
	r.Use(Metrics(recorder))
	r.GET("/runs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	assert.Equal(t, "/runs/:id", recorder.path)
	assert.Equal(t, http.StatusOK, recorder.status)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, "unmatched", recorder.path)
	assert.Equal(t, http.StatusNotFound, recorder.status)
}
