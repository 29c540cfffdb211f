package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
	"github.com/noah-isme/course-registration-loadsim/pkg/middleware/requestid"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       any                `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	Meta       map[string]any     `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination and metadata. The
// request ID, when present, is copied into meta so clients can quote it.
func JSON(c *gin.Context, status int, data any, pagination *models.Pagination, meta ...map[string]any) {
	var m map[string]any
	if len(meta) > 0 {
		m = meta[0]
	}
	write(c, status, Envelope{Data: data, Pagination: pagination, Meta: withRequestID(c, m)})
}

// Accepted responds with HTTP 202 for work that completes asynchronously.
// A non-empty location is sent as the Location header for status polling.
func Accepted(c *gin.Context, location string, data any) {
	if location != "" {
		c.Header("Location", location)
	}
	JSON(c, http.StatusAccepted, data, nil)
}

// Error converts err to the common error structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	write(c, appErr.Status, Envelope{Error: appErr, Meta: withRequestID(c, nil)})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func write(c *gin.Context, status int, env Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, env)
}

func withRequestID(c *gin.Context, meta map[string]any) map[string]any {
	id := requestid.Value(c)
	if id == "" {
		return meta
	}
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["request_id"] = id
	return out
}
