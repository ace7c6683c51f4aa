// internal/pkg/response/response.go
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a success envelope. A zero status means 200.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

// Error aborts the handler chain and writes a failure envelope. err, when
// set, is exposed as the machine-readable error field; data[0], when given,
// becomes the payload.
func Error(c *gin.Context, status int, message string, err error, data ...interface{}) {
	c.Abort()

	body := Response{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	if len(data) > 0 {
		body.Data = data[0]
	}
	c.JSON(status, body)
}
