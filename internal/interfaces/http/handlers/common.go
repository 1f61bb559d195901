// Package handlers implements the gin handlers of the mapsync HTTP host.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/mapsync/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps an error to its HTTP status through the error code
// table.  Server-side failures are masked.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: code.String(), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if errors.As(err, &ae) && errors.IsClientError(code) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	c.AbortWithStatusJSON(status, resp)
}

// bindJSON decodes the request body or writes a 400.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeAppError(c, errors.InvalidParam("malformed request body").WithDetail(err.Error()))
		return false
	}
	return true
}

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

//Personal.AI order the ending
