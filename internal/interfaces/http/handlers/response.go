// Package handlers implements the HTTP handlers of the sessiond REST API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitizen-labs/sessiond/internal/interfaces/http/middleware"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
)

// ErrorResponse is the uniform error body. Automated callers branch on Code;
// Details carries the policy metadata (limits, statuses, references).
type ErrorResponse struct {
	Code    constants.ErrorCode    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondError maps an application error to its HTTP shape. Foreign errors
// collapse to an opaque 500 so internals never leak.
func respondError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Code:    appErr.Code(),
			Message: appErr.Error(),
			Details: appErr.Metadata(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    constants.ErrCodeInternal,
		Message: "internal error",
	})
}

// authorizePrincipal enforces that the authenticated caller owns the
// resource. Routes served without the principal middleware carry no caller
// identity; ownership is then the upstream authenticator's responsibility.
func authorizePrincipal(c *gin.Context, ownerID string) bool {
	caller := middleware.PrincipalFromContext(c)
	if caller == "" || caller == ownerID {
		return true
	}
	respondError(c, errors.ErrPrincipalMismatch(caller))
	return false
}
