package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
)

const genericInternalMessage = "internal server error"

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError renders err with the status of its apierr kind. Internal and storage failures
// get a generic message so internals never reach the caller.
func RespondAPIError(c *gin.Context, err error) {
	e, ok := apierr.As(err)
	if !ok {
		e = apierr.Internal(err)
	}
	switch e.Kind {
	case apierr.KindInternal, apierr.KindStorageFailure:
		RespondError(c, e.Status, e.Code, errors.New(genericInternalMessage))
	default:
		RespondError(c, e.Status, e.Code, e.Err)
	}
}

func AbortAPIError(c *gin.Context, err error) {
	RespondAPIError(c, err)
	c.Abort()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
