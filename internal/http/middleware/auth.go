package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/http/response"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

type AuthMiddleware struct {
	log   *logger.Logger
	guard *auth.Guard
}

func NewAuthMiddleware(log *logger.Logger, guard *auth.Guard) *AuthMiddleware {
	middlewareLogger := log.With("middleware", "AuthMiddleware")
	if !guard.Configured() {
		middlewareLogger.Error("POINT_E_SECRET_KEY is not set; protected routes will refuse every request")
	}
	return &AuthMiddleware{log: middlewareLogger, guard: guard}
}

// RequireAuth checks the bearer secret before any handler work runs. A deployment without a
// secret answers 500 auth_not_configured instead of letting requests through.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := am.guard.VerifyCredential(c.GetHeader("Authorization"))
		if err != nil {
			if errors.Is(err, auth.ErrSecretNotConfigured) {
				response.AbortAPIError(c, apierr.Misconfigured("auth_not_configured", errors.New("authentication is not configured on this server")))
				return
			}
			response.AbortAPIError(c, err)
			return
		}
		if !ok {
			am.log.Warn("Rejected request with invalid credential",
				"path", c.Request.URL.Path,
				"origin_address", originAddress(c),
			)
			c.Header("WWW-Authenticate", `Bearer realm="pointgen"`)
			response.AbortAPIError(c, apierr.Unauthorized("unauthorized", errors.New("invalid or missing authentication token")))
			return
		}
		c.Next()
	}
}

func originAddress(c *gin.Context) string {
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil && td.OriginAddress != "" {
		return td.OriginAddress
	}
	return auth.ExtractOriginAddress(c.Request)
}
