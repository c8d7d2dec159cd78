package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/infrastructure/auth"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

// PrincipalKey stores the verified caller on the gin context
const PrincipalKey = "auth_principal"

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

// Authenticate requires a valid bearer token and stores the principal on the context
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var principal *auth.Principal
			principal, err = verifier.Verify(token)
			if err == nil {
				c.Set(PrincipalKey, principal)
				ctx := logger.WithUserID(c.Request.Context(), principal.UserID.String())
				c.Request = c.Request.WithContext(ctx)
				c.Next()
				return
			}
		}

		logger.GetGinLogger(c).Debug("Rejected bearer token", zap.Error(err))
		code, message := dto.ErrCodeUnauthorized, "Missing or invalid authorization token"
		if errors.Is(err, auth.ErrExpiredToken) {
			code, message = dto.ErrCodeTokenExpired, "Authorization token has expired"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, message, GetRequestID(c)))
	}
}

// RequireAdmin allows only principals carrying the admin role. It must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Missing or invalid authorization token", GetRequestID(c)))
			return
		}
		if !p.IsAdmin {
			logger.GetGinLogger(c).Warn("Admin endpoint refused",
				zap.String("user_id", p.UserID.String()),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				dto.ErrCodeForbidden, "Admin access required", GetRequestID(c)))
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller, or nil before Authenticate ran
func GetPrincipal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
