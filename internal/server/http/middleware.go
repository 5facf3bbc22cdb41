package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	principalKey    = "principal"
	maxRequestIDLen = 128
)

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Gate authenticates bearer tokens. *services.Authenticator implements it.
type Gate interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// RequestID reuses a sane incoming X-Request-ID or mints a ULID, echoes it
// on the response and stores it in the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" || len(id) > maxRequestIDLen {
			id = ulid.Make().String()
		}

		c.Header(common.RequestIDHeaderName, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog writes one record per request after it finished.
func AccessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Metrics reports every request to obs. A nil obs disables it.
func Metrics(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if obs == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		obs.ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// Recovery turns a panic into a generic 500 and logs it.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:     internalErrorMessage,
			RequestID: logging.RequestID(c.Request.Context()),
		})
	})
}

// Timeout bounds the request context. Store calls made with it give up
// once d has passed.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth lets the request through only with a valid access token for
// an active user, who is then available via Principal.
func RequireAuth(gate Gate, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := services.ExtractBearer(c.GetHeader(common.AuthorizationHeaderName))
		if !ok {
			writeError(c, logger, common.Unauthorized(common.InvalidTokenMessage))
			return
		}

		user, err := gate.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.Set(principalKey, user)
		c.Next()
	}
}

// Principal returns the user stored by RequireAuth.
func Principal(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
