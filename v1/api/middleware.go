package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/mirkobrombin/go-seckill/v1/lock"
)

const (
	headerRequestID = "X-Request-Id"
	headerUserID    = "X-User-Id"
	keyUserID       = "userID"
	keyCaller       = "caller"
)

// requestID tags every request with an id for log correlation, echoing the
// client's X-Request-Id when present. The lock caller is always generated
// here so that no two in-flight requests share a holder identity.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := uuid.GenerateUUID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, fail("cannot generate request id"))
			return
		}
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = caller
		}
		c.Header(headerRequestID, id)
		c.Set(keyCaller, caller)
		c.Request = c.Request.WithContext(lock.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.Writer.Header().Get(headerRequestID),
			"caller", c.GetString(keyCaller),
		)
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("login required"))
			return
		}
		c.Set(keyUserID, id)
		c.Next()
	}
}
