package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/dibs-shares/shares-server/pkg/metrics"
)

// newRelicMiddleware wraps each request in a New Relic web transaction and
// attaches the application so handlers can record custom events
func (s *Server) newRelicMiddleware() gin.HandlerFunc {
	if s.nr == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		name := c.FullPath()
		if len(name) == 0 {
			name = "NotFound"
		}

		txn := s.nr.StartTransaction(c.Request.Method + " " + name)
		defer txn.End()

		txn.SetWebRequestHTTP(c.Request)

		ctx := newrelic.NewContext(c.Request.Context(), txn)
		ctx = metrics.WithNewRelicApp(ctx, s.nr)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		txn.SetWebResponse(nil).WriteHeader(c.Writer.Status())
	}
}

// rateLimitMiddleware limits requests per client IP
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := s.limiter.Allow(c.ClientIP())
		if err != nil {
			s.log.WithError(err).Warn("failure checking rate limit")
		} else if !allowed {
			fail(c, http.StatusTooManyRequests, "rate limited")
			return
		}
		c.Next()
	}
}
