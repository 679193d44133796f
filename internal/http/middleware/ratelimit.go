package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yungbote/pointgen-backend/internal/http/response"
)

// RateLimit allows perAddr requests per window for each origin address, refilling evenly.
// Idle visitors are swept once they have been quiet for a full window.
func RateLimit(ctx context.Context, perAddr int, window time.Duration) gin.HandlerFunc {
	if perAddr <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
		every    = rate.Every(window / time.Duration(perAddr))
	)
	go func() {
		ticker := time.NewTicker(sweepInterval(window))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for addr, v := range visitors {
					if time.Since(v.lastSeen) > window {
						delete(visitors, addr)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		addr := originAddress(c)
		mu.Lock()
		v, ok := visitors[addr]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(every, perAddr)}
			visitors[addr] = v
		}
		v.lastSeen = time.Now()
		allowed := v.limiter.Allow()
		mu.Unlock()

		if !allowed {
			response.RespondError(c, http.StatusTooManyRequests, "rate_limit_exceeded", errors.New("too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func sweepInterval(window time.Duration) time.Duration {
	if window < time.Minute {
		return window
	}
	return time.Minute
}
