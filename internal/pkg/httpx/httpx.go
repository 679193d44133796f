// Package httpx holds small helpers shared by outbound HTTP clients.
package httpx

import (
	"math/rand"
	"time"
)

// IsRetryableHTTPStatus is true for timeouts, throttling and server errors.
func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// JitterSleep spreads base by +/-20% so pollers started together drift apart.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}
