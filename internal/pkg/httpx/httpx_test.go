package httpx

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 503} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("%d should be retryable", code)
		}
	}
	for _, code := range []int{400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("%d should not be retryable", code)
		}
	}
}

func TestJitterSleepBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := JitterSleep(base)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter out of range: %s", d)
		}
	}
	if JitterSleep(0) != 0 {
		t.Fatalf("zero base must not sleep")
	}
}
