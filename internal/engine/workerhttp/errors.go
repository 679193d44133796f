package workerhttp

import (
	"fmt"
)

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "worker http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("worker http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("worker http error: status=%d body=%s", e.StatusCode, e.Body)
}

// LoadError is returned when the worker reports a capability as failed.
type LoadError struct {
	Capability string
	Reason     string
}

func (e *LoadError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("worker failed to load %s", e.Capability)
	}
	return fmt.Sprintf("worker failed to load %s: %s", e.Capability, e.Reason)
}
