package httpclient

import "fmt"

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// IsServerError reports whether the status code is in the 5xx range.
func (e *StatusError) IsServerError() bool {
	return e.Code >= 500 && e.Code < 600
}
