package footdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Error kinds surfaced to callers. RateLimited, Upstream, and Timeout
// are worth retrying; NotFound is not.
var (
	ErrRateLimited = errors.New("footdata: rate limited")
	ErrNotFound    = errors.New("footdata: not found")
	ErrUpstream    = errors.New("footdata: upstream server error")
	ErrTimeout     = errors.New("footdata: request timed out")
)

// StatusError carries a non-200 API response. It unwraps to the
// matching error kind so callers can use errors.Is.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration // from the Retry-After header on 429, 0 otherwise
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code >= 500:
		return ErrUpstream
	default:
		return nil
	}
}

// Retryable reports whether the caller should retry the request.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrTimeout)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
