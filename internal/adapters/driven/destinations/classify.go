package destinations

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// classifyStatus maps an HTTP status from a provider onto the error
// taxonomy. Callers handle status-specific cases (quota, conflict)
// before falling back to this.
func classifyStatus(status int) domain.ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrClassAuthExpired
	case status == http.StatusTooManyRequests:
		return domain.ErrClassTransient
	case status >= 500:
		return domain.ErrClassTransient
	default:
		return domain.ErrClassPermanent
	}
}

// classifyNetErr maps a transport-level failure. Connection problems
// and timeouts are retried; everything else is unexpected.
func classifyNetErr(err error) domain.ErrorClass {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrClassTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.ErrClassTransient
	}
	return domain.ErrClassInternal
}
