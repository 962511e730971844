package destinations

import (
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// TestClassifyStatus tests the shared HTTP status mapping.
func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ErrorClass
	}{
		{http.StatusUnauthorized, domain.ErrClassAuthExpired},
		{http.StatusForbidden, domain.ErrClassAuthExpired},
		{http.StatusTooManyRequests, domain.ErrClassTransient},
		{http.StatusInternalServerError, domain.ErrClassTransient},
		{http.StatusBadGateway, domain.ErrClassTransient},
		{http.StatusServiceUnavailable, domain.ErrClassTransient},
		{http.StatusBadRequest, domain.ErrClassPermanent},
		{http.StatusNotFound, domain.ErrClassPermanent},
		{http.StatusConflict, domain.ErrClassPermanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.status), "status %d", tt.status)
	}
}

// timeoutError implements net.Error for tests.
type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

// TestClassifyNetErr tests transport failure mapping.
func TestClassifyNetErr(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.Equal(t, domain.ErrClassTransient, classifyNetErr(opErr))

	assert.Equal(t, domain.ErrClassTransient, classifyNetErr(&timeoutError{}))

	wrapped := errors.New("wrapped: nil pointer dereference")
	assert.Equal(t, domain.ErrClassInternal, classifyNetErr(wrapped))
}
