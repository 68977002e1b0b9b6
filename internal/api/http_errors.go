package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// httpStatusForDomainError maps a DomainError category to an HTTP status.
// ok is false when err carries no DomainError.
func httpStatusForDomainError(err error) (status int, ok bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatNetwork:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, true
	}
}
