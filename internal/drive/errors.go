package drive

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/andresuchdata/rollstats/internal/storage"
)

// Drive API errors.
var (
	ErrUnauthorized = errors.New("drive: unauthorised (invalid credentials)")
	ErrForbidden    = errors.New("drive: forbidden (insufficient permissions)")
	// ErrNotFound is storage.ErrNotFound so callers can match either.
	ErrNotFound    = storage.ErrNotFound
	ErrRateLimited = errors.New("drive: rate limit exceeded")
)

// IsRateLimited returns true if the error indicates rate limiting.
// Drive reports per-user limits as 403 with reason rateLimitExceeded.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// classify maps a Google API error onto the package errors, keeping the original in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch {
	case IsRateLimited(err):
		return errors.Join(ErrRateLimited, err)
	case gerr.Code == http.StatusUnauthorized:
		return errors.Join(ErrUnauthorized, err)
	case gerr.Code == http.StatusForbidden:
		return errors.Join(ErrForbidden, err)
	case gerr.Code == http.StatusNotFound:
		return errors.Join(ErrNotFound, err)
	default:
		return err
	}
}
