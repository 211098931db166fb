package models

import "errors"

// Common errors
var (
	ErrDailyLimitReached  = errors.New("daily upload limit reached")
	ErrNoProfiles         = errors.New("launcher returned no profiles")
	ErrElementNotFound    = errors.New("element not found by any strategy")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUploadTimeout      = errors.New("upload progress timed out")
	ErrStateWrite         = errors.New("state write failed")
	ErrAlreadyRunning     = errors.New("another instance holds the run lock")
	ErrSessionNotVerified = errors.New("browser session did not verify")
)

// IsStateWrite reports whether err is a persistence failure. These are the
// one class of errors the upload loop must not swallow into a retry.
func IsStateWrite(err error) bool {
	return errors.Is(err, ErrStateWrite)
}
