package authhttp

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork             = errors.New("network error")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrNoRefreshToken      = errors.New("no refresh token")
)

// RequestFailedError carries any non-success status other than a final 401.
type RequestFailedError struct {
	Status int
	Body   []byte
}

func (e *RequestFailedError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}
