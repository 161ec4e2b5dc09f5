package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

const (
	ErrorNetwork     = "network"
	ErrorTimeout     = "timeout"
	ErrorHTTPStatus  = "http_status"
	ErrorUnknownType = "unknown_type"
	ErrorTooLarge    = "too_large"
	ErrorIO          = "io_error"
)

// ErrFetchFailed wraps the last failure once every fetch attempt is used up.
var ErrFetchFailed = errors.New("resource fetch failed")

// Error represents a categorized resource acquisition failure.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized resource error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return ErrorIO
	}

	return ErrorNetwork
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch CategoryFromError(err) {
	case ErrorNetwork, ErrorTimeout, ErrorHTTPStatus:
		return true
	default:
		return false
	}
}
