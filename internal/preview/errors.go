package preview

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when the feed URL is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidSize is returned when the requested size is not one of AllowedSizes
	ErrInvalidSize = errors.New("invalid size")

	// ErrInternal is returned when the fetcher panics
	ErrInternal = errors.New("internal error")
)

// FetchError wraps a failure reported by the feed fetcher.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Kind names the class of a preview error, for callers that render errors
// without matching on them.
type Kind string

const (
	KindNone        Kind = ""
	KindInvalidURL  Kind = "invalid_url"
	KindInvalidSize Kind = "invalid_size"
	KindFetch       Kind = "fetch_error"
	KindInternal    Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	var fe *FetchError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.Is(err, ErrInvalidSize):
		return KindInvalidSize
	case errors.As(err, &fe):
		return KindFetch
	default:
		return KindInternal
	}
}

func invalidURL(u string) error {
	return fmt.Errorf("%w: %q", ErrInvalidURL, u)
}
