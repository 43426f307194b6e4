package preview

import (
	"fmt"
	"slices"
)

// AllowedSizes lists the item counts a preview may ask for.
var AllowedSizes = []int{1, 5, 10, 20}

// DefaultSize is used when the caller does not pick a size.
const DefaultSize = 1

// Request is one preview call.
type Request struct {
	URL     string
	Size    int
	ItemTag string
}

// NewRequest checks size and builds a Request.
func NewRequest(url string, size int, itemTag string) (Request, error) {
	if err := checkSize(size); err != nil {
		return Request{}, err
	}
	return Request{URL: url, Size: size, ItemTag: itemTag}, nil
}

func checkSize(size int) error {
	if !slices.Contains(AllowedSizes, size) {
		return fmt.Errorf("%w: %d (allowed: %v)", ErrInvalidSize, size, AllowedSizes)
	}
	return nil
}

// validate checks a request that may have been built without NewRequest.
func (r Request) validate() error {
	if !ValidURL(r.URL) {
		return invalidURL(r.URL)
	}
	return checkSize(r.Size)
}

// Key returns the cache key of the request.
func (r Request) Key() Key {
	return BuildKey(r.URL, r.Size, r.ItemTag)
}
