package preview

import (
	"net/url"
	"strings"
)

// ValidURL reports whether candidate is an absolute http or https URL with a
// host. Anything the URL parser rejects is simply not valid.
func ValidURL(candidate string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return u.Host != "" && u.Hostname() != ""
}
