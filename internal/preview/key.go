package preview

import (
	"strconv"
	"strings"
)

// Key identifies one cacheable preview.
type Key string

// BuildKey derives the cache key for a preview. Both string fields are length
// prefixed, so a URL or tag containing the separators cannot shift field
// boundaries. An empty tag means "no tag".
func BuildKey(url string, size int, itemTag string) Key {
	var b strings.Builder
	b.Grow(len(url) + len(itemTag) + 24)
	writeField(&b, url)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(size))
	b.WriteByte('|')
	writeField(&b, itemTag)
	return Key(b.String())
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func (k Key) String() string {
	return string(k)
}
