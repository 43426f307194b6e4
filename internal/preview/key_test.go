package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey_Deterministic(t *testing.T) {
	a := BuildKey("https://example.com/rss", 5, "item")
	b := BuildKey("https://example.com/rss", 5, "item")
	assert.Equal(t, a, b)
}

func TestBuildKey_Discriminates(t *testing.T) {
	const u = "https://example.com/rss"
	base := BuildKey(u, 5, "item")

	assert.NotEqual(t, base, BuildKey(u, 10, "item"))
	assert.NotEqual(t, base, BuildKey(u, 5, "entry"))
	assert.NotEqual(t, base, BuildKey(u+"2", 5, "item"))
	assert.NotEqual(t, base, BuildKey(u, 5, ""))
}

func TestBuildKey_NoTagEqualsEmptyTag(t *testing.T) {
	r1, err := NewRequest("https://example.com/rss", 5, "")
	require.NoError(t, err)
	assert.Equal(t, BuildKey("https://example.com/rss", 5, ""), r1.Key())
}

func TestBuildKey_DelimitersCannotCollide(t *testing.T) {
	// With a naive "url|size|tag" join these pairs would produce the same string.
	pairs := [][2]Key{
		{BuildKey("https://a.com/x|5|", 5, "t"), BuildKey("https://a.com/x", 5, "|5|t")},
		{BuildKey("https://a.com/x", 5, "1:y"), BuildKey("https://a.com/x|5|1:y", 5, "")},
		{BuildKey("https://a.com/x:", 1, ""), BuildKey("https://a.com/x", 1, ":")},
		{BuildKey("https://a.com/", 15, ""), BuildKey("https://a.com/1", 5, "")},
	}
	for _, p := range pairs {
		assert.NotEqual(t, p[0], p[1])
	}
}

func TestBuildKey_Format(t *testing.T) {
	assert.Equal(t, Key("14:https://a.com/|5|4:item"), BuildKey("https://a.com/", 5, "item"))
	assert.Equal(t, "14:https://a.com/|20|0:", BuildKey("https://a.com/", 20, "").String())
}
