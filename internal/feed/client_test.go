package feed

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>World Report</title>
    <link>https://example.com/</link>
    <description>News</description>
    <item>
      <title>First</title>
      <link>https://example.com/1</link>
      <guid>1</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <category>world</category>
      <enclosure url="https://example.com/1.mp3" length="1234" type="audio/mpeg"/>
    </item>
    <item><title>Second</title><link>https://example.com/2</link></item>
    <item><title>Third</title><link>https://example.com/3</link></item>
  </channel>
</rss>`

const productFixture = `<?xml version="1.0" encoding="UTF-8"?>
<catalog>
  <product id="p1">
    <name>Lamp</name>
    <price currency="EUR">19.99</price>
    <tag>home</tag>
    <tag>light</tag>
  </product>
  <product id="p2"><name>Chair</name></product>
  <product id="p3"><name>Desk</name></product>
</catalog>`

const csvFixture = "sku;name;price\nA1;Lamp;19.99\nB2;Chair\nC3;Desk;99\n"

func serve(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient() *Client {
	return NewClient(zerolog.Nop(), WithTimeout(5*time.Second))
}

func TestFetch_RSS(t *testing.T) {
	srv := serve(t, "application/rss+xml", []byte(rssFixture))

	items, err := newTestClient().Fetch(context.Background(), srv.URL+"/feed.xml", Options{}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "First", first["title"])
	assert.Equal(t, "https://example.com/1", first["link"])
	assert.Equal(t, "1", first["guid"])
	assert.Equal(t, "2006-01-02T15:04:05Z", first["published"])
	assert.Equal(t, []any{"world"}, first["categories"])

	enclosures, ok := first["enclosures"].([]any)
	require.True(t, ok)
	require.Len(t, enclosures, 1)
	assert.Equal(t, "audio/mpeg", enclosures[0].(Item)["type"])

	assert.Equal(t, "Second", items[1]["title"])
}

func TestFetch_UnlimitedWhenLimitIsZero(t *testing.T) {
	srv := serve(t, "application/rss+xml", []byte(rssFixture))

	items, err := newTestClient().Fetch(context.Background(), srv.URL, Options{}, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestFetch_TaggedXML(t *testing.T) {
	srv := serve(t, "application/xml", []byte(productFixture))

	items, err := newTestClient().Fetch(context.Background(), srv.URL+"/products.xml", Options{ItemTag: "product"}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)

	lamp := items[0]
	assert.Equal(t, "p1", lamp["@id"])
	assert.Equal(t, "Lamp", lamp["name"])
	assert.Equal(t, Item{"@currency": "EUR", "#text": "19.99"}, lamp["price"])
	assert.Equal(t, []any{"home", "light"}, lamp["tag"])

	assert.Equal(t, "Chair", items[1]["name"])
}

func TestFetch_TaggedXMLMissingTag(t *testing.T) {
	srv := serve(t, "application/xml", []byte(productFixture))

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Options{ItemTag: "offer"}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no <offer> elements")
}

func TestFetch_CSV(t *testing.T) {
	srv := serve(t, "text/csv; charset=utf-8", []byte(csvFixture))

	items, err := newTestClient().Fetch(context.Background(), srv.URL+"/export", Options{}, 5)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, Item{"sku": "A1", "name": "Lamp", "price": "19.99"}, items[0])
	assert.Equal(t, Item{"sku": "B2", "name": "Chair", "price": ""}, items[1])
}

func TestFetch_GzippedCSVBySuffix(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("id,title\n1,one\n2,two\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := serve(t, "application/octet-stream", buf.Bytes())

	items, err := newTestClient().Fetch(context.Background(), srv.URL+"/dump.csv.gz", Options{}, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{"id": "1", "title": "one"}, items[0])
}

func TestFetch_CapsInflatedBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("a,b\n" + strings.Repeat("1,2\n", 10000)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.Less(t, buf.Len(), 1024)

	srv := serve(t, "text/csv", buf.Bytes())

	client := NewClient(zerolog.Nop(), WithMaxBodyBytes(1024))
	_, err = client.Fetch(context.Background(), srv.URL+"/big.csv", Options{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body exceeds 1024 bytes")

	items, err := newTestClient().Fetch(context.Background(), srv.URL+"/big.csv", Options{}, 0)
	require.NoError(t, err)
	assert.Len(t, items, 10000)
}

func TestFetch_CapsPlainBody(t *testing.T) {
	srv := serve(t, "application/rss+xml", []byte(rssFixture))

	_, err := NewClient(zerolog.Nop(), WithMaxBodyBytes(64)).Fetch(context.Background(), srv.URL, Options{}, 0)
	require.Error(t, err)

	items, err := NewClient(zerolog.Nop(), WithMaxBodyBytes(int64(len(rssFixture)))).Fetch(context.Background(), srv.URL, Options{}, 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestFetch_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Options{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestFetch_NotAFeed(t *testing.T) {
	srv := serve(t, "text/plain", []byte("hello world"))

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Options{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse feed")
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), WithUserAgent("tester/2"))
	_, err := c.Fetch(context.Background(), srv.URL, Options{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "tester/2", got)
}

func TestFetch_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient().Fetch(ctx, srv.URL, Options{}, 1)
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, formatCSV, detectFormat("text/csv", "/x", Options{}))
	assert.Equal(t, formatCSV, detectFormat("", "/Export.CSV", Options{ItemTag: "item"}))
	assert.Equal(t, formatCSV, detectFormat("", "/export.csv.gz", Options{}))
	assert.Equal(t, formatTaggedXML, detectFormat("application/xml", "/x.xml", Options{ItemTag: "item"}))
	assert.Equal(t, formatFeed, detectFormat("application/rss+xml", "/rss", Options{}))
}
