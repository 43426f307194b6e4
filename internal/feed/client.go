package feed

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultUserAgent    = "feedpreview/1.0"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 32 << 20
)

var gzipMagic = []byte{0x1f, 0x8b}

// Client fetches a feed over HTTP and parses it.
type Client struct {
	http         *http.Client
	userAgent    string
	maxBodyBytes int64
	log          zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithMaxBodyBytes caps how much of a response is read.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// NewClient creates a feed client.
func NewClient(logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http:         &http.Client{Timeout: DefaultTimeout},
		userAgent:    DefaultUserAgent,
		maxBodyBytes: DefaultMaxBodyBytes,
		log:          logger.With().Str("component", "feed").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads rawURL and returns at most limit items. A non-positive
// limit returns every item.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options, limit int) (Items, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	body, err := decompress(c.capped(resp.Body))
	if err != nil {
		return nil, err
	}
	// Compressed bodies are capped twice: on the wire and once inflated.
	body = c.capped(body)

	var items Items
	switch detectFormat(resp.Header.Get("Content-Type"), u.Path, opts) {
	case formatCSV:
		items, err = parseCSV(body, limit)
	case formatTaggedXML:
		items, err = parseTaggedXML(body, opts.ItemTag, limit)
	default:
		items, err = parseFeed(body, limit)
	}
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("url", rawURL).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("feed fetched")
	return items, nil
}

// capped limits r to maxBodyBytes. Reading past the cap fails instead of
// silently truncating the document.
func (c *Client) capped(r io.Reader) io.Reader {
	if c.maxBodyBytes <= 0 {
		return r
	}
	return &capReader{r: r, left: c.maxBodyBytes, max: c.maxBodyBytes}
}

type capReader struct {
	r    io.Reader
	left int64
	max  int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, fmt.Errorf("read feed: body exceeds %d bytes", c.max)
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

type format int

const (
	formatFeed format = iota
	formatTaggedXML
	formatCSV
)

func detectFormat(contentType, path string, opts Options) format {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "text/csv" {
		return formatCSV
	}
	p := strings.TrimSuffix(strings.ToLower(path), ".gz")
	if strings.HasSuffix(p, ".csv") {
		return formatCSV
	}
	if opts.ItemTag != "" {
		return formatTaggedXML
	}
	return formatFeed
}

// decompress unwraps gzip bodies, detected by their magic bytes.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open gzip feed: %w", err)
	}
	return zr, nil
}
