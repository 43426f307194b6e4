package feed

// Parse RSS, Atom and JSON feeds into Items

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
)

func parseFeed(r io.Reader, limit int) (Items, error) {
	// gofeed parsers keep per-document state, so each call gets its own.
	fp := gofeed.NewParser()
	parsed, err := fp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	n := len(parsed.Items)
	if limit > 0 && n > limit {
		n = limit
	}
	items := make(Items, 0, n)
	for _, it := range parsed.Items[:n] {
		items = append(items, itemFromFeed(it))
	}
	return items, nil
}

func itemFromFeed(it *gofeed.Item) Item {
	item := Item{}
	setString(item, "title", it.Title)
	setString(item, "link", it.Link)
	setString(item, "description", it.Description)
	setString(item, "content", it.Content)
	setString(item, "guid", it.GUID)
	setTime(item, "published", it.Published, it.PublishedParsed)
	setTime(item, "updated", it.Updated, it.UpdatedParsed)

	if it.Author != nil {
		author := Item{}
		setString(author, "name", it.Author.Name)
		setString(author, "email", it.Author.Email)
		if len(author) > 0 {
			item["author"] = author
		}
	}

	if len(it.Categories) > 0 {
		categories := make([]any, 0, len(it.Categories))
		for _, c := range it.Categories {
			categories = append(categories, c)
		}
		item["categories"] = categories
	}

	if len(it.Enclosures) > 0 {
		enclosures := make([]any, 0, len(it.Enclosures))
		for _, e := range it.Enclosures {
			enc := Item{}
			setString(enc, "url", e.URL)
			setString(enc, "type", e.Type)
			if n, err := strconv.ParseInt(e.Length, 10, 64); err == nil && n > 0 {
				enc["length"] = e.Length
			}
			enclosures = append(enclosures, enc)
		}
		item["enclosures"] = enclosures
	}

	if it.Image != nil && it.Image.URL != "" {
		image := Item{"url": it.Image.URL}
		setString(image, "title", it.Image.Title)
		item["image"] = image
	}

	return item
}

func setString(item Item, key, value string) {
	if value != "" {
		item[key] = value
	}
}

// setTime prefers the parsed timestamp, normalized to UTC RFC 3339.
func setTime(item Item, key, raw string, parsed *time.Time) {
	if parsed != nil {
		item[key] = parsed.UTC().Format(time.RFC3339)
		return
	}
	setString(item, key, raw)
}
