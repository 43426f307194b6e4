// Package feed downloads feeds and turns them into plain item records.
//
// RSS, Atom and JSON Feed documents go through gofeed. Feeds with a
// non-standard XML layout are read element by element when the caller names
// the item tag, and CSV files are read row by row.
package feed

import "encoding/json"

// Item is one feed entry. Its shape depends on the feed format; values are
// strings, nested Items, or lists of either, so an Item always encodes to JSON.
type Item map[string]any

// UnmarshalJSON restores nested objects as Items, so an Item read back from
// JSON has the same shape it was encoded from.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*it = nil
		return nil
	}
	*it = restore(raw).(Item)
	return nil
}

func restore(v any) any {
	switch v := v.(type) {
	case map[string]any:
		item := make(Item, len(v))
		for k, child := range v {
			item[k] = restore(child)
		}
		return item
	case []any:
		for i, child := range v {
			v[i] = restore(child)
		}
		return v
	default:
		return v
	}
}

// Items is an ordered list of entries, in document order.
type Items []Item

// Options tune how a feed is located inside the document.
type Options struct {
	// ItemTag names the XML element that holds one item. Empty means the
	// document is a standard RSS, Atom or JSON feed.
	ItemTag string
}
