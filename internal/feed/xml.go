package feed

import (
	"errors"
	"fmt"
	"io"
	"strings"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"
)

const (
	attrPrefix = "@"
	textKey    = "#text"
)

// parseTaggedXML streams the document and turns each element named tag into
// an Item. It stops reading once limit items were collected.
func parseTaggedXML(r io.Reader, tag string, limit int) (Items, error) {
	local := tag
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		local = tag[i+1:]
	}

	p := xpp.NewXMLPullParser(r, false, charset.NewReaderLabel)
	var items Items
	for limit <= 0 || len(items) < limit {
		event, err := p.Next()
		if errors.Is(err, io.EOF) || event == xpp.EndDocument {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		if event != xpp.StartTag || p.Name != local {
			continue
		}

		value, err := readElement(p)
		if err != nil {
			return nil, fmt.Errorf("parse xml item <%s>: %w", tag, err)
		}
		if item, ok := value.(Item); ok {
			items = append(items, item)
		} else {
			items = append(items, Item{textKey: value})
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("parse xml: no <%s> elements found", tag)
	}
	return items, nil
}

// readElement consumes the element the parser is positioned on. Elements
// with only text become strings; anything else becomes an Item.
func readElement(p *xpp.XMLPullParser) (any, error) {
	fields := Item{}
	for _, a := range p.Attrs {
		fields[attrPrefix+a.Name.Local] = a.Value
	}

	var text strings.Builder
	for {
		event, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		switch event {
		case xpp.StartTag:
			name := p.Name
			child, err := readElement(p)
			if err != nil {
				return nil, err
			}
			addField(fields, name, child)
		case xpp.Text:
			text.WriteString(p.Text)
		case xpp.EndTag:
			s := strings.TrimSpace(text.String())
			if len(fields) == 0 {
				return s, nil
			}
			if s != "" {
				fields[textKey] = s
			}
			return fields, nil
		case xpp.EndDocument:
			return nil, io.ErrUnexpectedEOF
		}
	}
}

// addField stores value under name, turning repeated names into a list.
func addField(fields Item, name string, value any) {
	existing, ok := fields[name]
	if !ok {
		fields[name] = value
		return
	}
	if list, ok := existing.([]any); ok {
		fields[name] = append(list, value)
		return
	}
	fields[name] = []any{existing, value}
}
