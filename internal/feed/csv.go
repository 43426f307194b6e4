package feed

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var csvDelimiters = []rune{',', ';', '\t', '|'}

// parseCSV reads a header row followed by one item per row.
func parseCSV(r io.Reader, limit int) (Items, error) {
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("parse csv: empty document")
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var items Items
	for limit <= 0 || len(items) < limit {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv row %d: %w", len(items)+2, err)
		}

		item := make(Item, len(header))
		for i, name := range header {
			if i < len(row) {
				item[name] = row[i]
			} else {
				item[name] = ""
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// sniffDelimiter picks the most frequent candidate delimiter in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}

	best, bestCount := ',', 0
	for _, d := range csvDelimiters {
		if n := bytes.Count(head, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
