// Package resxfile reads .resx resource files far enough to reason about
// their entry names. A .resx file is an XML document whose translatable
// entries are <data name="..."> elements under the document root; the
// value semantics beyond "ordered set of named entries" are left to the
// tools that produced the file.
package resxfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
)

// Extension is the resource file extension handled by this package.
const Extension = ".resx"

// ---------------------------------------------------------------------------
// Key extraction
// ---------------------------------------------------------------------------

// Keys returns the entry names of a .resx document in document order.
// Only <data> elements that are direct children of the root element count;
// nested occurrences (inside comments or values) are ignored.
func Keys(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var keys []string
	depth := 0
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing resx: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			depth++
			if depth == 2 && el.Name.Local == "data" {
				for _, attr := range el.Attr {
					if attr.Name.Local == "name" {
						keys = append(keys, attr.Value)
						break
					}
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("parsing resx: unbalanced document")
	}
	// Element-free input (plain text, empty files) must not read as an
	// empty key set: zero keys would pass every completeness check.
	if !sawRoot {
		return nil, fmt.Errorf("parsing resx: no root element")
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Key sets and completeness
// ---------------------------------------------------------------------------

// KeySet is the set of entry names found in a resource file.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from a list of entry names.
func NewKeySet(keys []string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// KeySetOf extracts the KeySet of a .resx document.
func KeySetOf(data []byte) (KeySet, error) {
	keys, err := Keys(data)
	if err != nil {
		return nil, err
	}
	return NewKeySet(keys), nil
}

// Contains reports whether the set holds the given entry name.
func (s KeySet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// Missing returns the entry names present in s but absent from candidate,
// sorted lexically.
func (s KeySet) Missing(candidate KeySet) []string {
	var missing []string
	for k := range s {
		if !candidate.Contains(k) {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// IsComplete reports whether every entry of the neutral set is present in
// the candidate set. A candidate translated file must never carry fewer
// entries than its neutral source.
func IsComplete(neutral, candidate KeySet) bool {
	return len(neutral.Missing(candidate)) == 0
}
