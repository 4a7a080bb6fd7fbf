// Package extract pulls profile fields out of a page's embedded data island.
//
// Extraction is best-effort and ordered:
//
//  1. Decode the island into a Tree that keeps object key order, then
//     breadth-first search for the first non-empty string under a key set.
//  2. If decoding fails or finds nothing, match the key names directly in
//     the raw text (Pattern) and Unescape the captured value.
//
// Every lookup returns an explicit (value, ok) pair; absence is not an error.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// IslandID is the id attribute of the script element carrying the data island.
const IslandID = "__UNIVERSAL_DATA_FOR_REHYDRATION__"

// Key sets searched in the island, in priority order for Pattern.
var (
	AvatarKeys = []string{"avatarLarger", "avatarMedium", "avatarThumb", "avatarUri"}
	NameKeys   = []string{"nickname", "displayName", "nickName"}
)

const maxDepth = 256

// Kind is the JSON type of a Tree node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Tree is a decoded JSON value. Objects keep their keys in document order;
// Keys and Items are aligned for objects, Items alone holds array elements.
type Tree struct {
	Kind  Kind
	Str   string // string value, or the literal text of a number/bool
	Keys  []string
	Items []*Tree
}

// Decode parses raw as a single JSON value, preserving object key order.
func Decode(raw string) (*Tree, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	t, err := decodeValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("extract: trailing data after JSON value")
	}
	return t, nil
}

func decodeValue(dec *json.Decoder, depth int) (*Tree, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("extract: nesting deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("extract: decode: %w", err)
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			t := &Tree{Kind: KindObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("extract: decode key: %w", err)
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("extract: object key is %T", kt)
				}
				child, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				t.Keys = append(t.Keys, key)
				t.Items = append(t.Items, child)
			}
			if _, err := dec.Token(); err != nil { // '}'
				return nil, fmt.Errorf("extract: decode: %w", err)
			}
			return t, nil
		case '[':
			t := &Tree{Kind: KindArray}
			for dec.More() {
				child, err := decodeValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				t.Items = append(t.Items, child)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return nil, fmt.Errorf("extract: decode: %w", err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("extract: unexpected delimiter %q", v)
	case string:
		return &Tree{Kind: KindString, Str: v}, nil
	case json.Number:
		return &Tree{Kind: KindNumber, Str: v.String()}, nil
	case bool:
		return &Tree{Kind: KindBool, Str: fmt.Sprint(v)}, nil
	case nil:
		return &Tree{Kind: KindNull}, nil
	}
	return nil, fmt.Errorf("extract: unexpected token %T", tok)
}

// FindString walks the tree breadth-first and returns the first string value
// stored under any of keys, even when it is empty; callers treat "" as
// unresolved. Within one object, keys are visited in document order, so the
// first match encountered wins regardless of the order of keys.
func (t *Tree) FindString(keys ...string) (string, bool) {
	if t == nil {
		return "", false
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	queue := []*Tree{t}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		switch n.Kind {
		case KindObject:
			for i, k := range n.Keys {
				child := n.Items[i]
				if want[k] && child.Kind == KindString {
					return child.Str, true
				}
			}
			for _, child := range n.Items {
				if child.Kind == KindObject || child.Kind == KindArray {
					queue = append(queue, child)
				}
			}
		case KindArray:
			for _, child := range n.Items {
				if child.Kind == KindObject || child.Kind == KindArray {
					queue = append(queue, child)
				}
			}
		}
	}
	return "", false
}

// Fields holds what the island yielded. Empty strings mean unresolved.
type Fields struct {
	Name   string
	Avatar string
}

// Island resolves the display name and avatar URL from raw island text.
// Structured search runs first; Pattern fills whatever it left empty when
// the decode failed or produced no name.
func Island(raw string) Fields {
	var f Fields
	if strings.TrimSpace(raw) == "" {
		return f
	}

	tree, err := Decode(raw)
	if err == nil {
		f.Name, _ = tree.FindString(NameKeys...)
		f.Avatar, _ = tree.FindString(AvatarKeys...)
	}

	if err != nil || f.Name == "" {
		if name, ok := Pattern(raw, NameKeys...); ok {
			f.Name = name
		}
		if f.Avatar == "" {
			if avatar, ok := Pattern(raw, AvatarKeys...); ok {
				f.Avatar = avatar
			}
		}
	}
	return f
}
