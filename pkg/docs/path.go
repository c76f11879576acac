package docs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/hutch/pkg/kv"
)

// splitPointer tokenizes an RFC 6901 pointer, unescaping ~1 and ~0.
func splitPointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if path[0] != '/' {
		return nil, fmt.Errorf("%w: pointer must start with '/'", kv.ErrArgs)
	}
	parts := strings.Split(path[1:], "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts, nil
}

// fieldTokens resolves a field selector to pointer tokens: an empty field
// addresses the whole document, a leading '/' is an RFC 6901 pointer, and
// anything else names a child of the root object.
func fieldTokens(field string) ([]string, error) {
	if field == "" {
		return nil, nil
	}
	if field[0] == '/' {
		return splitPointer(field)
	}
	return []string{field}, nil
}

// lookup resolves a field selector against a tree. A missing path reports
// ok=false without error; a malformed selector errors.
func lookup(root *Node, field string) (*Node, bool, error) {
	tokens, err := fieldTokens(field)
	if err != nil {
		return nil, false, err
	}
	cur := root
	for _, tok := range tokens {
		if cur == nil {
			return nil, false, nil
		}
		switch cur.kind {
		case KindObject:
			next, ok := cur.Get(tok)
			if !ok {
				return nil, false, nil
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return nil, false, nil
			}
			cur = cur.arr[idx]
		default:
			return nil, false, nil
		}
	}
	return cur, cur != nil, nil
}

// setAt replaces the sub-tree at a field selector, creating intermediate
// objects for missing object members. Array hops must address an existing
// element; as the final token, "-" or an index equal to the array length
// appends. Returns the possibly replaced root.
func setAt(root *Node, field string, value *Node) (*Node, error) {
	tokens, err := fieldTokens(field)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return value, nil
	}
	if root == nil || (root.kind != KindObject && root.kind != KindArray) {
		root = Object()
	}

	cur := root
	for i, tok := range tokens {
		last := i == len(tokens)-1
		switch cur.kind {
		case KindObject:
			if last {
				cur.Set(tok, value)
				return root, nil
			}
			next, ok := cur.Get(tok)
			if !ok || (next.kind != KindObject && next.kind != KindArray) {
				next = Object()
				cur.Set(tok, next)
			}
			cur = next
		case KindArray:
			if tok == "-" {
				if !last {
					return nil, fmt.Errorf("%w: '-' must be the final token", kv.ErrArgs)
				}
				cur.arr = append(cur.arr, value)
				return root, nil
			}
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx > len(cur.arr) {
				return nil, fmt.Errorf("%w: invalid array index %q", kv.ErrArgs, tok)
			}
			if last {
				if idx == len(cur.arr) {
					cur.arr = append(cur.arr, value)
				} else {
					cur.arr[idx] = value
				}
				return root, nil
			}
			if idx == len(cur.arr) {
				return nil, fmt.Errorf("%w: index %d out of range", kv.ErrArgs, idx)
			}
			cur = cur.arr[idx]
		default:
			return nil, fmt.Errorf("%w: cannot descend into %s", kv.ErrArgs, cur.kind)
		}
	}
	return root, nil
}

// removeAt deletes the sub-tree at a field selector. Missing paths are a
// no-op. Returns the possibly nil root.
func removeAt(root *Node, field string) (*Node, error) {
	tokens, err := fieldTokens(field)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	if root == nil {
		return nil, nil
	}

	cur := root
	for i, tok := range tokens {
		last := i == len(tokens)-1
		switch cur.kind {
		case KindObject:
			if last {
				cur.Remove(tok)
				return root, nil
			}
			next, ok := cur.Get(tok)
			if !ok {
				return root, nil
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return root, nil
			}
			if last {
				cur.arr = append(cur.arr[:idx], cur.arr[idx+1:]...)
				return root, nil
			}
			cur = cur.arr[idx]
		default:
			return root, nil
		}
	}
	return root, nil
}

// escapeToken escapes one reference token per RFC 6901.
func escapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}
