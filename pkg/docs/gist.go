package docs

import (
	"fmt"
	"sort"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/stride"
)

// GistTasks addresses the documents whose field paths are enumerated.
type GistTasks struct {
	Collections stride.Series[kv.CollectionID]
	Keys        stride.Series[kv.Key]
	Count       int
}

// GistResult holds the sorted distinct field paths of a document batch as
// NUL-terminated strings packed into one buffer.
type GistResult struct {
	Offsets []uint32 // one per path, into Buffer
	Buffer  []byte
}

// Count reports the number of distinct paths.
func (g GistResult) Count() int {
	return len(g.Offsets)
}

// Path returns path i without its NUL terminator.
func (g GistResult) Path(i int) string {
	off := g.Offsets[i]
	end := off
	for g.Buffer[end] != 0 {
		end++
	}
	return string(g.Buffer[off:end])
}

// Paths returns all paths as a slice.
func (g GistResult) Paths() []string {
	out := make([]string, len(g.Offsets))
	for i := range out {
		out[i] = g.Path(i)
	}
	return out
}

// Gist enumerates the sorted distinct RFC 6901 paths of every leaf value
// appearing in the addressed documents. Empty containers contribute their
// own path.
func Gist(src kv.Source, tasks GistTasks, a *arena.Arena) (GistResult, error) {
	if src == nil || a == nil {
		return GistResult{}, fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}

	docs, err := src.Read(kv.ReadTasks{
		Collections: tasks.Collections,
		Keys:        tasks.Keys,
		Count:       tasks.Count,
	}, kv.ReadOptions{}, a)
	if err != nil {
		return GistResult{}, err
	}

	seen := map[string]struct{}{}
	for i := 0; i < tasks.Count; i++ {
		if !docs.Presences.Get(i) {
			continue
		}
		off := docs.Offsets[i]
		root, err := DecodeMsgpack(docs.Values[off : off+docs.Lengths[i]])
		if err != nil {
			return GistResult{}, err
		}
		collectPaths(root, "", seen)
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	total := 0
	for _, p := range paths {
		total += len(p) + 1
	}
	buf := a.Bytes(total)
	offsets := a.Lengths(len(paths))
	pos := 0
	for i, p := range paths {
		offsets[i] = uint32(pos)
		copy(buf[pos:], p)
		pos += len(p) + 1 // NUL terminator is the zeroed byte
	}
	return GistResult{Offsets: offsets, Buffer: buf}, nil
}

// collectPaths records the RFC 6901 path of every leaf under n.
func collectPaths(n *Node, prefix string, out map[string]struct{}) {
	switch n.kind {
	case KindObject:
		if len(n.obj) == 0 {
			out[prefix] = struct{}{}
			return
		}
		for _, m := range n.obj {
			collectPaths(m.Value, prefix+"/"+escapeToken(m.Name), out)
		}
	case KindArray:
		if len(n.arr) == 0 {
			out[prefix] = struct{}{}
			return
		}
		for i, item := range n.arr {
			collectPaths(item, fmt.Sprintf("%s/%d", prefix, i), out)
		}
	default:
		out[prefix] = struct{}{}
	}
}
