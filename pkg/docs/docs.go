package docs

import (
	"fmt"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/metrics"
	"github.com/cuemby/hutch/pkg/stride"
)

// Format identifies a payload encoding for document reads and writes.
type Format int

const (
	// FormatMsgpack is the canonical internal representation.
	FormatMsgpack Format = iota
	// FormatJSON accepts and produces JSON text.
	FormatJSON
	// FormatJSONPatch applies the payload as an RFC 6902 patch (writes
	// only).
	FormatJSONPatch
	// FormatJSONMergePatch applies the payload as an RFC 7386 merge
	// patch (writes only).
	FormatJSONMergePatch
)

func (f Format) String() string {
	switch f {
	case FormatMsgpack:
		return "msgpack"
	case FormatJSON:
		return "json"
	case FormatJSONPatch:
		return "json-patch"
	case FormatJSONMergePatch:
		return "json-merge-patch"
	}
	return "invalid"
}

// decodePayload parses a payload in a plain document format.
func decodePayload(payload []byte, format Format) (*Node, error) {
	switch format {
	case FormatMsgpack:
		n, err := DecodeMsgpack(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: bad msgpack payload", kv.ErrArgs)
		}
		return n, nil
	case FormatJSON:
		return DecodeJSON(payload)
	default:
		return nil, fmt.Errorf("%w: unknown document format %d", kv.ErrArgs, format)
	}
}

// WriteTasks addresses a batch of document writes. An empty field targets
// the whole document; a nil payload removes the addressed sub-tree (the
// whole entry when no field is given).
type WriteTasks struct {
	Collections stride.Series[kv.CollectionID]
	Keys        stride.Series[kv.Key]
	Fields      stride.Series[string]
	Payloads    stride.Bytes
	Count       int
}

// ReadTasks addresses a batch of document projections.
type ReadTasks struct {
	Collections stride.Series[kv.CollectionID]
	Keys        stride.Series[kv.Key]
	Fields      stride.Series[string]
	Count       int
}

// Write applies a batch of document mutations through a Store. Tasks
// touching the same entry coalesce into a single parsed tree and a single
// substrate write-back, applied in input order.
func Write(store kv.Store, tasks WriteTasks, format Format, opts kv.WriteOptions, a *arena.Arena) error {
	if store == nil || a == nil {
		return fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}
	metrics.DocWritesTotal.WithLabelValues(format.String()).Add(float64(tasks.Count))

	// Coalesce tasks per entry, preserving first-seen order.
	type group struct {
		col  kv.CollectionID
		key  kv.Key
		idxs []int
	}
	type entryAddr struct {
		col kv.CollectionID
		key kv.Key
	}
	byAddr := map[entryAddr]*group{}
	var groups []*group
	for i := 0; i < tasks.Count; i++ {
		addr := entryAddr{col: tasks.Collections.At(i), key: tasks.Keys.At(i)}
		g, ok := byAddr[addr]
		if !ok {
			g = &group{col: addr.col, key: addr.key}
			byAddr[addr] = g
			groups = append(groups, g)
		}
		g.idxs = append(g.idxs, i)
	}

	// One deduplicated physical read for the existing documents.
	cols := make([]kv.CollectionID, len(groups))
	keys := make([]kv.Key, len(groups))
	for i, g := range groups {
		cols[i] = g.col
		keys[i] = g.key
	}
	existing, err := store.Read(kv.ReadTasks{
		Collections: stride.Over(cols),
		Keys:        stride.Over(keys),
		Count:       len(groups),
	}, kv.ReadOptions{}, a)
	if err != nil {
		return err
	}

	outVals := make([][]byte, len(groups))
	for gi, g := range groups {
		var root *Node
		if existing.Presences.Get(gi) {
			off := existing.Offsets[gi]
			root, err = DecodeMsgpack(existing.Values[off : off+existing.Lengths[gi]])
			if err != nil {
				return err
			}
		}

		for _, i := range g.idxs {
			field := tasks.Fields.At(i)
			payload := tasks.Payloads.At(i)

			if payload == nil {
				if root, err = removeAt(root, field); err != nil {
					return err
				}
				continue
			}

			switch format {
			case FormatJSONPatch, FormatJSONMergePatch:
				if field != "" {
					return fmt.Errorf("%w: patch formats address whole documents", kv.ErrArgsCombo)
				}
				apply := applyJSONPatch
				if format == FormatJSONMergePatch {
					apply = applyMergePatch
				}
				if root, err = apply(root, payload); err != nil {
					return err
				}
			default:
				sub, err := decodePayload(payload, format)
				if err != nil {
					return err
				}
				if root, err = setAt(root, field, sub); err != nil {
					return err
				}
			}
		}

		if root == nil {
			outVals[gi] = nil // tombstone
			continue
		}
		encoded, err := EncodeMsgpack(root)
		if err != nil {
			return err
		}
		outVals[gi] = encoded
	}

	return store.Write(kv.WriteTasks{
		Collections: stride.Over(cols),
		Keys:        stride.Over(keys),
		Values:      stride.OverBytes(outVals),
		Count:       len(groups),
	}, opts)
}

// Read projects a batch of documents (or sub-trees when fields are given)
// into the requested output format. Missing documents and missing fields
// report absent; a stored null projects as a present null value.
func Read(src kv.Source, tasks ReadTasks, format Format, opts kv.ReadOptions, a *arena.Arena) (kv.ReadResult, error) {
	if src == nil || a == nil {
		return kv.ReadResult{}, fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}
	if format != FormatMsgpack && format != FormatJSON {
		return kv.ReadResult{}, fmt.Errorf("%w: unknown output format %d", kv.ErrArgs, format)
	}

	inner, err := src.Read(kv.ReadTasks{
		Collections: tasks.Collections,
		Keys:        tasks.Keys,
		Count:       tasks.Count,
	}, kv.ReadOptions{DontWatch: opts.DontWatch}, a)
	if err != nil {
		return kv.ReadResult{}, err
	}

	presences := a.Bitmap(tasks.Count)
	lengths := a.Lengths(tasks.Count)
	offsets := a.Lengths(tasks.Count + 1)
	tape := a.Tape()
	start := len(tape.Contents())
	total := uint32(0)

	for i := 0; i < tasks.Count; i++ {
		offsets[i] = total
		lengths[i] = kv.LengthMissing
		if !inner.Presences.Get(i) {
			continue
		}
		off := inner.Offsets[i]
		root, err := DecodeMsgpack(inner.Values[off : off+inner.Lengths[i]])
		if err != nil {
			return kv.ReadResult{}, err
		}
		part, ok, err := lookup(root, tasks.Fields.At(i))
		if err != nil {
			return kv.ReadResult{}, err
		}
		if !ok {
			continue
		}

		var encoded []byte
		if format == FormatJSON {
			encoded = EncodeJSON(part)
		} else if encoded, err = EncodeMsgpack(part); err != nil {
			return kv.ReadResult{}, err
		}
		presences.Set(i)
		lengths[i] = uint32(len(encoded))
		total += uint32(len(encoded))
		if !opts.SkipValues {
			tape.Push(encoded)
		}
	}
	offsets[tasks.Count] = total

	out := kv.ReadResult{}
	if !opts.SkipPresences {
		out.Presences = presences
	}
	if !opts.SkipLengths {
		out.Lengths = lengths
	}
	if !opts.SkipOffsets {
		out.Offsets = offsets
	}
	if !opts.SkipValues {
		out.Values = tape.Contents()[start:]
	}
	return out, nil
}
