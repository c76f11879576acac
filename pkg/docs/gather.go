package docs

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/metrics"
)

// ColumnType enumerates the cell types a gather column can request.
type ColumnType int

const (
	TypeBool ColumnType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBinary
)

// Width returns the fixed byte width of scalar types, zero for
// variable-width ones.
func (t ColumnType) Width() int {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	}
	return 0
}

func (t ColumnType) signed() bool {
	return t >= TypeInt8 && t <= TypeInt64
}

func (t ColumnType) unsigned() bool {
	return t >= TypeUint8 && t <= TypeUint64
}

func (t ColumnType) float() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// bits returns the integer bit width of a numeric type.
func (t ColumnType) bits() int {
	return t.Width() * 8
}

// Column requests one gather output: the field to project and the type
// to coerce it into.
type Column struct {
	Field string
	Type  ColumnType
}

// ColumnResult is one gathered column. Scalars always carries rows*Width
// bytes, little-endian, dense: slots for invalid cells are zero-filled.
// Variable-width columns use Offsets/Lengths into the table's shared
// tape instead.
type ColumnResult struct {
	Field string
	Type  ColumnType

	// Validity marks cells present and convertible. Conversion marks
	// cells whose representation changed on the way out. Collision marks
	// cells whose stored type cannot express the requested one.
	Validity   arena.Bitmap
	Conversion arena.Bitmap
	Collision  arena.Bitmap

	Scalars []byte
	Offsets []uint32
	Lengths []uint32
}

// Table is the result of a gather: one column per request over a common
// row set, with variable-width cells sharing a single tape.
type Table struct {
	Rows    int
	Columns []ColumnResult
	Tape    []byte
}

// Gather projects a batch of documents into typed columns with
// validity, conversion, and collision bitmaps.
func Gather(src kv.Source, tasks GistTasks, columns []Column, a *arena.Arena) (*Table, error) {
	if src == nil || a == nil {
		return nil, fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}
	metrics.GathersTotal.Add(float64(tasks.Count * len(columns)))

	docs, err := src.Read(kv.ReadTasks{
		Collections: tasks.Collections,
		Keys:        tasks.Keys,
		Count:       tasks.Count,
	}, kv.ReadOptions{}, a)
	if err != nil {
		return nil, err
	}

	roots := make([]*Node, tasks.Count)
	for i := 0; i < tasks.Count; i++ {
		if !docs.Presences.Get(i) {
			continue
		}
		off := docs.Offsets[i]
		if roots[i], err = DecodeMsgpack(docs.Values[off : off+docs.Lengths[i]]); err != nil {
			return nil, err
		}
	}

	table := &Table{Rows: tasks.Count, Columns: make([]ColumnResult, len(columns))}
	tape := a.Tape()
	tapeStart := len(tape.Contents())

	for ci, col := range columns {
		out := &table.Columns[ci]
		out.Field = col.Field
		out.Type = col.Type
		out.Validity = a.Bitmap(tasks.Count)
		out.Conversion = a.Bitmap(tasks.Count)
		out.Collision = a.Bitmap(tasks.Count)

		if w := col.Type.Width(); w != 0 {
			out.Scalars = a.Bytes(tasks.Count * w)
		} else {
			out.Offsets = a.Lengths(tasks.Count + 1)
			out.Lengths = a.Lengths(tasks.Count)
		}

		for row := 0; row < tasks.Count; row++ {
			var cell *Node
			if roots[row] != nil {
				if found, ok, err := lookup(roots[row], col.Field); err == nil && ok {
					cell = found
				} else if err != nil {
					return nil, err
				}
			}
			if col.Type.Width() != 0 {
				gatherScalar(cell, col.Type, row, out)
			} else {
				out.Offsets[row] = uint32(len(tape.Contents()) - tapeStart)
				gatherVariable(cell, col.Type, row, out, tape)
			}
		}
		if col.Type.Width() == 0 {
			out.Offsets[tasks.Count] = uint32(len(tape.Contents()) - tapeStart)
		}
	}

	table.Tape = tape.Contents()[tapeStart:]
	return table, nil
}

// cellFlags applies one verdict to the three bitmaps.
func cellFlags(out *ColumnResult, row int, valid, conv, coll bool) {
	if valid {
		out.Validity.Set(row)
	}
	if conv {
		out.Conversion.Set(row)
	}
	if coll {
		out.Collision.Set(row)
	}
}

// gatherScalar coerces one cell into a fixed-width slot. The slot is
// always written, zero when nothing better is available, to keep the
// column dense.
func gatherScalar(cell *Node, t ColumnType, row int, out *ColumnResult) {
	raw, valid, conv, coll := coerceScalar(cell, t)
	cellFlags(out, row, valid, conv, coll)
	w := t.Width()
	slot := out.Scalars[row*w : (row+1)*w]
	switch w {
	case 1:
		slot[0] = byte(raw)
	case 2:
		binary.LittleEndian.PutUint16(slot, uint16(raw))
	case 4:
		binary.LittleEndian.PutUint32(slot, uint32(raw))
	case 8:
		binary.LittleEndian.PutUint64(slot, raw)
	}
}

// coerceScalar maps a stored node onto a fixed-width type following the
// engine's coercion rules. raw holds the value's little-endian bits.
func coerceScalar(cell *Node, t ColumnType) (raw uint64, valid, conv, coll bool) {
	if cell == nil || cell.kind == KindNull {
		return 0, false, false, false
	}

	switch cell.kind {
	case KindObject, KindArray:
		return 0, false, false, true

	case KindBool:
		v := uint64(0)
		if cell.b {
			v = 1
		}
		if t == TypeBool {
			return v, true, false, false
		}
		if t.float() {
			return floatBits(float64(v), t), true, true, false
		}
		return v, true, true, false

	case KindInt:
		return coerceInt(cell.i, t)

	case KindUint:
		return coerceUint(cell.u, t)

	case KindFloat32, KindFloat64:
		return coerceFloat(cell.f, t)

	case KindString:
		return coerceNumericString(cell.s, t)

	case KindBinary:
		if len(cell.raw) != t.Width() {
			return 0, false, false, true
		}
		var v uint64
		for i := len(cell.raw) - 1; i >= 0; i-- {
			v = v<<8 | uint64(cell.raw[i])
		}
		return v, true, true, false
	}
	return 0, false, false, true
}

func coerceInt(i int64, t ColumnType) (uint64, bool, bool, bool) {
	switch {
	case t == TypeBool:
		if i == 0 || i == 1 {
			return uint64(i), true, true, false
		}
		return 0, false, false, true
	case t.signed():
		if fitsSigned(i, t.bits()) {
			return uint64(i), true, false, false
		}
		return truncate(uint64(i), t.bits()), true, true, false
	case t.unsigned():
		if i < 0 {
			return 0, false, false, true
		}
		if fitsUnsigned(uint64(i), t.bits()) {
			return uint64(i), true, false, false
		}
		return truncate(uint64(i), t.bits()), true, true, false
	default: // float
		return floatBits(float64(i), t), true, true, false
	}
}

func coerceUint(u uint64, t ColumnType) (uint64, bool, bool, bool) {
	switch {
	case t == TypeBool:
		if u <= 1 {
			return u, true, true, false
		}
		return 0, false, false, true
	case t.signed():
		if u <= uint64(maxSigned(t.bits())) {
			return u, true, false, false
		}
		return 0, false, false, true
	case t.unsigned():
		if fitsUnsigned(u, t.bits()) {
			return u, true, false, false
		}
		return truncate(u, t.bits()), true, true, false
	default:
		return floatBits(float64(u), t), true, true, false
	}
}

func coerceFloat(f float64, t ColumnType) (uint64, bool, bool, bool) {
	switch {
	case t == TypeBool:
		if f == 0 || f == 1 {
			return uint64(f), true, true, false
		}
		return 0, false, false, true
	case t.signed():
		if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
			return 0, false, false, true
		}
		if i := int64(f); fitsSigned(i, t.bits()) {
			return uint64(i), true, true, false
		}
		return 0, false, false, true
	case t.unsigned():
		if f != math.Trunc(f) || f < 0 || f >= 1<<64 {
			return 0, false, false, true
		}
		if u := uint64(f); fitsUnsigned(u, t.bits()) {
			return u, true, true, false
		}
		return 0, false, false, true
	case t == TypeFloat32:
		conv := float64(float32(f)) != f
		return floatBits(f, t), true, conv, false
	default:
		return floatBits(f, t), true, false, false
	}
}

func coerceNumericString(s string, t ColumnType) (uint64, bool, bool, bool) {
	switch {
	case t == TypeBool:
		switch s {
		case "true":
			return 1, true, true, false
		case "false":
			return 0, true, true, false
		}
		return 0, false, false, true
	case t.signed():
		i, err := strconv.ParseInt(s, 10, t.bits())
		if err != nil {
			return 0, false, false, true
		}
		return uint64(i), true, true, false
	case t.unsigned():
		u, err := strconv.ParseUint(s, 10, t.bits())
		if err != nil {
			return 0, false, false, true
		}
		return u, true, true, false
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, false, true
		}
		return floatBits(f, t), true, true, false
	}
}

// gatherVariable coerces one cell into the shared tape. Every row gets a
// tape entry; unusable cells contribute zero bytes.
func gatherVariable(cell *Node, t ColumnType, row int, out *ColumnResult, tape *arena.Tape) {
	push := func(b []byte, valid, conv, coll bool) {
		cellFlags(out, row, valid, conv, coll)
		out.Lengths[row] = uint32(len(b))
		tape.Push(b)
	}

	if cell == nil || cell.kind == KindNull {
		push(nil, false, false, false)
		return
	}

	switch cell.kind {
	case KindObject, KindArray:
		push(nil, false, false, true)
	case KindBool:
		push([]byte(strconv.FormatBool(cell.b)), true, true, false)
	case KindInt:
		push([]byte(strconv.FormatInt(cell.i, 10)), true, true, false)
	case KindUint:
		push([]byte(strconv.FormatUint(cell.u, 10)), true, true, false)
	case KindFloat32:
		push([]byte(strconv.FormatFloat(cell.f, 'g', -1, 32)), true, true, false)
	case KindFloat64:
		push([]byte(strconv.FormatFloat(cell.f, 'g', -1, 64)), true, true, false)
	case KindString:
		push([]byte(cell.s), true, false, false)
	case KindBinary:
		push(cell.raw, true, t == TypeString, false)
	default:
		push(nil, false, false, true)
	}
}

func fitsSigned(i int64, bits int) bool {
	if bits == 64 {
		return true
	}
	limit := int64(1) << (bits - 1)
	return i >= -limit && i < limit
}

func fitsUnsigned(u uint64, bits int) bool {
	if bits == 64 {
		return true
	}
	return u < uint64(1)<<bits
}

func maxSigned(bits int) int64 {
	if bits == 64 {
		return math.MaxInt64
	}
	return int64(1)<<(bits-1) - 1
}

func truncate(v uint64, bits int) uint64 {
	if bits == 64 {
		return v
	}
	return v & (uint64(1)<<bits - 1)
}

func floatBits(f float64, t ColumnType) uint64 {
	if t == TypeFloat32 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}
