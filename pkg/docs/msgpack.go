package docs

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/cuemby/hutch/pkg/kv"
)

// DecodeMsgpack parses a canonical document into a tree. Every stored
// document value must round-trip through here; failures surface as
// corruption.
func DecodeMsgpack(data []byte) (*Node, error) {
	d := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := decodeNode(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrCorruption, err)
	}
	return n, nil
}

func decodeNode(d *msgpack.Decoder) (*Node, error) {
	c, err := d.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		if err := d.DecodeNil(); err != nil {
			return nil, err
		}
		return Null(), nil

	case c == msgpcode.True, c == msgpcode.False:
		v, err := d.DecodeBool()
		if err != nil {
			return nil, err
		}
		return Bool(v), nil

	case msgpcode.IsFixedNum(c):
		// Positive fixints decode unsigned, negative ones signed.
		if int8(c) >= 0 {
			v, err := d.DecodeUint64()
			if err != nil {
				return nil, err
			}
			return Uint(v), nil
		}
		v, err := d.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return Int(v), nil

	case c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		v, err := d.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return Int(v), nil

	case c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64:
		v, err := d.DecodeUint64()
		if err != nil {
			return nil, err
		}
		return Uint(v), nil

	case c == msgpcode.Float:
		v, err := d.DecodeFloat32()
		if err != nil {
			return nil, err
		}
		return Float32(v), nil

	case c == msgpcode.Double:
		v, err := d.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return Float64(v), nil

	case msgpcode.IsString(c):
		v, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		return String(v), nil

	case msgpcode.IsBin(c):
		v, err := d.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return Binary(v), nil

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		length, err := d.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		items := make([]*Node, length)
		for i := range items {
			if items[i], err = decodeNode(d); err != nil {
				return nil, err
			}
		}
		return Array(items...), nil

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		length, err := d.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		members := make([]Member, length)
		for i := range members {
			name, err := d.DecodeString()
			if err != nil {
				return nil, fmt.Errorf("non-string object key: %w", err)
			}
			value, err := decodeNode(d)
			if err != nil {
				return nil, err
			}
			members[i] = Member{Name: name, Value: value}
		}
		return Object(members...), nil
	}

	return nil, fmt.Errorf("unexpected code %#x", c)
}

// EncodeMsgpack serializes a tree into the canonical document format.
func EncodeMsgpack(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	e := msgpack.NewEncoder(&buf)
	if err := encodeNode(e, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNode(e *msgpack.Encoder, n *Node) error {
	switch n.kind {
	case KindNull:
		return e.EncodeNil()
	case KindBool:
		return e.EncodeBool(n.b)
	case KindInt:
		return e.EncodeInt(n.i)
	case KindUint:
		return e.EncodeUint(n.u)
	case KindFloat32:
		return e.EncodeFloat32(float32(n.f))
	case KindFloat64:
		return e.EncodeFloat64(n.f)
	case KindString:
		return e.EncodeString(n.s)
	case KindBinary:
		return e.EncodeBytes(n.raw)
	case KindArray:
		if err := e.EncodeArrayLen(len(n.arr)); err != nil {
			return err
		}
		for _, item := range n.arr {
			if err := encodeNode(e, item); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if err := e.EncodeMapLen(len(n.obj)); err != nil {
			return err
		}
		for _, m := range n.obj {
			if err := e.EncodeString(m.Name); err != nil {
				return err
			}
			if err := encodeNode(e, m.Value); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: invalid node kind %d", kv.ErrArgs, n.kind)
}
