package docs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/cuemby/hutch/pkg/kv"
)

// DecodeJSON parses a JSON document into a tree. Non-negative integral
// numbers decode unsigned, negative ones signed, everything else float64.
func DecodeJSON(data []byte) (*Node, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrArgs, err)
	}
	return fromFastjson(v)
}

func fromFastjson(v *fastjson.Value) (*Node, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return Null(), nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeNumber:
		if u, err := v.Uint64(); err == nil {
			return Uint(u), nil
		}
		if i, err := v.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrArgs, err)
		}
		return Float64(f), nil
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrArgs, err)
		}
		return String(string(b)), nil
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrArgs, err)
		}
		out := make([]*Node, len(items))
		for i, item := range items {
			if out[i], err = fromFastjson(item); err != nil {
				return nil, err
			}
		}
		return Array(out...), nil
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrArgs, err)
		}
		var members []Member
		var convErr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if convErr != nil {
				return
			}
			child, err := fromFastjson(item)
			if err != nil {
				convErr = err
				return
			}
			members = append(members, Member{Name: string(key), Value: child})
		})
		if convErr != nil {
			return nil, convErr
		}
		return Object(members...), nil
	}
	return nil, fmt.Errorf("%w: unsupported JSON value", kv.ErrArgs)
}

// EncodeJSON serializes a tree to JSON, preserving object member order.
// Binary nodes emit base64 strings; non-finite floats emit null.
func EncodeJSON(n *Node) []byte {
	return appendJSON(nil, n)
}

func appendJSON(b []byte, n *Node) []byte {
	switch n.kind {
	case KindNull:
		return append(b, "null"...)
	case KindBool:
		return strconv.AppendBool(b, n.b)
	case KindInt:
		return strconv.AppendInt(b, n.i, 10)
	case KindUint:
		return strconv.AppendUint(b, n.u, 10)
	case KindFloat32, KindFloat64:
		if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
			return append(b, "null"...)
		}
		bits := 64
		if n.kind == KindFloat32 {
			bits = 32
		}
		return strconv.AppendFloat(b, n.f, 'g', -1, bits)
	case KindString:
		return appendQuoted(b, n.s)
	case KindBinary:
		return appendQuoted(b, base64.StdEncoding.EncodeToString(n.raw))
	case KindArray:
		b = append(b, '[')
		for i, item := range n.arr {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendJSON(b, item)
		}
		return append(b, ']')
	case KindObject:
		b = append(b, '{')
		for i, m := range n.obj {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendQuoted(b, m.Name)
			b = append(b, ':')
			b = appendJSON(b, m.Value)
		}
		return append(b, '}')
	}
	return append(b, "null"...)
}

func appendQuoted(b []byte, s string) []byte {
	quoted, err := json.Marshal(s)
	if err != nil {
		return append(b, `""`...)
	}
	return append(b, quoted...)
}
