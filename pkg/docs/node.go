package docs

// Kind enumerates the node types of the canonical document tree.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat32
	KindFloat64
	KindString
	KindBinary
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "invalid"
}

// Member is one object field. Order is preserved through parse, mutation,
// and serialization.
type Member struct {
	Name  string
	Value *Node
}

// Node is one value in a document tree.
type Node struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	raw  []byte
	arr  []*Node
	obj  []Member
}

// Null returns a null node.
func Null() *Node { return &Node{kind: KindNull} }

// Bool returns a boolean node.
func Bool(v bool) *Node { return &Node{kind: KindBool, b: v} }

// Int returns a signed integer node.
func Int(v int64) *Node { return &Node{kind: KindInt, i: v} }

// Uint returns an unsigned integer node.
func Uint(v uint64) *Node { return &Node{kind: KindUint, u: v} }

// Float32 returns a 32-bit float node.
func Float32(v float32) *Node { return &Node{kind: KindFloat32, f: float64(v)} }

// Float64 returns a 64-bit float node.
func Float64(v float64) *Node { return &Node{kind: KindFloat64, f: v} }

// String returns a string node.
func String(v string) *Node { return &Node{kind: KindString, s: v} }

// Binary returns a binary node.
func Binary(v []byte) *Node { return &Node{kind: KindBinary, raw: v} }

// Array returns an array node.
func Array(items ...*Node) *Node { return &Node{kind: KindArray, arr: items} }

// Object returns an object node.
func Object(members ...Member) *Node { return &Node{kind: KindObject, obj: members} }

// Kind reports the node type.
func (n *Node) Kind() Kind { return n.kind }

// BoolValue returns the boolean payload.
func (n *Node) BoolValue() bool { return n.b }

// IntValue returns the signed integer payload.
func (n *Node) IntValue() int64 { return n.i }

// UintValue returns the unsigned integer payload.
func (n *Node) UintValue() uint64 { return n.u }

// FloatValue returns the float payload.
func (n *Node) FloatValue() float64 { return n.f }

// StringValue returns the string payload.
func (n *Node) StringValue() string { return n.s }

// BinaryValue returns the binary payload.
func (n *Node) BinaryValue() []byte { return n.raw }

// Items returns array elements.
func (n *Node) Items() []*Node { return n.arr }

// Members returns object fields in order.
func (n *Node) Members() []Member { return n.obj }

// Get returns the member named name.
func (n *Node) Get(name string) (*Node, bool) {
	for _, m := range n.obj {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Set replaces or appends the member named name.
func (n *Node) Set(name string, v *Node) {
	for i, m := range n.obj {
		if m.Name == name {
			n.obj[i].Value = v
			return
		}
	}
	n.obj = append(n.obj, Member{Name: name, Value: v})
}

// Remove deletes the member named name, reporting whether it existed.
func (n *Node) Remove(name string) bool {
	for i, m := range n.obj {
		if m.Name == name {
			n.obj = append(n.obj[:i], n.obj[i+1:]...)
			return true
		}
	}
	return false
}
