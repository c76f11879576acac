package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cuemby/hutch/pkg/kv"
)

const (
	// EdgeDefault identifies unlabeled edges.
	EdgeDefault kv.Key = math.MaxUint64

	// DegreeMissing is reported for vertices without a stored value.
	DegreeMissing uint32 = math.MaxUint32

	headerSize = 8  // two u32 degree counts
	shipSize   = 16 // neighbor id + edge id
)

// Role selects which adjacency lists of a vertex an operation touches.
type Role uint8

const (
	// RoleSource addresses outgoing edges (the vertex is the source).
	RoleSource Role = 1 << iota
	// RoleTarget addresses incoming edges (the vertex is the target).
	RoleTarget
	// RoleAny addresses both lists.
	RoleAny = RoleSource | RoleTarget
)

// invert swaps source and target; any stays any.
func (r Role) invert() Role {
	switch r {
	case RoleSource:
		return RoleTarget
	case RoleTarget:
		return RoleSource
	}
	return r
}

// Neighborship is one adjacency record: the opposite endpoint and the
// edge identity connecting it.
type Neighborship struct {
	Neighbor kv.Key
	Edge     kv.Key
}

func shipLess(a, b Neighborship) bool {
	if a.Neighbor != b.Neighbor {
		return a.Neighbor < b.Neighbor
	}
	return a.Edge < b.Edge
}

// adjacency is the decoded value of a graph vertex: outgoing and incoming
// neighborships, each strictly ordered by (neighbor, edge).
type adjacency struct {
	out []Neighborship
	in  []Neighborship
}

// list returns the records of one role; RoleAny concatenates.
func (a *adjacency) list(r Role) []Neighborship {
	switch r {
	case RoleSource:
		return a.out
	case RoleTarget:
		return a.in
	}
	both := make([]Neighborship, 0, len(a.out)+len(a.in))
	both = append(both, a.out...)
	return append(both, a.in...)
}

// parseAdjacency decodes a stored vertex value. A missing or empty value
// decodes to an empty adjacency; a present but truncated one is
// corruption.
func parseAdjacency(b []byte) (adjacency, error) {
	if len(b) == 0 {
		return adjacency{}, nil
	}
	if len(b) < headerSize {
		return adjacency{}, fmt.Errorf("%w: truncated adjacency header", kv.ErrCorruption)
	}
	degOut := binary.LittleEndian.Uint32(b[0:4])
	degIn := binary.LittleEndian.Uint32(b[4:8])
	want := headerSize + (int(degOut)+int(degIn))*shipSize
	if len(b) != want {
		return adjacency{}, fmt.Errorf("%w: adjacency length %d, header wants %d", kv.ErrCorruption, len(b), want)
	}

	decode := func(off int, n uint32) []Neighborship {
		if n == 0 {
			return nil
		}
		ships := make([]Neighborship, n)
		for i := range ships {
			base := off + i*shipSize
			ships[i].Neighbor = binary.LittleEndian.Uint64(b[base : base+8])
			ships[i].Edge = binary.LittleEndian.Uint64(b[base+8 : base+16])
		}
		return ships
	}
	return adjacency{
		out: decode(headerSize, degOut),
		in:  decode(headerSize+int(degOut)*shipSize, degIn),
	}, nil
}

// encodeAdjacency serializes an adjacency; an empty one is the 8-byte
// zero header.
func encodeAdjacency(a adjacency) []byte {
	b := make([]byte, headerSize+(len(a.out)+len(a.in))*shipSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(a.out)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(a.in)))
	off := headerSize
	for _, ships := range [2][]Neighborship{a.out, a.in} {
		for _, s := range ships {
			binary.LittleEndian.PutUint64(b[off:off+8], s.Neighbor)
			binary.LittleEndian.PutUint64(b[off+8:off+16], s.Edge)
			off += shipSize
		}
	}
	return b
}

// upsertShip inserts a record into the sorted list of one role, keeping
// order and rejecting duplicates. Reports whether the list changed.
func (a *adjacency) upsertShip(r Role, ship Neighborship) bool {
	list := a.out
	if r == RoleTarget {
		list = a.in
	}
	i := sort.Search(len(list), func(j int) bool { return !shipLess(list[j], ship) })
	if i < len(list) && list[i] == ship {
		return false
	}
	list = append(list, Neighborship{})
	copy(list[i+1:], list[i:])
	list[i] = ship

	if r == RoleTarget {
		a.in = list
	} else {
		a.out = list
	}
	return true
}

// eraseShips removes records matching neighbor from one role's list: the
// exact (neighbor, edge) pair when edge is set, every record with that
// neighbor otherwise. Reports whether anything was removed.
func (a *adjacency) eraseShips(r Role, neighbor kv.Key, edge *kv.Key) bool {
	list := a.out
	if r == RoleTarget {
		list = a.in
	}

	var lo, hi int
	if edge != nil {
		ship := Neighborship{Neighbor: neighbor, Edge: *edge}
		lo = sort.Search(len(list), func(j int) bool { return !shipLess(list[j], ship) })
		if lo == len(list) || list[lo] != ship {
			return false
		}
		hi = lo + 1
	} else {
		lo = sort.Search(len(list), func(j int) bool { return list[j].Neighbor >= neighbor })
		hi = sort.Search(len(list), func(j int) bool { return list[j].Neighbor > neighbor })
		if lo == hi {
			return false
		}
	}

	list = append(list[:lo], list[hi:]...)
	if r == RoleTarget {
		a.in = list
	} else {
		a.out = list
	}
	return true
}
