package graph

import (
	"fmt"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/metrics"
	"github.com/cuemby/hutch/pkg/stride"
)

// EdgeTasks describes a batch of edges by endpoints and identity. For
// removals, AnyEdge ignores the edge ids and strips every edge between
// the endpoints.
type EdgeTasks struct {
	Collections stride.Series[kv.CollectionID]
	Sources     stride.Series[kv.Key]
	Targets     stride.Series[kv.Key]
	Edges       stride.Series[kv.Key]
	AnyEdge     bool
	Count       int
}

// VertexTasks describes a batch of vertices with the roles to consider.
type VertexTasks struct {
	Collections stride.Series[kv.CollectionID]
	Vertices    stride.Series[kv.Key]
	Roles       stride.Series[Role]
	Count       int
}

// vertexAddr locates one vertex value.
type vertexAddr struct {
	col    kv.CollectionID
	vertex kv.Key
}

// vertexSet deduplicates the vertices a batch touches and carries their
// decoded adjacencies between the read and the write-back.
type vertexSet struct {
	addrs []vertexAddr
	index map[vertexAddr]int
	adjs  []adjacency
	found []bool
}

func newVertexSet() *vertexSet {
	return &vertexSet{index: map[vertexAddr]int{}}
}

func (s *vertexSet) add(addr vertexAddr) {
	if _, ok := s.index[addr]; ok {
		return
	}
	s.index[addr] = len(s.addrs)
	s.addrs = append(s.addrs, addr)
}

func (s *vertexSet) at(addr vertexAddr) *adjacency {
	return &s.adjs[s.index[addr]]
}

// load performs one deduplicated batched read and decodes every value.
func (s *vertexSet) load(src kv.Source, a *arena.Arena) error {
	cols := make([]kv.CollectionID, len(s.addrs))
	keys := make([]kv.Key, len(s.addrs))
	for i, addr := range s.addrs {
		cols[i] = addr.col
		keys[i] = addr.vertex
	}
	res, err := src.Read(kv.ReadTasks{
		Collections: stride.Over(cols),
		Keys:        stride.Over(keys),
		Count:       len(s.addrs),
	}, kv.ReadOptions{}, a)
	if err != nil {
		return err
	}

	s.adjs = make([]adjacency, len(s.addrs))
	s.found = make([]bool, len(s.addrs))
	for i := range s.addrs {
		if !res.Presences.Get(i) {
			continue
		}
		s.found[i] = true
		off := res.Offsets[i]
		if s.adjs[i], err = parseAdjacency(res.Values[off : off+res.Lengths[i]]); err != nil {
			return err
		}
	}
	return nil
}

// flush writes every vertex back in one batch; tombstoned members write
// nil values.
func (s *vertexSet) flush(store kv.Store, tombstones map[vertexAddr]bool, opts kv.WriteOptions) error {
	cols := make([]kv.CollectionID, len(s.addrs))
	keys := make([]kv.Key, len(s.addrs))
	vals := make([][]byte, len(s.addrs))
	for i, addr := range s.addrs {
		cols[i] = addr.col
		keys[i] = addr.vertex
		if tombstones[addr] {
			vals[i] = nil
			continue
		}
		vals[i] = encodeAdjacency(s.adjs[i])
	}
	return store.Write(kv.WriteTasks{
		Collections: stride.Over(cols),
		Keys:        stride.Over(keys),
		Values:      stride.OverBytes(vals),
		Count:       len(s.addrs),
	}, opts)
}

// UpsertEdges inserts a batch of edges, maintaining both endpoints'
// adjacency lists. Existing edges are left untouched; absent vertices
// are created.
func UpsertEdges(store kv.Store, tasks EdgeTasks, opts kv.WriteOptions, a *arena.Arena) error {
	if store == nil || a == nil {
		return fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}
	metrics.GraphUpsertsTotal.Add(float64(tasks.Count))

	set := newVertexSet()
	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		set.add(vertexAddr{col: col, vertex: tasks.Sources.At(i)})
		set.add(vertexAddr{col: col, vertex: tasks.Targets.At(i)})
	}
	if err := set.load(store, a); err != nil {
		return err
	}

	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		source := tasks.Sources.At(i)
		target := tasks.Targets.At(i)
		edge := tasks.Edges.At(i)

		set.at(vertexAddr{col: col, vertex: source}).
			upsertShip(RoleSource, Neighborship{Neighbor: target, Edge: edge})
		set.at(vertexAddr{col: col, vertex: target}).
			upsertShip(RoleTarget, Neighborship{Neighbor: source, Edge: edge})
	}

	return set.flush(store, nil, opts)
}

// RemoveEdges deletes a batch of edges from both endpoints' adjacency
// lists. With AnyEdge set, every edge between the endpoints goes. Vertex
// values remain, possibly as empty adjacencies; use RemoveVertices to
// drop them.
func RemoveEdges(store kv.Store, tasks EdgeTasks, opts kv.WriteOptions, a *arena.Arena) error {
	if store == nil || a == nil {
		return fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}
	metrics.GraphRemovalsTotal.Add(float64(tasks.Count))

	set := newVertexSet()
	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		set.add(vertexAddr{col: col, vertex: tasks.Sources.At(i)})
		set.add(vertexAddr{col: col, vertex: tasks.Targets.At(i)})
	}
	if err := set.load(store, a); err != nil {
		return err
	}

	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		source := tasks.Sources.At(i)
		target := tasks.Targets.At(i)
		var edge *kv.Key
		if !tasks.AnyEdge {
			e := tasks.Edges.At(i)
			edge = &e
		}

		set.at(vertexAddr{col: col, vertex: source}).eraseShips(RoleSource, target, edge)
		set.at(vertexAddr{col: col, vertex: target}).eraseShips(RoleTarget, source, edge)
	}

	return set.flush(store, nil, opts)
}

// RemoveVertices deletes a batch of vertices: each vertex's entry is
// tombstoned and every neighbor in the selected role(s) loses its
// neighborships referring to the vertex in the complementary role.
func RemoveVertices(store kv.Store, tasks VertexTasks, opts kv.WriteOptions, a *arena.Arena) error {
	if store == nil || a == nil {
		return fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}

	// First pass: the vertices themselves, to learn their neighbors.
	centers := newVertexSet()
	for i := 0; i < tasks.Count; i++ {
		centers.add(vertexAddr{col: tasks.Collections.At(i), vertex: tasks.Vertices.At(i)})
	}
	if err := centers.load(store, a); err != nil {
		return err
	}

	// Second pass: vertices plus every affected neighbor, deduplicated.
	set := newVertexSet()
	tombstones := map[vertexAddr]bool{}
	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		addr := vertexAddr{col: col, vertex: tasks.Vertices.At(i)}
		set.add(addr)
		tombstones[addr] = true
		adj := centers.at(addr)
		for _, ship := range adj.list(roleAt(tasks.Roles, i)) {
			set.add(vertexAddr{col: col, vertex: ship.Neighbor})
		}
	}
	if err := set.load(store, a); err != nil {
		return err
	}

	for i := 0; i < tasks.Count; i++ {
		col := tasks.Collections.At(i)
		vertex := tasks.Vertices.At(i)
		role := roleAt(tasks.Roles, i)
		adj := centers.at(vertexAddr{col: col, vertex: vertex})

		for _, ship := range adj.list(role) {
			neighbor := set.at(vertexAddr{col: col, vertex: ship.Neighbor})
			if role == RoleAny {
				neighbor.eraseShips(RoleSource, vertex, nil)
				neighbor.eraseShips(RoleTarget, vertex, nil)
			} else {
				neighbor.eraseShips(role.invert(), vertex, nil)
			}
		}
	}

	return set.flush(store, tombstones, opts)
}

// roleAt reads a role series defaulting to RoleAny.
func roleAt(roles stride.Series[Role], i int) Role {
	r := roles.At(i)
	if r == 0 {
		return RoleAny
	}
	return r
}

// EdgesResult is a packed edge listing: Degrees has one entry per input
// vertex (DegreeMissing for absent vertices) and the triple slices carry
// the concatenated per-vertex edges in input order.
type EdgesResult struct {
	Degrees []uint32
	Sources []kv.Key
	Targets []kv.Key
	Edges   []kv.Key
}

// Degrees reports per-vertex edge counts for the selected roles without
// materializing the edges.
func Degrees(src kv.Source, tasks VertexTasks, a *arena.Arena) ([]uint32, error) {
	res, err := findEdges(src, tasks, a, false)
	if err != nil {
		return nil, err
	}
	return res.Degrees, nil
}

// FindEdges materializes the edges incident to a batch of vertices as
// packed (source, target, edge) triples.
func FindEdges(src kv.Source, tasks VertexTasks, a *arena.Arena) (EdgesResult, error) {
	return findEdges(src, tasks, a, true)
}

func findEdges(src kv.Source, tasks VertexTasks, a *arena.Arena, materialize bool) (EdgesResult, error) {
	if src == nil || a == nil {
		return EdgesResult{}, fmt.Errorf("%w: nil handle", kv.ErrUninitialized)
	}

	set := newVertexSet()
	for i := 0; i < tasks.Count; i++ {
		set.add(vertexAddr{col: tasks.Collections.At(i), vertex: tasks.Vertices.At(i)})
	}
	if err := set.load(src, a); err != nil {
		return EdgesResult{}, err
	}

	out := EdgesResult{Degrees: make([]uint32, tasks.Count)}
	total := 0
	for i := 0; i < tasks.Count; i++ {
		addr := vertexAddr{col: tasks.Collections.At(i), vertex: tasks.Vertices.At(i)}
		if !set.found[set.index[addr]] {
			out.Degrees[i] = DegreeMissing
			continue
		}
		role := roleAt(tasks.Roles, i)
		adj := set.at(addr)
		degree := 0
		if role&RoleSource != 0 {
			degree += len(adj.out)
		}
		if role&RoleTarget != 0 {
			degree += len(adj.in)
		}
		out.Degrees[i] = uint32(degree)
		total += degree
	}
	if !materialize {
		return out, nil
	}

	out.Sources = a.Keys(total)
	out.Targets = a.Keys(total)
	out.Edges = a.Keys(total)
	pos := 0
	for i := 0; i < tasks.Count; i++ {
		addr := vertexAddr{col: tasks.Collections.At(i), vertex: tasks.Vertices.At(i)}
		if !set.found[set.index[addr]] {
			continue
		}
		role := roleAt(tasks.Roles, i)
		adj := set.at(addr)
		if role&RoleSource != 0 {
			for _, ship := range adj.out {
				out.Sources[pos] = addr.vertex
				out.Targets[pos] = ship.Neighbor
				out.Edges[pos] = ship.Edge
				pos++
			}
		}
		if role&RoleTarget != 0 {
			for _, ship := range adj.in {
				out.Sources[pos] = ship.Neighbor
				out.Targets[pos] = addr.vertex
				out.Edges[pos] = ship.Edge
				pos++
			}
		}
	}
	return out, nil
}

// Vertices lists the vertex identifiers of a graph collection in
// ascending order, up to limit.
func Vertices(src kv.Source, col kv.CollectionID, limit uint32, a *arena.Arena) ([]kv.Key, error) {
	res, err := src.Scan(kv.ScanTasks{
		Collections: stride.Repeat(col),
		MinKeys:     stride.Repeat(kv.Key(0)),
		MaxKeys:     stride.Repeat(kv.KeyUnknown),
		Limits:      stride.Repeat(limit),
		Count:       1,
	}, a)
	if err != nil {
		return nil, err
	}
	return res.Keys[:res.Counts[0]], nil
}
