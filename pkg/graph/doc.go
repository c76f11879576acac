/*
Package graph implements the directed-multigraph modality over the kv
core.

Every vertex identifier is a key in a graph collection; its value encodes
the vertex's adjacency: a little-endian header of two u32 degree counts
followed by the outgoing and incoming neighborship lists, each strictly
ordered by (neighbor, edge). An edge (u, v, e) exists when u's outgoing
list holds (v, e) and v's incoming list holds (u, e); every mutation
maintains both sides.

Batched operations deduplicate the vertices they touch, perform one
physical read, mutate the decoded adjacencies in memory, and write all
modified values back in a single batch — so an edge upsert costs two
entry touches regardless of batch shape, and removing a vertex cascades
into two batched reads (the removed vertices, then their neighbors) and
one write over its neighborhood.

EdgeDefault marks unlabeled edges; DegreeMissing is reported for vertices
with no stored value. An empty adjacency (the 8-byte zero header) is a
present vertex with no edges, distinct from an absent vertex.
*/
package graph
