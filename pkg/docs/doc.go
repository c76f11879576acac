/*
Package docs implements the document modality over the kv core.

Documents are trees of null, bool, signed and unsigned integers, 32- and
64-bit floats, strings, binary blobs, arrays, and objects. The canonical
stored representation is MessagePack, which covers every node kind;
non-negative signed integers are stored in the compact unsigned form and
decode as unsigned. JSON is accepted and produced at the API boundary. Object
member order survives parse, mutation, and serialization.

Fields are addressed either by a bare name (a child of the root object)
or by an RFC 6901 JSON pointer starting with '/'. Writes follow the
parse → mutate → serialize shape: the existing document is decoded, the
payload applied — as a whole-document replacement, a sub-tree replacement
at a field, an RFC 6902 patch, or an RFC 7386 merge patch — and the
result encoded back to the substrate in one batched write. Tasks touching
the same entry coalesce into a single parsed tree.

Two tabular operators complete the modality. Gist enumerates the sorted
distinct field paths appearing across a batch of documents. Gather
projects heterogeneous documents into typed columns with Arrow-layout
validity, conversion, and collision bitmaps: scalar columns are dense
fixed-width buffers, string and binary columns share one tape with
per-row offsets and lengths.
*/
package docs
