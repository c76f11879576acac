package arena

// Tape accumulates variable-length byte strings into one packed buffer,
// recording per-entry offsets and lengths. The offsets slice always
// carries one extra trailing element equal to the total byte count, so
// offsets[i+1]-offsets[i] is the length of entry i.
type Tape struct {
	offsets  []uint32
	lengths  []uint32
	contents []byte
}

// Reset clears the tape without releasing its buffers.
func (t *Tape) Reset() {
	t.offsets = t.offsets[:0]
	t.lengths = t.lengths[:0]
	t.contents = t.contents[:0]
}

// Push appends one byte string and returns its index.
func (t *Tape) Push(v []byte) int {
	idx := len(t.lengths)
	t.offsets = append(t.offsets, uint32(len(t.contents)))
	t.lengths = append(t.lengths, uint32(len(v)))
	t.contents = append(t.contents, v...)
	return idx
}

// PushString appends one string and returns its index.
func (t *Tape) PushString(v string) int {
	idx := len(t.lengths)
	t.offsets = append(t.offsets, uint32(len(t.contents)))
	t.lengths = append(t.lengths, uint32(len(v)))
	t.contents = append(t.contents, v...)
	return idx
}

// Count reports the number of entries.
func (t *Tape) Count() int {
	return len(t.lengths)
}

// Offsets returns the offset array with its trailing total terminator.
func (t *Tape) Offsets() []uint32 {
	return append(t.offsets, uint32(len(t.contents)))
}

// Lengths returns the per-entry byte lengths.
func (t *Tape) Lengths() []uint32 {
	return t.lengths
}

// Contents returns the packed concatenated bytes.
func (t *Tape) Contents() []byte {
	return t.contents
}

// Entry returns the bytes of entry i.
func (t *Tape) Entry(i int) []byte {
	off := t.offsets[i]
	return t.contents[off : off+t.lengths[i]]
}
