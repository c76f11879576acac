package arena

import (
	"bytes"
	"testing"
)

func TestBytesZeroedAndStable(t *testing.T) {
	a := New()

	first := a.Bytes(16)
	for i := range first {
		if first[i] != 0 {
			t.Fatalf("allocation not zeroed at %d", i)
		}
	}
	copy(first, "hello")

	// Later allocations must not disturb earlier ones.
	for i := 0; i < 100; i++ {
		a.Bytes(1024)
	}
	if !bytes.Equal(first[:5], []byte("hello")) {
		t.Error("earlier allocation was clobbered")
	}
}

func TestOversizedAllocation(t *testing.T) {
	a := New()
	big := a.Bytes(chunkSize * 3)
	if len(big) != chunkSize*3 {
		t.Fatalf("got %d bytes", len(big))
	}
	small := a.Bytes(8)
	if len(small) != 8 {
		t.Fatalf("got %d bytes", len(small))
	}
}

func TestResetReuses(t *testing.T) {
	a := New()
	b1 := a.Bytes(32)
	copy(b1, "stale data stale data stale data")
	a.Reset()

	b2 := a.Bytes(32)
	for i := range b2 {
		if b2[i] != 0 {
			t.Fatalf("reused memory not zeroed at %d", i)
		}
	}
}

func TestTapeOffsets(t *testing.T) {
	var tape Tape
	tape.Push([]byte("abc"))
	tape.Push(nil)
	tape.Push([]byte("defg"))

	offsets := tape.Offsets()
	wantOffsets := []uint32{0, 3, 3, 7}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("offsets length = %d, want %d", len(offsets), len(wantOffsets))
	}
	for i, want := range wantOffsets {
		if offsets[i] != want {
			t.Errorf("offsets[%d] = %d, want %d", i, offsets[i], want)
		}
	}
	for i := 0; i < tape.Count(); i++ {
		if got := offsets[i+1] - offsets[i]; got != tape.Lengths()[i] {
			t.Errorf("entry %d: offset delta %d != length %d", i, got, tape.Lengths()[i])
		}
	}
	if string(tape.Entry(2)) != "defg" {
		t.Errorf("Entry(2) = %q", tape.Entry(2))
	}
	if string(tape.Contents()) != "abcdefg" {
		t.Errorf("Contents = %q", tape.Contents())
	}
}

func TestBitmapLSBFirst(t *testing.T) {
	a := New()
	b := a.Bitmap(16)

	b.Set(0)
	b.Set(3)
	b.Set(9)
	if b[0] != 0b0000_1001 {
		t.Errorf("byte 0 = %#08b", b[0])
	}
	if b[1] != 0b0000_0010 {
		t.Errorf("byte 1 = %#08b", b[1])
	}
	if !b.Get(9) || b.Get(8) {
		t.Error("Get disagrees with Set")
	}
	b.Clear(3)
	if b.Get(3) {
		t.Error("Clear did not clear")
	}
	if got := b.Count(16); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}
