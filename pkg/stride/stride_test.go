package stride

import "testing"

func TestSeriesOver(t *testing.T) {
	s := Over([]uint64{10, 20, 30})
	if s.Repeating() {
		t.Error("slice-backed series reports repeating")
	}
	for i, want := range []uint64{10, 20, 30} {
		if got := s.At(i); got != want {
			t.Errorf("At(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestSeriesRepeat(t *testing.T) {
	s := Repeat[uint64](7)
	if !s.Repeating() {
		t.Error("scalar series not repeating")
	}
	for i := 0; i < 1000; i += 97 {
		if got := s.At(i); got != 7 {
			t.Errorf("At(%d) = %d, want 7", i, got)
		}
	}
}

func TestBytesNilVersusEmpty(t *testing.T) {
	b := OverBytes([][]byte{nil, {}, []byte("x")})
	if b.At(0) != nil {
		t.Error("nil entry should stay nil")
	}
	if b.At(1) == nil || len(b.At(1)) != 0 {
		t.Error("empty entry should be non-nil and empty")
	}
	if string(b.At(2)) != "x" {
		t.Errorf("At(2) = %q", b.At(2))
	}

	r := RepeatBytes(nil)
	if r.At(42) != nil {
		t.Error("repeating nil should stay nil")
	}
}
