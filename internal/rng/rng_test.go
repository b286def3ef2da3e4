package rng

import "testing"

func TestStateDeterministic(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 100; i++ {
		va, vb := a.Next(), b.Next()
		if va != vb {
			t.Fatalf("draw %d: %d != %d", i, va, vb)
		}
	}
}

func TestStateMutatesInPlace(t *testing.T) {
	s := New(7)
	before := *s
	s.Next()
	if *s == before {
		t.Errorf("state did not advance")
	}
}

func TestZeroSeed(t *testing.T) {
	s := New(0)
	if v := s.Next(); v == 0 {
		t.Errorf("zero seed produced 0")
	}
}

func TestIntnRange(t *testing.T) {
	s := New(1)
	for i := 0; i < 1000; i++ {
		if v := s.Intn(5); v < 0 || v >= 5 {
			t.Fatalf("Intn(5) = %d", v)
		}
	}
	if v := s.Intn(0); v != 0 {
		t.Errorf("Intn(0) = %d, want 0", v)
	}
}

func TestFloat64Range(t *testing.T) {
	s := New(99)
	buf := make([]float64, 500)
	s.Fill(buf)
	for i, v := range buf {
		if v < 0 || v >= 1 {
			t.Fatalf("buf[%d] = %v, want [0,1)", i, v)
		}
	}
}
