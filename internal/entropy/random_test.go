package entropy

import "testing"

func TestSeededIsReproducible(t *testing.T) {
	a, b := NewSeeded(99), NewSeeded(99)
	for i := 0; i < 100; i++ {
		if x, y := a.Float(), b.Float(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestCryptoRange(t *testing.T) {
	var c Crypto
	for i := 0; i < 1000; i++ {
		if f := c.Float(); f < 0 || f >= 1 {
			t.Fatalf("Float() = %v out of [0,1)", f)
		}
	}
}

func TestRollEdges(t *testing.T) {
	src := NewSeeded(1)
	for i := 0; i < 100; i++ {
		if Roll(src, 0) {
			t.Fatalf("p=0 must never fire")
		}
		if !Roll(src, 1) {
			t.Fatalf("p=1 must always fire")
		}
	}
}

func TestNewPicksSource(t *testing.T) {
	if _, ok := New(0).(Crypto); !ok {
		t.Fatalf("seed 0 should give crypto source")
	}
	if _, ok := New(5).(*Seeded); !ok {
		t.Fatalf("non-zero seed should give seeded source")
	}
}

func TestSeededRestore(t *testing.T) {
	src := NewSeeded(42)
	src.Float()
	state, err := src.State()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{src.Float(), src.Float(), src.Float()}
	if err := src.Restore(state); err != nil {
		t.Fatal(err)
	}
	for i, w := range want {
		if got := src.Float(); got != w {
			t.Fatalf("draw %d after restore = %v, want %v", i, got, w)
		}
	}
	if err := src.Restore([]byte("junk")); err == nil {
		t.Fatalf("Restore accepted a malformed state")
	}
}
