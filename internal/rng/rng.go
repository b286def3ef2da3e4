// Package rng provides the caller-owned random state used while sampling
// training patches.
//
// A State is mutated in place on every draw, so passing the same *State to
// consecutive training calls yields one logical sequence of draws. A State is
// not safe for concurrent use; parallel streams must each own one.
package rng

// defaultSeed replaces a zero seed, which would otherwise lock xorshift at 0.
const defaultSeed uint32 = 2463534242

// State is a xorshift32 generator state.
type State uint32

// New returns a state seeded with seed.
func New(seed uint32) *State {
	s := State(seed)
	return &s
}

// Next advances the state and returns the new value.
func (s *State) Next() uint32 {
	x := uint32(*s)
	if x == 0 {
		x = defaultSeed
	}
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*s = State(x)
	return x
}

// Intn returns a value in [0, n). It returns 0 when n <= 0.
func (s *State) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Next() % uint32(n))
}

// Float64 returns a value in [0, 1).
func (s *State) Float64() float64 {
	return float64(s.Next()) / (1 << 32)
}

// Fill writes uniform values in [0, 1) into buf.
func (s *State) Fill(buf []float64) {
	for i := range buf {
		buf[i] = s.Float64()
	}
}
