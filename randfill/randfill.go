// Package randfill provides the deterministic keyed fill dmat uses for
// distribute_symmetric and distribute_random: a pure function of (key, i,
// j) that every process computes identically with no communication,
// which is the determinism invariant §8 requires ("calling
// distribute_symmetric twice with the same key yields bit-identical local
// panels on every process").
//
// A seeded math/rand generator cannot give this property cheaply — two
// processes would need to advance the same stream to the same point, which
// depends on call order, not on (i, j) alone. Instead randfill absorbs
// (key, i, j) into a KT128 extendable-output function and reads the first
// eight bytes of squeezed output back as a float64, which is a pure,
// order-independent function of its input by construction.
package randfill

import (
	"encoding/binary"
	"io"

	"github.com/codahale/kt128"
)

// Value returns a deterministic pseudo-random float64 in [0, 1) derived
// from key, i and j. Value(key, i, j) always equals Value(key, i, j) for
// the same arguments, regardless of which process or how many times it is
// called.
func Value(key uint64, i, j int) float64 {
	var in [24]byte
	binary.LittleEndian.PutUint64(in[0:8], key)
	binary.LittleEndian.PutUint64(in[8:16], uint64(i))
	binary.LittleEndian.PutUint64(in[16:24], uint64(j))

	h := kt128.New()
	_, _ = h.Write(in[:])

	var out [8]byte
	if _, err := io.ReadFull(h, out[:]); err != nil {
		panic("randfill: kt128 squeeze failed: " + err.Error())
	}
	bits := binary.LittleEndian.Uint64(out[:])
	// Use the top 53 bits as the mantissa of a float64 in [0, 1), the
	// same construction math/rand uses for Float64.
	return float64(bits>>11) / float64(1<<53)
}
