package grid

import "fmt"

// Layout selects between a cubic d³ world and a tunable (2.5D) d×d×(d/c)
// world.
type Layout int

const (
	// Cubic arranges the world as a d×d×d cube; c is ignored (effectively 1).
	Cubic Layout = iota
	// Tunable arranges the world as d×d×(d/c), trading extra memory
	// (c-fold replication) for less communication volume.
	Tunable
)

// Topology is one process's view of the grid: its own coordinate plus the
// sub-communicators derived from it. It is built once per rank by Square
// and held for the lifetime of the run.
type Topology struct {
	X, Y, Z int
	D, C    int
	Layout  Layout

	Row    *Comm // fix y,z; vary x — broadcasts SUMMA's left operand
	Column *Comm // fix x,z; vary y — broadcasts SUMMA's right operand
	Depth  *Comm // fix x,y; vary z — all-reduces SUMMA's partial sums
	Slice  *Comm // fix z; vary x,y — the 2D slice used to gather/scatter
	Cube   *Comm // the whole world, ordered by rank — transpose-partner exchange

	// Set only when Layout == Tunable.
	ColumnContig *Comm // Column split into contiguous chunks of size C
	ColumnAlt    *Comm // Column split into alternating groups of size D/C
	MiniCube     *Comm // cubic-shaped SUMMA sub-grid for the tunable layout

	NumChunks int
}

// iroot3 returns the smallest d with d*d*d >= s.
func iroot3(s int) int {
	d := 1
	for d*d*d < s {
		d++
	}
	return d
}

// Square builds the process-grid topology for every rank in world. For
// layout == Cubic, world must have a perfect-cube size and c is ignored.
// For layout == Tunable, world must satisfy d²·(d/c) = size(world) for
// some integer d with c | d; Square rejects any configuration that does
// not, before any matrix is allocated (§8 scenario 5).
func Square(world *World, c int, layout Layout, numChunks int) ([]*Topology, error) {
	if numChunks < 1 {
		numChunks = 1
	}
	s := world.Size()

	var d, zd int
	switch layout {
	case Cubic:
		d = iroot3(s)
		if d*d*d != s {
			return nil, fmt.Errorf("grid: %w (world=%d)", ErrNonCubicWorld, s)
		}
		c = 1
		zd = d
	case Tunable:
		if c < 1 {
			return nil, fmt.Errorf("grid: %w (c=%d)", ErrReplicationFactor, c)
		}
		d = iroot3(s * c)
		if d*d*d != s*c {
			return nil, fmt.Errorf("grid: %w (world=%d, c=%d)", ErrNonCubicWorld, s, c)
		}
		if d%c != 0 {
			return nil, fmt.Errorf("grid: %w (c=%d, d=%d)", ErrReplicationFactor, c, d)
		}
		zd = d / c
	default:
		return nil, fmt.Errorf("grid: unknown layout %d", layout)
	}
	if d*d*zd != s {
		return nil, fmt.Errorf("grid: %w (world=%d)", ErrNonCubicWorld, s)
	}

	coord := func(r int) (x, y, z int) {
		z = r / (d * d)
		rem := r % (d * d)
		y = rem / d
		x = rem % d
		return
	}

	rowComms := splitBy(s,
		func(r int) int { _, y, z := coord(r); return y*zd + z },
		func(r int) int { x, _, _ := coord(r); return x },
	)
	columnComms := splitBy(s,
		func(r int) int { x, _, z := coord(r); return x*zd + z },
		func(r int) int { _, y, _ := coord(r); return y },
	)
	depthComms := splitBy(s,
		func(r int) int { x, y, _ := coord(r); return x*d + y },
		func(r int) int { _, _, z := coord(r); return z },
	)
	sliceComms := splitBy(s,
		func(r int) int { _, _, z := coord(r); return z },
		func(r int) int { x, y, _ := coord(r); return y*d + x },
	)
	cubeComms := splitBy(s,
		func(r int) int { return 0 },
		func(r int) int { return r },
	)

	var columnContigComms, columnAltComms, miniCubeComms []*Comm
	if layout == Tunable {
		columnContigComms = splitBy(s,
			func(r int) int { x, y, z := coord(r); return (x*zd+z)*(d/c) + y/c },
			func(r int) int { _, y, _ := coord(r); return y % c },
		)
		columnAltComms = splitBy(s,
			func(r int) int { x, y, z := coord(r); return (x*zd+z)*c + y%c },
			func(r int) int { _, y, _ := coord(r); return y / c },
		)
		// The mini-cube groups processes whose x and y both fall in the
		// same size-c block, replicated over the full depth extent zd.
		// This is a literal cube of side c only when zd == c (i.e.
		// d == c*c); for other tunable choices it is a c×c×zd box used
		// the same way SUMMA would use a cubic sub-grid, since nothing in
		// this module's collectives depends on the group being
		// geometrically cubic — only on its membership. See DESIGN.md.
		miniCubeComms = splitBy(s,
			func(r int) int { x, y, _ := coord(r); return (x/c)*(d/c) + y/c },
			func(r int) int { x, y, z := coord(r); return (x%c)*c*zd + (y%c)*zd + z },
		)
	}

	topos := make([]*Topology, s)
	for r := 0; r < s; r++ {
		x, y, z := coord(r)
		t := &Topology{
			X: x, Y: y, Z: z,
			D: d, C: c, Layout: layout,
			Row: rowComms[r], Column: columnComms[r], Depth: depthComms[r],
			Slice: sliceComms[r], Cube: cubeComms[r],
			NumChunks: numChunks,
		}
		if layout == Tunable {
			t.ColumnContig = columnContigComms[r]
			t.ColumnAlt = columnAltComms[r]
			t.MiniCube = miniCubeComms[r]
		}
		topos[r] = t
	}
	return topos, nil
}

// TransposePartnerRank returns the world rank of (y, x, z) — the transpose
// partner of the caller's own (x, y, z) — for use with Topology.Cube's
// SendRecv. On the diagonal (x == y) this is the caller's own rank, which
// Comm.SendRecv recognizes as a no-op.
func (t *Topology) TransposePartnerRank() int {
	return t.Z*t.D*t.D + t.X*t.D + t.Y
}
