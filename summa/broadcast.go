package summa

import "github.com/gridfactor/cholinv3d/grid"

// broadcastPanel broadcasts root's local panel (dimensions included) over
// comm and returns the shape and data every member — including root —
// ends up holding. Triangular operands are broadcast at full (dense,
// zero-enforced) size rather than a packed size: dmat.Matrix always
// stores its local panel densely with the complementary triangle already
// zeroed by ToUpperTriangular/ToLowerTriangular, so the zero entries
// simply contribute nothing to the local BLAS call that follows — the
// packed-payload-size optimization spec.md §4.3 describes is a wire-size
// detail that does not change the result, only the broadcast volume.
func broadcastPanel(comm *grid.Comm, root int, isRoot bool, m panelSource) (rows, cols int, data []float64) {
	var payload []float64
	if isRoot {
		d := m.Data()
		rows, cols = m.LocalRows(), m.LocalCols()
		payload = make([]float64, 2+len(d))
		payload[0] = float64(rows)
		payload[1] = float64(cols)
		copy(payload[2:], d)
	}
	recv := comm.Broadcast(root, payload)
	rows = int(recv[0])
	cols = int(recv[1])
	data = recv[2:]
	return rows, cols, data
}

// panelSource is the subset of *dmat.Matrix broadcastPanel needs; kept
// narrow so tests can substitute a fake panel without building a full
// dmat.Matrix.
type panelSource interface {
	Data() []float64
	LocalRows() int
	LocalCols() int
}
