package grid

import "errors"

// ErrNonCubicWorld is returned by Square when the world size cannot be
// arranged into the requested cubic or tunable layout.
var ErrNonCubicWorld = errors.New("grid: world size does not form the requested layout")

// ErrReplicationFactor is returned by Square when the tunable layout's
// replication factor does not divide the grid side.
var ErrReplicationFactor = errors.New("grid: replication factor must divide the grid side")
