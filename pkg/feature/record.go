package feature

import (
	"github.com/paulmach/orb"
)

// ID is a remote record identifier. Identifiers are unique within one source
// and stable for the duration of a run; nothing is assumed across runs.
type ID int64

// Record is one feature as accepted by the pipeline: exactly one geometry
// plus a flat attribute mapping.
type Record struct {
	ID         ID
	Geometry   orb.Geometry
	Attributes map[string]any
}
