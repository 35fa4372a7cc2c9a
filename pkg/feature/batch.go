package feature

import (
	"time"
)

// Strategy names the pagination strategy that produced a batch.
type Strategy string

const (
	StrategyIDSweep      Strategy = "id_sweep"
	StrategyOffset       Strategy = "offset"
	StrategySequentialID Strategy = "sequential_id"
)

// Window describes what a batch covers: an inclusive identifier range for
// identifier-based strategies, or an offset window for offset pagination.
type Window struct {
	IDLow  ID
	IDHigh ID
	Offset int
	Limit  int
}

// Batch is the unit of fetch, retry, and failure isolation. One batch
// failing never aborts its siblings.
type Batch struct {
	Seq      int
	Strategy Strategy
	Window   Window

	// Records in server-returned order. Empty when Err is set.
	Records []Record

	// Fetch metadata.
	DeclaredCRS CRS
	HTTPStatus  int
	Elapsed     time.Duration
	Retries     int

	// Err is set when the batch exhausted its retries; ErrClass carries the
	// taxonomy class for the error tally.
	Err      error
	ErrClass string

	// Report is attached by the SR validator and forwarded with the batch.
	Report *ValidationReport
}

// Failed reports whether the batch is a terminal fetch failure.
func (b *Batch) Failed() bool { return b.Err != nil }
