package feature

import (
	"time"
)

// IngestionResult is the terminal summary for one source. Counters are
// owned exclusively by the coordinator and appended as batches complete.
type IngestionResult struct {
	RunID  string
	Source string

	Strategy      Strategy
	DiscoveredIDs int

	BatchesTotal     int
	BatchesSucceeded int
	BatchesFailed    int

	RecordsAccepted int
	RecordsRejected int

	// DominantGeometry is the geometry type the reconciler settled on,
	// empty when the source yielded no records.
	DominantGeometry string

	// FailedWindows lists the windows whose records were not fetched in
	// this run. The gap is reported, never silently refetched elsewhere.
	FailedWindows []Window

	// ErrorTally counts terminal failures by taxonomy class.
	ErrorTally map[string]int

	Elapsed time.Duration
}

// Tally increments the error tally for class.
func (r *IngestionResult) Tally(class string) {
	if r.ErrorTally == nil {
		r.ErrorTally = make(map[string]int)
	}
	r.ErrorTally[class]++
}
