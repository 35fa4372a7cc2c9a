package feature

// Rejection reasons surfaced through ValidationReport. Data-quality
// outcomes are never silently dropped; every rejected record is accounted
// for under one of these.
const (
	ReasonCRSUndetermined     = "crs_undetermined"
	ReasonMagnitudeInvalid    = "magnitude_invalid"
	ReasonNonDominantGeometry = "non_dominant_geometry"
)

// ValidationReport is the per-batch outcome of SR validation and geometry
// reconciliation. It travels with the batch to the sink and into the
// coordinator's metrics.
type ValidationReport struct {
	CRSDetected CRS
	CRSExpected CRS

	// SRConsistency is false when detected and expected CRS disagree.
	// Records are still forwarded in that case; the sink decides.
	SRConsistency bool

	// MagnitudeCheck is false when sampled coordinates are implausible for
	// the detected CRS. Such batches are rejected outright.
	MagnitudeCheck bool

	AcceptedCount    int
	RejectedCount    int
	RejectionReasons []string

	// RejectionCounts breaks the rejected total down per reason.
	RejectionCounts map[string]int

	// DiscardedTypes breaks down records removed by the geometry
	// reconciler, keyed by geometry type name.
	DiscardedTypes map[string]int
}

// Reject marks count records as rejected for the given reason.
func (r *ValidationReport) Reject(reason string, count int) {
	r.RejectedCount += count
	if r.RejectionCounts == nil {
		r.RejectionCounts = make(map[string]int)
	}
	r.RejectionCounts[reason] += count
	for _, have := range r.RejectionReasons {
		if have == reason {
			return
		}
	}
	r.RejectionReasons = append(r.RejectionReasons, reason)
}
