// Package geometry reconciles mixed-geometry sources down to a single
// dominant type so that sinks with homogeneous schemas (Parquet, most GIS
// stores) receive one geometry kind per run.
package geometry

import (
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/logging"
)

var (
	discardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_geometry_discarded_total",
		Help: "Records discarded for not matching the dominant geometry type",
	}, []string{"type"})
)

// Type is the coarse geometry class used for dominance decisions. Line
// covers LineString and MultiLineString; Polygon covers Polygon and
// MultiPolygon. Point and MultiPoint stay distinct because sinks treat
// them differently.
type Type string

const (
	TypeUnknown    Type = ""
	TypePoint      Type = "Point"
	TypeMultiPoint Type = "MultiPoint"
	TypeLine       Type = "Line"
	TypePolygon    Type = "Polygon"
)

// Classify maps an orb geometry to its coarse type.
func Classify(g orb.Geometry) Type {
	switch g.(type) {
	case orb.Point:
		return TypePoint
	case orb.MultiPoint:
		return TypeMultiPoint
	case orb.LineString, orb.MultiLineString:
		return TypeLine
	case orb.Ring, orb.Polygon, orb.MultiPolygon:
		return TypePolygon
	default:
		return TypeUnknown
	}
}

// dominancePrecedence breaks ties between equally frequent types. Higher
// wins. Area beats length beats points: a source that is half parcels and
// half centroids is a parcel layer.
var dominancePrecedence = map[Type]int{
	TypePolygon:    4,
	TypeLine:       3,
	TypePoint:      2,
	TypeMultiPoint: 1,
}

// Reconciler tallies geometry types across a whole source run and filters
// records down to the dominant type once all batches have arrived.
type Reconciler struct {
	counts map[Type]int
	logger zerolog.Logger
}

// NewReconciler creates an empty reconciler for one source run.
func NewReconciler() *Reconciler {
	return &Reconciler{
		counts: make(map[Type]int),
		logger: logging.NewLogger("geometry-reconciler"),
	}
}

// Observe tallies the geometry types of one batch worth of records.
func (r *Reconciler) Observe(records []feature.Record) {
	for _, rec := range records {
		r.counts[Classify(rec.Geometry)]++
	}
}

// Counts returns the tally per coarse type, nil-geometry records included
// under TypeUnknown.
func (r *Reconciler) Counts() map[Type]int {
	out := make(map[Type]int, len(r.counts))
	for t, n := range r.counts {
		out[t] = n
	}
	return out
}

// Dominant returns the most frequent observed type. Ties resolve by
// precedence (Polygon over Line over Point over MultiPoint). TypeUnknown
// never dominates; it wins only when nothing else was observed.
func (r *Reconciler) Dominant() Type {
	best := TypeUnknown
	bestCount := 0
	for t, n := range r.counts {
		if t == TypeUnknown {
			continue
		}
		if n > bestCount || (n == bestCount && dominancePrecedence[t] > dominancePrecedence[best]) {
			best, bestCount = t, n
		}
	}
	return best
}

// Filter keeps only records of the dominant type and returns them along
// with a per-type breakdown of what was discarded. A run with a single
// observed type passes through untouched.
func (r *Reconciler) Filter(records []feature.Record) ([]feature.Record, map[string]int) {
	dominant := r.Dominant()
	if dominant == TypeUnknown {
		return records, nil
	}

	kept := records[:0]
	discarded := make(map[string]int)
	for _, rec := range records {
		t := Classify(rec.Geometry)
		if t == dominant {
			kept = append(kept, rec)
			continue
		}
		name := string(t)
		if name == "" {
			name = "Unknown"
		}
		discarded[name]++
		discardedTotal.WithLabelValues(name).Inc()
	}

	if len(discarded) > 0 {
		r.logger.Warn().
			Str("dominant", string(dominant)).
			Interface("discarded", discarded).
			Msg("Mixed geometry types in source, keeping dominant type only")
	}
	if len(discarded) == 0 {
		return kept, nil
	}
	return kept, discarded
}
