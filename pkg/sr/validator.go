// Package sr guards the spatial-reference contract: no batch reaches the
// sink with an unverifiable or implausibly-labeled coordinate system.
package sr

import (
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/logging"
)

// Prometheus metrics for validation outcomes.
var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_sr_validations_total",
		Help: "SR validation outcomes per batch",
	}, []string{"outcome"}) // "pass", "mismatch", "magnitude_invalid", "crs_undetermined"
)

// sampleSize is how many records per batch get their coordinates checked.
// Wrong-CRS batches are wrong wholesale, so a small sample suffices.
const sampleSize = 20

// Validator checks declared/returned CRS agreement and coordinate
// magnitude plausibility.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{logger: logging.NewLogger("sr-validator")}
}

// Validate inspects one batch and attaches its ValidationReport.
// declaredDefault is the source's configured CRS, used when the response
// itself declared none; expected is what downstream requires.
//
// Outcomes:
//   - neither an explicit nor a default CRS: rejected, crs_undetermined
//   - implausible coordinate magnitudes: rejected, magnitude_invalid
//   - detected != expected but magnitudes plausible: forwarded, flagged
func (v *Validator) Validate(b *feature.Batch, declaredDefault, expected feature.CRS) *feature.ValidationReport {
	detected := b.DeclaredCRS
	if detected.IsZero() {
		detected = declaredDefault
	}
	if expected.IsZero() {
		expected = declaredDefault
	}

	report := &feature.ValidationReport{
		CRSDetected:    detected,
		CRSExpected:    expected,
		SRConsistency:  true,
		MagnitudeCheck: true,
	}
	b.Report = report

	if detected.IsZero() {
		report.SRConsistency = false
		report.MagnitudeCheck = false
		report.Reject(feature.ReasonCRSUndetermined, len(b.Records))
		validationsTotal.WithLabelValues(feature.ReasonCRSUndetermined).Inc()

		v.logger.Warn().
			Int("batch", b.Seq).
			Int("records", len(b.Records)).
			Msg("No spatial reference could be established, rejecting batch")
		return report
	}

	if !v.plausibleMagnitudes(b.Records, detected) {
		report.MagnitudeCheck = false
		report.Reject(feature.ReasonMagnitudeInvalid, len(b.Records))
		validationsTotal.WithLabelValues(feature.ReasonMagnitudeInvalid).Inc()

		v.logger.Error().
			Int("batch", b.Seq).
			Stringer("crs_detected", detected).
			Int("records", len(b.Records)).
			Msg("Coordinate magnitudes implausible for detected CRS, rejecting batch")
		return report
	}

	if detected != expected {
		// Records still flow; the sink decides between reproject and
		// reject based on the report.
		report.SRConsistency = false
		validationsTotal.WithLabelValues("mismatch").Inc()

		v.logger.Warn().
			Int("batch", b.Seq).
			Stringer("crs_detected", detected).
			Stringer("crs_expected", expected).
			Msg("Spatial reference mismatch, forwarding flagged batch")
	} else {
		validationsTotal.WithLabelValues("pass").Inc()
	}

	report.AcceptedCount = len(b.Records)
	return report
}

// plausibleMagnitudes samples record coordinates against the expected
// ranges of the CRS family. Unknown families validate permissively.
func (v *Validator) plausibleMagnitudes(records []feature.Record, crs feature.CRS) bool {
	n := min(len(records), sampleSize)

	for i := 0; i < n; i++ {
		pt, ok := firstPosition(records[i].Geometry)
		if !ok {
			continue
		}
		if !plausible(pt, crs.Family()) {
			v.logger.Debug().
				Float64("x", pt[0]).
				Float64("y", pt[1]).
				Stringer("crs", crs).
				Msg("Implausible coordinate sample")
			return false
		}
	}
	return true
}

func plausible(pt orb.Point, fam feature.Family) bool {
	x, y := pt[0], pt[1]

	switch fam {
	case feature.FamilyGeographic:
		return x >= -180 && x <= 180 && y >= -90 && y <= 90
	case feature.FamilyProjected:
		// Degree-like values under a projected CRS are the classic
		// wrong-CRS signature.
		if x >= -180 && x <= 180 && y >= -90 && y <= 90 {
			return false
		}
		return abs(x) < 5e7 && abs(y) < 5e7
	default:
		return true
	}
}

// firstPosition flattens a geometry to its first coordinate position.
func firstPosition(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return geom, true
	case orb.MultiPoint:
		if len(geom) > 0 {
			return geom[0], true
		}
	case orb.LineString:
		if len(geom) > 0 {
			return geom[0], true
		}
	case orb.MultiLineString:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0][0], true
		}
	case orb.Ring:
		if len(geom) > 0 {
			return geom[0], true
		}
	case orb.Polygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0][0], true
		}
	case orb.MultiPolygon:
		if len(geom) > 0 {
			return firstPosition(geom[0])
		}
	case orb.Collection:
		for _, member := range geom {
			if pt, ok := firstPosition(member); ok {
				return pt, true
			}
		}
	}
	return orb.Point{}, false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
