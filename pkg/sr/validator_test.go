package sr

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/nordkart/geoharvest/pkg/feature"
)

func pointBatch(crs feature.CRS, pts ...orb.Point) *feature.Batch {
	records := make([]feature.Record, len(pts))
	for i, p := range pts {
		records[i] = feature.Record{ID: feature.ID(i + 1), Geometry: p}
	}
	return &feature.Batch{Records: records, DeclaredCRS: crs}
}

func TestValidatePass(t *testing.T) {
	v := NewValidator()
	b := pointBatch(feature.WGS84, orb.Point{18.07, 59.33})

	report := v.Validate(b, feature.WGS84, feature.WGS84)

	if !report.SRConsistency || !report.MagnitudeCheck {
		t.Errorf("report = %+v, want pass", report)
	}
	if report.AcceptedCount != 1 || report.RejectedCount != 0 {
		t.Errorf("accepted = %d rejected = %d, want 1/0", report.AcceptedCount, report.RejectedCount)
	}
	if b.Report != report {
		t.Error("report should be attached to the batch")
	}
}

func TestValidateCRSUndetermined(t *testing.T) {
	v := NewValidator()
	b := pointBatch(feature.CRSUndetermined, orb.Point{18.07, 59.33})

	// No response CRS and no source default either.
	report := v.Validate(b, feature.CRSUndetermined, feature.CRSUndetermined)

	if report.RejectedCount != 1 {
		t.Errorf("RejectedCount = %d, want 1", report.RejectedCount)
	}
	if len(report.RejectionReasons) != 1 || report.RejectionReasons[0] != feature.ReasonCRSUndetermined {
		t.Errorf("RejectionReasons = %v, want [%s]", report.RejectionReasons, feature.ReasonCRSUndetermined)
	}
	if report.AcceptedCount != 0 {
		t.Errorf("AcceptedCount = %d, want 0", report.AcceptedCount)
	}
}

func TestValidateFallsBackToSourceDefault(t *testing.T) {
	v := NewValidator()
	b := pointBatch(feature.CRSUndetermined, orb.Point{674000, 6580000})

	report := v.Validate(b, feature.SWEREF99TM, feature.SWEREF99TM)

	if report.CRSDetected != feature.SWEREF99TM {
		t.Errorf("CRSDetected = %v, want source default", report.CRSDetected)
	}
	if report.RejectedCount != 0 {
		t.Errorf("RejectedCount = %d, want 0", report.RejectedCount)
	}
}

func TestValidateMagnitude(t *testing.T) {
	tests := []struct {
		name     string
		crs      feature.CRS
		point    orb.Point
		rejected bool
	}{
		{
			name:  "degrees under geographic",
			crs:   feature.WGS84,
			point: orb.Point{18.07, 59.33},
		},
		{
			name:     "meters under geographic",
			crs:      feature.WGS84,
			point:    orb.Point{674000, 6580000},
			rejected: true,
		},
		{
			name:  "meters under projected",
			crs:   feature.SWEREF99TM,
			point: orb.Point{674000, 6580000},
		},
		{
			name:     "degrees under projected",
			crs:      feature.SWEREF99TM,
			point:    orb.Point{18.07, 59.33},
			rejected: true,
		},
		{
			name:     "latitude out of range",
			crs:      feature.WGS84,
			point:    orb.Point{18.07, 95.0},
			rejected: true,
		},
		{
			name:     "absurd projected coordinate",
			crs:      feature.SWEREF99TM,
			point:    orb.Point{9e9, 6580000},
			rejected: true,
		},
		{
			name:  "unknown family is permissive",
			crs:   feature.CRS(99999),
			point: orb.Point{674000, 6580000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			b := pointBatch(tt.crs, tt.point)

			report := v.Validate(b, tt.crs, tt.crs)

			if tt.rejected {
				if report.MagnitudeCheck {
					t.Error("MagnitudeCheck = true, want rejection")
				}
				if report.RejectedCount != 1 {
					t.Errorf("RejectedCount = %d, want 1", report.RejectedCount)
				}
				if len(report.RejectionReasons) == 0 || report.RejectionReasons[0] != feature.ReasonMagnitudeInvalid {
					t.Errorf("RejectionReasons = %v, want magnitude_invalid", report.RejectionReasons)
				}
			} else {
				if !report.MagnitudeCheck {
					t.Error("MagnitudeCheck = false, want pass")
				}
				if report.AcceptedCount != 1 {
					t.Errorf("AcceptedCount = %d, want 1", report.AcceptedCount)
				}
			}
		})
	}
}

func TestValidateMismatchForwardsFlagged(t *testing.T) {
	v := NewValidator()
	b := pointBatch(feature.WGS84, orb.Point{18.07, 59.33})

	report := v.Validate(b, feature.WGS84, feature.SWEREF99TM)

	if report.SRConsistency {
		t.Error("SRConsistency = true, want mismatch flag")
	}
	if report.AcceptedCount != 1 || report.RejectedCount != 0 {
		t.Errorf("accepted = %d rejected = %d, mismatched batches must still forward",
			report.AcceptedCount, report.RejectedCount)
	}
}

func TestValidateSamplesNestedGeometries(t *testing.T) {
	v := NewValidator()
	poly := orb.Polygon{{{674000, 6580000}, {674100, 6580000}, {674100, 6580100}, {674000, 6580000}}}
	b := &feature.Batch{
		Records:     []feature.Record{{ID: 1, Geometry: poly}},
		DeclaredCRS: feature.WGS84,
	}

	report := v.Validate(b, feature.WGS84, feature.WGS84)

	if report.MagnitudeCheck {
		t.Error("polygon with metric coordinates under WGS84 should fail the magnitude check")
	}
}

func TestFirstPosition(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want orb.Point
		ok   bool
	}{
		{name: "point", geom: orb.Point{1, 2}, want: orb.Point{1, 2}, ok: true},
		{name: "multipoint", geom: orb.MultiPoint{{3, 4}, {5, 6}}, want: orb.Point{3, 4}, ok: true},
		{name: "linestring", geom: orb.LineString{{7, 8}, {9, 10}}, want: orb.Point{7, 8}, ok: true},
		{name: "polygon", geom: orb.Polygon{{{1, 1}, {2, 2}, {3, 3}, {1, 1}}}, want: orb.Point{1, 1}, ok: true},
		{name: "empty multipoint", geom: orb.MultiPoint{}, ok: false},
		{name: "collection", geom: orb.Collection{orb.MultiPoint{}, orb.Point{5, 5}}, want: orb.Point{5, 5}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstPosition(tt.geom)
			if ok != tt.ok {
				t.Fatalf("firstPosition() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("firstPosition() = %v, want %v", got, tt.want)
			}
		})
	}
}
