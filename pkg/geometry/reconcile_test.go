package geometry

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/nordkart/geoharvest/pkg/feature"
)

func points(n int) []feature.Record {
	recs := make([]feature.Record, n)
	for i := range recs {
		recs[i] = feature.Record{ID: feature.ID(i + 1), Geometry: orb.Point{float64(i), float64(i)}}
	}
	return recs
}

func polygons(n int) []feature.Record {
	recs := make([]feature.Record, n)
	for i := range recs {
		recs[i] = feature.Record{
			ID:       feature.ID(1000 + i),
			Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		}
	}
	return recs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want Type
	}{
		{name: "point", geom: orb.Point{}, want: TypePoint},
		{name: "multipoint", geom: orb.MultiPoint{}, want: TypeMultiPoint},
		{name: "linestring", geom: orb.LineString{}, want: TypeLine},
		{name: "multilinestring", geom: orb.MultiLineString{}, want: TypeLine},
		{name: "polygon", geom: orb.Polygon{}, want: TypePolygon},
		{name: "multipolygon", geom: orb.MultiPolygon{}, want: TypePolygon},
		{name: "nil", geom: nil, want: TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.geom); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDominantByCount(t *testing.T) {
	r := NewReconciler()
	r.Observe(points(7))
	r.Observe(polygons(3))

	if got := r.Dominant(); got != TypePoint {
		t.Errorf("Dominant() = %q, want Point with 7 of 10 records", got)
	}
}

func TestDominantTieBreaksByPrecedence(t *testing.T) {
	r := NewReconciler()
	r.Observe(points(5))
	r.Observe(polygons(5))

	if got := r.Dominant(); got != TypePolygon {
		t.Errorf("Dominant() = %q, want Polygon on a tie", got)
	}
}

func TestDominantEmpty(t *testing.T) {
	r := NewReconciler()
	if got := r.Dominant(); got != TypeUnknown {
		t.Errorf("Dominant() = %q, want unknown for empty reconciler", got)
	}
}

func TestFilterKeepsDominantOnly(t *testing.T) {
	r := NewReconciler()
	mixed := append(points(7), polygons(3)...)
	r.Observe(mixed)

	kept, discarded := r.Filter(mixed)

	if len(kept) != 7 {
		t.Errorf("kept %d records, want 7", len(kept))
	}
	for _, rec := range kept {
		if Classify(rec.Geometry) != TypePoint {
			t.Errorf("record %d survived with type %q", rec.ID, Classify(rec.Geometry))
		}
	}
	if discarded["Polygon"] != 3 {
		t.Errorf("discarded = %v, want 3 polygons", discarded)
	}
}

func TestFilterHomogeneousPassesThrough(t *testing.T) {
	r := NewReconciler()
	recs := points(4)
	r.Observe(recs)

	kept, discarded := r.Filter(recs)

	if len(kept) != 4 {
		t.Errorf("kept %d records, want 4", len(kept))
	}
	if discarded != nil {
		t.Errorf("discarded = %v, want nil for a homogeneous source", discarded)
	}
}

func TestCounts(t *testing.T) {
	r := NewReconciler()
	r.Observe(points(2))
	r.Observe(polygons(1))

	counts := r.Counts()
	if counts[TypePoint] != 2 || counts[TypePolygon] != 1 {
		t.Errorf("Counts() = %v, want 2 points and 1 polygon", counts)
	}
}
