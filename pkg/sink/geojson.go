package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/logging"
)

// GeoJSONSink accumulates records into a FeatureCollection and writes it
// to a file on Close.
type GeoJSONSink struct {
	path       string
	collection *geojson.FeatureCollection
	logger     zerolog.Logger
}

// NewGeoJSONSink creates a sink writing to path.
func NewGeoJSONSink(path string) *GeoJSONSink {
	return &GeoJSONSink{
		path:       path,
		collection: geojson.NewFeatureCollection(),
		logger:     logging.NewLogger("geojson-sink"),
	}
}

// Write appends one record. Records from SR-inconsistent batches carry a
// crs_mismatch marker property so downstream consumers can reproject.
func (s *GeoJSONSink) Write(ctx context.Context, rec feature.Record, report *feature.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := geojson.NewFeature(rec.Geometry)
	f.ID = int64(rec.ID)
	for k, v := range rec.Attributes {
		f.Properties[k] = v
	}
	if report != nil && !report.SRConsistency {
		f.Properties["crs_mismatch"] = report.CRSDetected.String()
	}

	s.collection.Append(f)
	return nil
}

// Finalize writes the run summary sidecar next to the collection.
func (s *GeoJSONSink) Finalize(result *feature.IngestionResult) error {
	return writeSummary(s.path, result)
}

// Close marshals the collection and writes the file.
func (s *GeoJSONSink) Close() error {
	data, err := s.collection.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal feature collection: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("features", len(s.collection.Features)).
		Msg("GeoJSON output written")
	return nil
}
