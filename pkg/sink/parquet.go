package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/geometry"
	"github.com/nordkart/geoharvest/pkg/logging"
)

// flushRows is how many buffered rows trigger a writer flush.
const flushRows = 1000

// parquetRow is the on-disk schema. Geometry travels as WKB so any
// GeoParquet-aware reader can pick it up; attributes as a JSON document
// since source schemas vary per layer.
type parquetRow struct {
	ID           int64  `parquet:"id"`
	Geometry     []byte `parquet:"geometry"`
	GeometryType string `parquet:"geometry_type"`
	CRS          int32  `parquet:"crs"`
	Attributes   string `parquet:"attributes"`
}

// ParquetSink writes records as snappy-compressed Parquet.
type ParquetSink struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[parquetRow]
	buf    []parquetRow
	rows   int
	logger zerolog.Logger
}

// NewParquetSink creates the output file and its writer.
func NewParquetSink(path string) (*ParquetSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &ParquetSink{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&parquet.Snappy)),
		logger: logging.NewLogger("parquet-sink"),
	}, nil
}

// Write buffers one record and flushes full row groups.
func (s *ParquetSink) Write(ctx context.Context, rec feature.Record, report *feature.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	geom, err := wkb.Marshal(rec.Geometry)
	if err != nil {
		return fmt.Errorf("encode geometry for id %d: %w", rec.ID, err)
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes for id %d: %w", rec.ID, err)
	}

	var crs int32
	if report != nil {
		crs = int32(report.CRSDetected)
	}
	s.buf = append(s.buf, parquetRow{
		ID:           int64(rec.ID),
		Geometry:     geom,
		GeometryType: string(geometry.Classify(rec.Geometry)),
		CRS:          crs,
		Attributes:   string(attrs),
	})
	if len(s.buf) >= flushRows {
		return s.flush()
	}
	return nil
}

func (s *ParquetSink) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	n, err := s.writer.Write(s.buf)
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	s.rows += n
	s.buf = s.buf[:0]
	return nil
}

// Finalize writes the run summary sidecar next to the parquet file.
func (s *ParquetSink) Finalize(result *feature.IngestionResult) error {
	return writeSummary(s.path, result)
}

// Close flushes remaining rows and finalizes the file footer.
func (s *ParquetSink) Close() error {
	if err := s.flush(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("rows", s.rows).
		Msg("Parquet output written")
	return nil
}
