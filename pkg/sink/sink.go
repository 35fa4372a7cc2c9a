// Package sink delivers validated records to their destination format.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nordkart/geoharvest/pkg/feature"
)

// Sink receives validated records one at a time together with the report
// of the batch they arrived in. Implementations buffer as they see fit.
// Finalize records the run summary once every record has been written;
// Close flushes and finalizes the output.
type Sink interface {
	Write(ctx context.Context, rec feature.Record, report *feature.ValidationReport) error
	Finalize(result *feature.IngestionResult) error
	Close() error
}

// SummaryPath returns the sidecar path for a data file: the extension is
// replaced with ".summary.json".
func SummaryPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ".summary.json"
}

// writeSummary writes the run summary sidecar next to the data file.
func writeSummary(dataPath string, result *feature.IngestionResult) error {
	if result == nil {
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	path := SummaryPath(dataPath)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
