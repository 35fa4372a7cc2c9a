// Package source describes remote feature collections and builds the
// query parameters their servers understand.
package source

import (
	"fmt"
	"strings"

	"github.com/nordkart/geoharvest/pkg/feature"
)

// Defaults and limits for fetch tuning.
const (
	DefaultChunkSize = 1000
	DefaultPageSize  = 1000
	DefaultWorkers   = 6

	// MaxWorkers is a hard ceiling protecting shared remote services;
	// configuration cannot raise it.
	MaxWorkers = 8
)

// BBox is an axis-aligned spatial filter with its own CRS.
type BBox struct {
	XMin, YMin, XMax, YMax float64
	CRS                    feature.CRS
}

// Descriptor is the immutable description of one remote collection.
// It is constructed once per run from external configuration and never
// mutated afterwards.
type Descriptor struct {
	Name      string
	Authority string

	// URL is the layer endpoint (".../FeatureServer/0" style). A
	// service-level URL is allowed when the descriptor is expanded into
	// per-layer descriptors first (see ExpandServices).
	URL string

	// Layers holds optional glob patterns selecting layer names during
	// service expansion. Ignored for layer-level URLs.
	Layers []string

	// DeclaredCRS is what the server is configured to return;
	// ExpectedCRS is what downstream expects. Usually identical.
	DeclaredCRS feature.CRS
	ExpectedCRS feature.CRS

	// Where and OutFields narrow the query. Empty means everything.
	Where     string
	OutFields string

	// BBox optionally restricts the fetch spatially. The server is
	// trusted for the filtering itself.
	BBox *BBox

	// UseIDSweep opts in to parallel identifier-sweep pagination.
	UseIDSweep bool

	ChunkSize int
	PageSize  int
	Workers   int
}

// WithDefaults returns a copy with zero-valued tuning fields filled in and
// the worker ceiling enforced.
func (d Descriptor) WithDefaults() Descriptor {
	if d.ChunkSize <= 0 {
		d.ChunkSize = DefaultChunkSize
	}
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.Workers <= 0 {
		d.Workers = DefaultWorkers
	}
	if d.Workers > MaxWorkers {
		d.Workers = MaxWorkers
	}
	if d.Where == "" {
		d.Where = "1=1"
	}
	if d.OutFields == "" {
		d.OutFields = "*"
	}
	d.URL = strings.TrimRight(d.URL, "/")
	return d
}

// Validate reports configuration errors that would make the descriptor
// unusable.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if d.URL == "" {
		return fmt.Errorf("source %s: url is required", d.Name)
	}
	if d.ExpectedCRS.IsZero() && d.DeclaredCRS.IsZero() {
		return fmt.Errorf("source %s: a declared or expected crs is required", d.Name)
	}
	return nil
}

// QueryURL returns the feature-query endpoint for the layer.
func (d Descriptor) QueryURL() string {
	return d.URL + "/query"
}
