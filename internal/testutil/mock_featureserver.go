// Package testutil provides testing utilities for the ingestion pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
)

// MockFeature is one record served by the mock.
type MockFeature struct {
	ID int64

	// GeometryType is a GeoJSON type name ("Point", "Polygon", ...).
	// Coordinates must match it structurally.
	GeometryType string
	Coordinates  any

	Properties map[string]any
}

// PointFeature builds a point record, the common case in tests.
func PointFeature(id int64, x, y float64) MockFeature {
	return MockFeature{
		ID:           id,
		GeometryType: "Point",
		Coordinates:  []float64{x, y},
	}
}

// MockFeatureServer emulates an ArcGIS-style feature layer endpoint:
// layer metadata at the layer path, feature and ids-only queries at
// <layer>/query with where-range and offset pagination.
type MockFeatureServer struct {
	server *httptest.Server
	mu     sync.RWMutex

	features []MockFeature

	// Layer metadata knobs.
	IDField            string
	MaxRecordCount     int
	SupportsPagination bool
	SupportsQuery      bool
	LayerWKID          int

	// CRSName, when set, adds an explicit crs member to query responses
	// (e.g. "EPSG:3006").
	CRSName string

	// TransferLimitAt truncates offset-mode feature responses to this many
	// records and sets exceededTransferLimit. Identifier-range queries are
	// not truncated, mirroring a client that sizes its ranges under the
	// server limit. Zero disables truncation.
	TransferLimitAt int

	// TransferLimitFromOffset delays truncation until the request offset
	// reaches this value, emulating servers that serve full pages before
	// response size catches up with them mid walk.
	TransferLimitFromOffset int

	// FailuresRemaining makes the next N feature queries fail with
	// FailStatus (and Retry-After: RetryAfterSeconds when set).
	// Ids-only queries are exempt so identifier discovery stays testable
	// independently of fetch failures.
	FailuresRemaining int
	FailStatus        int
	RetryAfterSeconds int

	// RejectIDQueries answers ids-only requests with 400, forcing the
	// offset fallback.
	RejectIDQueries bool

	// Tracking.
	RequestCount int
	QueryCount   int
	IDQueryCount int
}

// NewMockFeatureServer creates a server preloaded with the given features.
func NewMockFeatureServer(features []MockFeature) *MockFeatureServer {
	mock := &MockFeatureServer{
		features:           features,
		IDField:            "OBJECTID",
		MaxRecordCount:     1000,
		SupportsPagination: true,
		SupportsQuery:      true,
		LayerWKID:          3006,
		FailStatus:         http.StatusServiceUnavailable,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/FeatureServer/0/query", mock.handleQuery)
	mux.HandleFunc("/FeatureServer/0", mock.handleLayerInfo)
	mux.HandleFunc("/FeatureServer", mock.handleServiceInfo)
	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockFeatureServer) URL() string {
	return m.server.URL
}

// LayerURL returns the layer endpoint URL.
func (m *MockFeatureServer) LayerURL() string {
	return m.server.URL + "/FeatureServer/0"
}

// Close shuts down the mock server.
func (m *MockFeatureServer) Close() {
	m.server.Close()
}

// SetFeatures replaces the served records.
func (m *MockFeatureServer) SetFeatures(features []MockFeature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = features
}

func (m *MockFeatureServer) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"layers": []map[string]any{
			{"id": 0, "name": "mock_layer", "type": "Feature Layer"},
		},
	})
}

func (m *MockFeatureServer) handleLayerInfo(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	capabilities := "Query"
	if !m.SupportsQuery {
		capabilities = "Sync"
	}
	writeJSON(w, map[string]any{
		"id":                      0,
		"name":                    "mock_layer",
		"supportsQuery":           m.SupportsQuery,
		"capabilities":            capabilities,
		"supportsAdvancedQueries": true,
		"objectIdField":           m.IDField,
		"maxRecordCount":          m.MaxRecordCount,
		"advancedQueryCapabilities": map[string]any{
			"supportsPagination": m.SupportsPagination,
		},
		"extent": map[string]any{
			"spatialReference": map[string]any{"wkid": m.LayerWKID},
		},
	})
}

var rangePattern = regexp.MustCompile(`(\w+) >= (\d+) AND \w+ <= (\d+)`)

func (m *MockFeatureServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	idsOnly := q.Get("returnIdsOnly") == "true"

	m.mu.Lock()
	m.QueryCount++
	if idsOnly {
		m.IDQueryCount++
	}
	if !idsOnly && m.FailuresRemaining > 0 {
		m.FailuresRemaining--
		status := m.FailStatus
		retryAfter := m.RetryAfterSeconds
		m.mu.Unlock()
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if idsOnly {
		if m.RejectIDQueries {
			http.Error(w, "returnIdsOnly not supported", http.StatusBadRequest)
			return
		}
		ids := make([]int64, 0, len(m.features))
		for _, f := range m.features {
			ids = append(ids, f.ID)
		}
		writeJSON(w, map[string]any{
			"objectIdFieldName": m.IDField,
			"objectIds":         ids,
		})
		return
	}

	selected, ranged := m.selectFeatures(q.Get("where"))

	// Offset pagination applies after the where filter.
	requestOffset := 0
	if off := q.Get("resultOffset"); off != "" {
		requestOffset, _ = strconv.Atoi(off)
		offset := requestOffset
		if offset > len(selected) {
			offset = len(selected)
		}
		selected = selected[offset:]
	}
	if rc := q.Get("resultRecordCount"); rc != "" {
		count, _ := strconv.Atoi(rc)
		if count < len(selected) {
			selected = selected[:count]
		}
	}

	exceeded := false
	if !ranged && m.TransferLimitAt > 0 && requestOffset >= m.TransferLimitFromOffset &&
		len(selected) > m.TransferLimitAt {
		selected = selected[:m.TransferLimitAt]
		exceeded = true
	}

	out := make([]map[string]any, 0, len(selected))
	for _, f := range selected {
		props := map[string]any{m.IDField: f.ID}
		for k, v := range f.Properties {
			props[k] = v
		}
		out = append(out, map[string]any{
			"type": "Feature",
			"id":   f.ID,
			"geometry": map[string]any{
				"type":        f.GeometryType,
				"coordinates": f.Coordinates,
			},
			"properties": props,
		})
	}

	resp := map[string]any{
		"type":     "FeatureCollection",
		"features": out,
	}
	if exceeded {
		resp["exceededTransferLimit"] = true
	}
	if m.CRSName != "" {
		resp["crs"] = map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": m.CRSName},
		}
	}
	writeJSON(w, resp)
}

// selectFeatures applies an identifier-range predicate when the where
// clause carries one; any other clause selects everything.
func (m *MockFeatureServer) selectFeatures(where string) ([]MockFeature, bool) {
	match := rangePattern.FindStringSubmatch(where)
	if match == nil {
		return m.features, false
	}
	lo, _ := strconv.ParseInt(match[2], 10, 64)
	hi, _ := strconv.ParseInt(match[3], 10, 64)

	selected := make([]MockFeature, 0, len(m.features))
	for _, f := range m.features {
		if f.ID >= lo && f.ID <= hi {
			selected = append(selected, f)
		}
	}
	return selected, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
	}
}
