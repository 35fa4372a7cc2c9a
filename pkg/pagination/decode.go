package pagination

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/nordkart/geoharvest/pkg/feature"
)

// queryResponse is the wire envelope of a feature query. Only the members
// the pipeline consumes are declared; features themselves decode through
// orb's GeoJSON types.
type queryResponse struct {
	Type string     `json:"type"`
	CRS  *crsMember `json:"crs"`

	Features []*geojson.Feature `json:"features"`

	// Transfer-limit truncation appears top-level in some server
	// generations and under properties in others.
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
	Properties            struct {
		ExceededTransferLimit bool `json:"exceededTransferLimit"`
	} `json:"properties"`

	// Servers report query errors inside a 200 body.
	Error *serverError `json:"error"`
}

type crsMember struct {
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// idListResponse is the ids-only query envelope.
type idListResponse struct {
	ObjectIDFieldName string       `json:"objectIdFieldName"`
	ObjectIDs         []feature.ID `json:"objectIds"`
	Error             *serverError `json:"error"`
}

// decodedPage is one parsed feature page.
type decodedPage struct {
	Records []feature.Record

	// ExplicitCRS is the CRS the response itself declared, zero when the
	// payload carried no crs member. The validator decides the fallback.
	ExplicitCRS feature.CRS

	Exceeded bool
}

// decodePage parses a feature-query response body. idField names the
// property holding the record identifier for payloads whose features carry
// no top-level id.
func decodePage(body []byte, idField string) (*decodedPage, error) {
	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode feature page: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	page := &decodedPage{
		Records:  make([]feature.Record, 0, len(resp.Features)),
		Exceeded: resp.ExceededTransferLimit || resp.Properties.ExceededTransferLimit,
	}

	if resp.CRS != nil {
		if crs, err := feature.ParseCRS(resp.CRS.Properties.Name); err == nil {
			page.ExplicitCRS = crs
		}
	}

	for _, f := range resp.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		page.Records = append(page.Records, feature.Record{
			ID:         idOf(f, idField),
			Geometry:   f.Geometry,
			Attributes: map[string]any(f.Properties),
		})
	}

	return page, nil
}

// idOf extracts the record identifier from a decoded feature: the
// top-level id when present, else the identifier property.
func idOf(f *geojson.Feature, idField string) feature.ID {
	if id, ok := asID(f.ID); ok {
		return id
	}
	if idField != "" {
		if id, ok := asID(f.Properties[idField]); ok {
			return id
		}
	}
	return 0
}

func asID(v any) (feature.ID, bool) {
	switch n := v.(type) {
	case float64:
		return feature.ID(n), true
	case int64:
		return feature.ID(n), true
	case int:
		return feature.ID(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return feature.ID(i), true
		}
	}
	return 0, false
}
