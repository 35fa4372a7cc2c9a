package source

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// BaseParams builds the query parameters shared by every fetch against the
// descriptor: filter clause, field list, output format, and the optional
// spatial predicate. Strategy-specific parameters (offsets, identifier
// predicates, ids-only mode) are layered on top by the pagination engine.
func (d Descriptor) BaseParams() url.Values {
	p := url.Values{}
	p.Set("where", d.Where)
	p.Set("outFields", d.OutFields)
	p.Set("returnGeometry", "true")
	p.Set("f", "geojson")

	if !d.DeclaredCRS.IsZero() {
		p.Set("outSR", strconv.Itoa(int(d.DeclaredCRS)))
	}

	if d.BBox != nil {
		env, _ := json.Marshal(map[string]any{
			"xmin": d.BBox.XMin,
			"ymin": d.BBox.YMin,
			"xmax": d.BBox.XMax,
			"ymax": d.BBox.YMax,
			"spatialReference": map[string]any{
				"wkid": int(d.BBox.CRS),
			},
		})
		p.Set("geometry", string(env))
		p.Set("geometryType", "esriGeometryEnvelope")
		p.Set("inSR", strconv.Itoa(int(d.BBox.CRS)))
		p.Set("spatialRel", "esriSpatialRelIntersects")
	}

	return p
}

// CombineWhere ANDs a predicate onto the descriptor's filter clause.
// The trivial filter is dropped rather than wrapped.
func CombineWhere(base, predicate string) string {
	if base == "" || base == "1=1" {
		return predicate
	}
	return fmt.Sprintf("(%s) AND %s", base, predicate)
}

var unsafeLayerChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f-\x9f\s]+`)

// SanitizeLayerName makes a server-supplied layer name safe for use as a
// staging file or feature-class name.
func SanitizeLayerName(name string) string {
	if name == "" {
		return "unknown_layer"
	}

	s := unsafeLayerChars.ReplaceAllString(name, "_")
	for len(s) > 0 && (s[0] == '.' || s[0] == '_') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '.' || s[len(s)-1] == '_') {
		s = s[:len(s)-1]
	}

	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "unknown_layer"
	}
	return s
}
