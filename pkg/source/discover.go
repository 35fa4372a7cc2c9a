package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/logging"
)

// Layer is one queryable layer discovered on a feature service.
type Layer struct {
	ID   int
	Name string
}

// serviceInfo is the subset of the service metadata document discovery
// cares about.
type serviceInfo struct {
	Layers []struct {
		ID   *int   `json:"id"`
		Name string `json:"name"`
	} `json:"layers"`

	// Single-layer services describe themselves directly.
	Type string `json:"type"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DiscoverLayers lists the queryable layers of a service. include holds
// optional case-insensitive glob patterns matched against layer names;
// empty means all layers. Single-layer services that expose no layer list
// are handled by treating the service document itself as the layer.
func DiscoverLayers(ctx context.Context, c *client.Client, serviceURL string, include []string) ([]Layer, error) {
	log := logging.NewLogger("discovery")

	resp, err := c.Get(ctx, strings.TrimRight(serviceURL, "/"), url.Values{"f": []string{"json"}})
	if err != nil {
		return nil, fmt.Errorf("service metadata: %w", err)
	}

	var info serviceInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("decode service metadata: %w", err)
	}

	patterns := make([]string, 0, len(include))
	for _, p := range include {
		patterns = append(patterns, strings.ToLower(p))
	}

	var layers []Layer
	for _, l := range info.Layers {
		if l.ID == nil {
			continue
		}
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("layer_%d", *l.ID)
		}
		if len(patterns) > 0 && !matchesAny(strings.ToLower(name), patterns) {
			continue
		}
		layers = append(layers, Layer{ID: *l.ID, Name: name})
	}

	// Single-layer services answer with the layer document directly.
	if len(layers) == 0 && info.Type == "Feature Layer" {
		name := info.Name
		if name == "" {
			name = fmt.Sprintf("layer_%d", info.ID)
		}
		layers = append(layers, Layer{ID: info.ID, Name: name})
	}

	log.Info().
		Str("service", serviceURL).
		Int("layers", len(layers)).
		Msg("Discovered layers")

	return layers, nil
}

// IsServiceURL reports whether the URL points at a whole service rather
// than a single layer. Layer endpoints end in a numeric layer id.
func IsServiceURL(rawURL string) bool {
	trimmed := strings.TrimRight(rawURL, "/")
	last := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if last == "" {
		return false
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

// ExpandServices replaces service-level descriptors with one descriptor
// per discovered layer, keyed "<source>_<layer>". Layer-level descriptors
// pass through unchanged. The Layers patterns of a service descriptor
// select which layers are kept.
func ExpandServices(ctx context.Context, c *client.Client, descs []Descriptor) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(descs))

	for _, d := range descs {
		if !IsServiceURL(d.URL) {
			out = append(out, d)
			continue
		}

		layers, err := DiscoverLayers(ctx, c, d.URL, d.Layers)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", d.Name, err)
		}
		if len(layers) == 0 {
			return nil, fmt.Errorf("source %s: no matching layers on %s", d.Name, d.URL)
		}

		base := strings.TrimRight(d.URL, "/")
		for _, l := range layers {
			layerDesc := d
			layerDesc.Name = fmt.Sprintf("%s_%s", d.Name, SanitizeLayerName(l.Name))
			layerDesc.URL = fmt.Sprintf("%s/%d", base, l.ID)
			layerDesc.Layers = nil
			out = append(out, layerDesc)
		}
	}
	return out, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
