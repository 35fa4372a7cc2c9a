package source

import (
	"context"
	"testing"

	"github.com/nordkart/geoharvest/internal/testutil"
	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
)

func TestIsServiceURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://gis.example/arcgis/rest/services/P/FeatureServer", true},
		{"https://gis.example/arcgis/rest/services/P/FeatureServer/", true},
		{"https://gis.example/arcgis/rest/services/P/FeatureServer/0", false},
		{"https://gis.example/arcgis/rest/services/P/FeatureServer/12", false},
		{"https://gis.example/arcgis/rest/services/P/MapServer", true},
	}

	for _, tt := range tests {
		if got := IsServiceURL(tt.url); got != tt.want {
			t.Errorf("IsServiceURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDiscoverLayers(t *testing.T) {
	mock := testutil.NewMockFeatureServer(nil)
	defer mock.Close()

	c, err := client.New(client.DefaultConfig())
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}

	layers, err := DiscoverLayers(context.Background(), c, mock.URL()+"/FeatureServer", nil)
	if err != nil {
		t.Fatalf("DiscoverLayers() error: %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("layers = %d, want 1", len(layers))
	}
	if layers[0].ID != 0 || layers[0].Name != "mock_layer" {
		t.Errorf("layer = %+v, want {0 mock_layer}", layers[0])
	}
}

func TestDiscoverLayersFiltersByPattern(t *testing.T) {
	mock := testutil.NewMockFeatureServer(nil)
	defer mock.Close()

	c, err := client.New(client.DefaultConfig())
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}

	layers, err := DiscoverLayers(context.Background(), c, mock.URL()+"/FeatureServer", []string{"mock*"})
	if err != nil {
		t.Fatalf("DiscoverLayers() error: %v", err)
	}
	if len(layers) != 1 {
		t.Errorf("matching pattern should keep the layer, got %d", len(layers))
	}

	layers, err = DiscoverLayers(context.Background(), c, mock.URL()+"/FeatureServer", []string{"other*"})
	if err != nil {
		t.Fatalf("DiscoverLayers() error: %v", err)
	}
	if len(layers) != 0 {
		t.Errorf("non-matching pattern should drop the layer, got %d", len(layers))
	}
}

func TestExpandServices(t *testing.T) {
	mock := testutil.NewMockFeatureServer(nil)
	defer mock.Close()

	c, err := client.New(client.DefaultConfig())
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}

	descs := []Descriptor{
		{Name: "direct", URL: mock.LayerURL(), DeclaredCRS: feature.SWEREF99TM},
		{Name: "svc", URL: mock.URL() + "/FeatureServer", DeclaredCRS: feature.SWEREF99TM},
	}

	expanded, err := ExpandServices(context.Background(), c, descs)
	if err != nil {
		t.Fatalf("ExpandServices() error: %v", err)
	}
	if len(expanded) != 2 {
		t.Fatalf("expanded = %d descriptors, want 2", len(expanded))
	}

	if expanded[0].Name != "direct" || expanded[0].URL != mock.LayerURL() {
		t.Errorf("layer descriptor should pass through unchanged: %+v", expanded[0])
	}

	layer := expanded[1]
	if layer.Name != "svc_mock_layer" {
		t.Errorf("Name = %q, want svc_mock_layer", layer.Name)
	}
	if layer.URL != mock.URL()+"/FeatureServer/0" {
		t.Errorf("URL = %q, want layer 0 endpoint", layer.URL)
	}
	if layer.DeclaredCRS != feature.SWEREF99TM {
		t.Errorf("DeclaredCRS should carry over, got %v", layer.DeclaredCRS)
	}

	_, err = ExpandServices(context.Background(), c, []Descriptor{
		{Name: "none", URL: mock.URL() + "/FeatureServer", Layers: []string{"zzz*"}},
	})
	if err == nil {
		t.Error("ExpandServices() should fail when no layer matches")
	}
}
