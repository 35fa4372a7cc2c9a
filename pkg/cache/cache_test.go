package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis instance, skipping when none is
// available. Integration coverage with a containerized Redis lives under
// tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManagerPanicsOnNilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, DefaultTTL)
}

func TestProbeKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "layer url",
			url:  "https://gis.example/arcgis/rest/services/Parcels/FeatureServer/0",
			want: "geoharvest:probe:gis.example/arcgis/rest/services/parcels/featureserver/0",
		},
		{
			name: "trailing slash normalized",
			url:  "https://gis.example/FeatureServer/0/",
			want: "geoharvest:probe:gis.example/featureserver/0",
		},
		{
			name: "scheme ignored",
			url:  "http://gis.example/FeatureServer/0",
			want: "geoharvest:probe:gis.example/featureserver/0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProbeKey(tt.url); got != tt.want {
				t.Errorf("ProbeKey(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestGetSetDelete(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, time.Minute)
	ctx := context.Background()

	key := ProbeKey("https://gis.example/FeatureServer/0")
	body := []byte(`{"objectIdField":"OBJECTID"}`)

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(empty) error = %v, want ErrCacheMiss", err)
	}

	if err := m.Set(ctx, key, body); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Get() = %q, want %q", got, body)
	}

	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(deleted) error = %v, want ErrCacheMiss", err)
	}
}

func TestSetHonorsTTL(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client, 50*time.Millisecond)
	ctx := context.Background()

	key := ProbeKey("https://gis.example/FeatureServer/1")
	if err := m.Set(ctx, key, []byte("x")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(expired) error = %v, want ErrCacheMiss", err)
	}
}
