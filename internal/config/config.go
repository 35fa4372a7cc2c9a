// Package config loads the ingestion run configuration from a YAML file
// and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/source"
)

// Config aggregates configuration for one ingestion run.
// Environment variables use the prefix "GEOHARVEST" with dots replaced by
// underscores, so "output.format" becomes "GEOHARVEST_OUTPUT_FORMAT".
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	HTTP    HTTPConfig     `mapstructure:"http"`
	Redis   RedisConfig    `mapstructure:"redis"`
	Output  OutputConfig   `mapstructure:"output"`
	Sources []SourceConfig `mapstructure:"sources"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BaseDelayMillis  int    `mapstructure:"base_delay_ms"`
	MaxResponseBytes int64  `mapstructure:"max_response_bytes"`
	UserAgent        string `mapstructure:"user_agent"`
}

// RedisConfig enables the probe-metadata cache when Addr is set.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// OutputConfig selects the sink.
type OutputConfig struct {
	// Format is "geojson" or "parquet".
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// SourceConfig is the YAML shape of one source entry.
type SourceConfig struct {
	Name      string `mapstructure:"name"`
	Authority string `mapstructure:"authority"`
	URL       string `mapstructure:"url"`

	// CRS is the server's declared reference system ("3006", "EPSG:4326").
	// ExpectedCRS defaults to CRS when omitted.
	CRS         string `mapstructure:"crs"`
	ExpectedCRS string `mapstructure:"expected_crs"`

	// Layers selects layers by glob pattern when URL points at a whole
	// service instead of a single layer.
	Layers []string `mapstructure:"layers"`

	Where     string `mapstructure:"where"`
	OutFields string `mapstructure:"out_fields"`

	// BBox is [xmin, ymin, xmax, ymax] in BBoxCRS (falls back to CRS).
	BBox    []float64 `mapstructure:"bbox"`
	BBoxCRS string    `mapstructure:"bbox_crs"`

	IDSweep   bool `mapstructure:"id_sweep"`
	ChunkSize int  `mapstructure:"chunk_size"`
	PageSize  int  `mapstructure:"page_size"`
	Workers   int  `mapstructure:"workers"`
}

// Load reads the configuration file at path. With an empty path it looks
// for geoharvest.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("geoharvest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("GEOHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("output.format", "geojson")
	v.SetDefault("output.dir", ".")
	v.SetDefault("redis.ttl_minutes", 15)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Output.Format {
	case "geojson", "parquet":
	default:
		return nil, fmt.Errorf("unsupported output format %q", cfg.Output.Format)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return cfg, nil
}

// ClientConfig builds the HTTP client configuration, zero fields keeping
// the client defaults.
func (c *Config) ClientConfig() client.Config {
	cc := client.DefaultConfig()
	if c.HTTP.TimeoutSeconds > 0 {
		cc.Timeout = time.Duration(c.HTTP.TimeoutSeconds) * time.Second
	}
	if c.HTTP.MaxAttempts > 0 {
		cc.Retry.MaxAttempts = c.HTTP.MaxAttempts
	}
	if c.HTTP.BaseDelayMillis > 0 {
		cc.Retry.BaseDelay = time.Duration(c.HTTP.BaseDelayMillis) * time.Millisecond
	}
	if c.HTTP.MaxResponseBytes > 0 {
		cc.MaxResponseBytes = c.HTTP.MaxResponseBytes
	}
	if c.HTTP.UserAgent != "" {
		cc.UserAgent = c.HTTP.UserAgent
	}
	return cc
}

// Descriptors converts the source entries into validated descriptors.
func (c *Config) Descriptors() ([]source.Descriptor, error) {
	descs := make([]source.Descriptor, 0, len(c.Sources))

	for _, s := range c.Sources {
		d := source.Descriptor{
			Name:       s.Name,
			Authority:  s.Authority,
			URL:        s.URL,
			Layers:     s.Layers,
			Where:      s.Where,
			OutFields:  s.OutFields,
			UseIDSweep: s.IDSweep,
			ChunkSize:  s.ChunkSize,
			PageSize:   s.PageSize,
			Workers:    s.Workers,
		}

		if s.CRS != "" {
			crs, err := feature.ParseCRS(s.CRS)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", s.Name, err)
			}
			d.DeclaredCRS = crs
		}
		d.ExpectedCRS = d.DeclaredCRS
		if s.ExpectedCRS != "" {
			crs, err := feature.ParseCRS(s.ExpectedCRS)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", s.Name, err)
			}
			d.ExpectedCRS = crs
		}

		if len(s.BBox) > 0 {
			if len(s.BBox) != 4 {
				return nil, fmt.Errorf("source %s: bbox needs exactly 4 values", s.Name)
			}
			bboxCRS := d.DeclaredCRS
			if s.BBoxCRS != "" {
				crs, err := feature.ParseCRS(s.BBoxCRS)
				if err != nil {
					return nil, fmt.Errorf("source %s: %w", s.Name, err)
				}
				bboxCRS = crs
			}
			d.BBox = &source.BBox{
				XMin: s.BBox[0], YMin: s.BBox[1],
				XMax: s.BBox[2], YMax: s.BBox[3],
				CRS: bboxCRS,
			}
		}

		d = d.WithDefaults()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}
