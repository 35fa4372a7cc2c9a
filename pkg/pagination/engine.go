package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/cache"
	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/logging"
	"github.com/nordkart/geoharvest/pkg/source"
)

// Prometheus metrics for fetch strategies.
var (
	strategySelectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_strategy_selected_total",
		Help: "Strategy selections per source, including fallback switches",
	}, []string{"strategy"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_batches_total",
		Help: "Batches emitted by strategy and outcome",
	}, []string{"strategy", "outcome"})

	idsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_identifiers_discovered_total",
		Help: "Unique record identifiers discovered per source",
	}, []string{"source"})
)

// ErrQueryUnsupported marks a layer that answers its metadata probe but
// cannot be queried at all. There is no fallback for this.
var ErrQueryUnsupported = errors.New("layer does not support queries")

// offsetSafetyCap stops runaway offset loops against servers that keep
// answering full pages forever.
const offsetSafetyCap = 1_000_000

// Plan is the outcome of the capability probe: what the server supports
// and which strategy the engine will use.
type Plan struct {
	Strategy feature.Strategy

	SupportsQuery      bool
	SupportsIDQueries  bool
	SupportsPagination bool

	// IDField is the record identifier field used for identifier
	// predicates and ordering.
	IDField string

	// DeclaredCRS is the layer's advertised spatial reference, zero when
	// the metadata omits it.
	DeclaredCRS feature.CRS

	// MaxRecordCount is the server's page-size ceiling (0 = unknown).
	MaxRecordCount int

	// DiscoveredIDs is filled in by identifier discovery. Valid once the
	// batch channel has closed.
	DiscoveredIDs int
}

// layerInfo is the subset of the layer metadata document the probe reads.
type layerInfo struct {
	SupportsQuery            *bool  `json:"supportsQuery"`
	Capabilities             string `json:"capabilities"`
	SupportsAdvancedQueries  bool   `json:"supportsAdvancedQueries"`
	ObjectIDField            string `json:"objectIdField"`
	MaxRecordCount           int    `json:"maxRecordCount"`
	AdvancedQueryCapabilities struct {
		SupportsPagination bool `json:"supportsPagination"`
	} `json:"advancedQueryCapabilities"`
	Extent struct {
		SpatialReference struct {
			WKID int `json:"wkid"`
		} `json:"spatialReference"`
	} `json:"extent"`
	Error *serverError `json:"error"`
}

// Engine turns source descriptors into batch streams.
type Engine struct {
	client     *client.Client
	probeCache *cache.Manager // nil disables probe caching
	logger     zerolog.Logger
}

// NewEngine creates an engine. probeCache may be nil.
func NewEngine(c *client.Client, probeCache *cache.Manager) *Engine {
	return &Engine{
		client:     c,
		probeCache: probeCache,
		logger:     logging.NewLogger("pagination"),
	}
}

// Probe issues the layer metadata query and decides the fetch strategy.
// A transport failure here (after the client's retries) is fatal for the
// source; the caller moves on to the next one.
func (e *Engine) Probe(ctx context.Context, desc source.Descriptor) (*Plan, error) {
	body, err := e.probeBody(ctx, desc)
	if err != nil {
		return nil, err
	}

	var info layerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode layer metadata: %w", err)
	}
	if info.Error != nil {
		return nil, fmt.Errorf("layer metadata: %w", info.Error)
	}

	plan := &Plan{
		SupportsQuery:      supportsQuery(info),
		SupportsIDQueries:  info.SupportsAdvancedQueries && info.ObjectIDField != "",
		SupportsPagination: info.AdvancedQueryCapabilities.SupportsPagination,
		IDField:            info.ObjectIDField,
		DeclaredCRS:        feature.CRS(info.Extent.SpatialReference.WKID),
		MaxRecordCount:     info.MaxRecordCount,
	}

	if !plan.SupportsQuery {
		return nil, ErrQueryUnsupported
	}

	if desc.UseIDSweep && plan.SupportsIDQueries {
		plan.Strategy = feature.StrategyIDSweep
	} else {
		plan.Strategy = feature.StrategyOffset
	}
	strategySelectedTotal.WithLabelValues(string(plan.Strategy)).Inc()

	e.logger.Info().
		Str("source", desc.Name).
		Str("strategy", string(plan.Strategy)).
		Str("id_field", plan.IDField).
		Bool("supports_pagination", plan.SupportsPagination).
		Int("max_record_count", plan.MaxRecordCount).
		Msg("Capability probe complete")

	return plan, nil
}

// probeBody fetches the layer metadata document, going through the probe
// cache when one is configured.
func (e *Engine) probeBody(ctx context.Context, desc source.Descriptor) ([]byte, error) {
	key := cache.ProbeKey(desc.URL)

	if e.probeCache != nil {
		if body, err := e.probeCache.Get(ctx, key); err == nil {
			e.logger.Debug().Str("source", desc.Name).Msg("Probe served from cache")
			return body, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Str("source", desc.Name).Msg("Probe cache error")
		}
	}

	resp, err := e.client.Get(ctx, desc.URL, url.Values{"f": []string{"json"}})
	if err != nil {
		return nil, fmt.Errorf("capability probe: %w", err)
	}

	if e.probeCache != nil {
		if err := e.probeCache.Set(ctx, key, resp.Body); err != nil {
			e.logger.Warn().Err(err).Str("source", desc.Name).Msg("Probe cache store failed")
		}
	}

	return resp.Body, nil
}

// Fetch runs the planned strategy and streams batches on the returned
// channel. The channel closes when the source is exhausted or ctx is
// cancelled. Failed batches are emitted, not swallowed.
func (e *Engine) Fetch(ctx context.Context, desc source.Descriptor, plan *Plan) <-chan *feature.Batch {
	out := make(chan *feature.Batch)

	go func() {
		defer close(out)

		switch plan.Strategy {
		case feature.StrategyIDSweep:
			e.fetchSweep(ctx, desc, plan, out)
		default:
			e.fetchOffset(ctx, desc, plan, out)
		}
	}()

	return out
}

// emit delivers a batch unless the run was cancelled.
func emit(ctx context.Context, out chan<- *feature.Batch, b *feature.Batch) bool {
	outcome := "ok"
	if b.Failed() {
		outcome = "failed"
	}
	batchesTotal.WithLabelValues(string(b.Strategy), outcome).Inc()

	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func supportsQuery(info layerInfo) bool {
	if info.SupportsQuery != nil {
		return *info.SupportsQuery
	}
	if info.Capabilities != "" {
		for _, c := range strings.Split(info.Capabilities, ",") {
			if strings.EqualFold(strings.TrimSpace(c), "query") {
				return true
			}
		}
		return false
	}
	// Metadata silent on querying: assume yes, the first query will tell.
	return true
}
