// Package ingest drives the full pipeline for a set of sources: probe,
// fetch, validate, reconcile, sink. Sources run serially; the parallelism
// lives inside the pagination engine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/geometry"
	"github.com/nordkart/geoharvest/pkg/logging"
	"github.com/nordkart/geoharvest/pkg/pagination"
	"github.com/nordkart/geoharvest/pkg/sink"
	"github.com/nordkart/geoharvest/pkg/source"
	"github.com/nordkart/geoharvest/pkg/sr"
)

// ClassCapabilityUnsupported tallies layers that answered their probe but
// cannot be queried. Not a client class; there is no request to classify.
const ClassCapabilityUnsupported = "capability-unsupported"

var (
	sourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_sources_total",
		Help: "Sources processed per outcome",
	}, []string{"outcome"}) // "completed", "failed", "partial"

	sourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoharvest_source_duration_seconds",
		Help:    "Wall time per source ingestion",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"source"})

	recordsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_records_accepted_total",
		Help: "Records delivered to the sink",
	}, []string{"source"})

	recordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_records_rejected_total",
		Help: "Records rejected by validation or reconciliation",
	}, []string{"source", "reason"})
)

// SinkFactory opens the sink for one source run. The coordinator closes
// whatever it gets back.
type SinkFactory func(desc source.Descriptor) (sink.Sink, error)

// Coordinator owns the per-run bookkeeping. All result counters are
// written from its goroutine only.
type Coordinator struct {
	engine    *pagination.Engine
	validator *sr.Validator
	logger    zerolog.Logger
}

// NewCoordinator creates a coordinator on top of a pagination engine.
func NewCoordinator(engine *pagination.Engine) *Coordinator {
	return &Coordinator{
		engine:    engine,
		validator: sr.NewValidator(),
		logger:    logging.NewLogger("coordinator"),
	}
}

// Run ingests every source in order. One source failing never stops the
// next; cancellation does. The returned slice has one result per source
// attempted, in input order.
func (c *Coordinator) Run(ctx context.Context, descs []source.Descriptor, newSink SinkFactory) ([]*feature.IngestionResult, error) {
	results := make([]*feature.IngestionResult, 0, len(descs))

	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, c.runSource(ctx, desc, newSink))
	}
	return results, ctx.Err()
}

// heldBatch keeps a validated batch's surviving records until geometry
// reconciliation can run over the whole source.
type heldBatch struct {
	records []feature.Record
	report  *feature.ValidationReport
}

func (c *Coordinator) runSource(ctx context.Context, desc source.Descriptor, newSink SinkFactory) *feature.IngestionResult {
	start := time.Now()
	desc = desc.WithDefaults()

	result := &feature.IngestionResult{
		RunID:  uuid.NewString(),
		Source: desc.Name,
	}
	defer func() {
		result.Elapsed = time.Since(start)
		sourceDuration.WithLabelValues(desc.Name).Observe(result.Elapsed.Seconds())
	}()

	log := c.logger.With().Str("source", desc.Name).Str("run_id", result.RunID).Logger()

	if err := desc.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid source descriptor")
		result.Tally("other")
		sourcesTotal.WithLabelValues("failed").Inc()
		return result
	}

	plan, err := c.engine.Probe(ctx, desc)
	if err != nil {
		class := string(client.ClassOf(err))
		if errors.Is(err, pagination.ErrQueryUnsupported) {
			class = ClassCapabilityUnsupported
		}
		log.Error().Err(err).Str("class", class).Msg("Capability probe failed, skipping source")
		result.Tally(class)
		sourcesTotal.WithLabelValues("failed").Inc()
		return result
	}
	result.Strategy = plan.Strategy

	log.Info().
		Str("strategy", string(plan.Strategy)).
		Str("id_field", plan.IDField).
		Int("max_record_count", plan.MaxRecordCount).
		Msg("Starting source ingestion")

	// First pass: fetch and validate, holding accepted records until the
	// geometry tally is complete. The sink needs a single geometry type,
	// which is only known once every batch has been seen.
	reconciler := geometry.NewReconciler()
	var held []heldBatch

	for b := range c.engine.Fetch(ctx, desc, plan) {
		result.BatchesTotal++

		if b.Failed() {
			result.BatchesFailed++
			result.Tally(b.ErrClass)
			result.FailedWindows = append(result.FailedWindows, b.Window)
			log.Warn().
				Int("batch", b.Seq).
				Str("class", b.ErrClass).
				Err(b.Err).
				Msg("Batch failed terminally")
			continue
		}
		result.BatchesSucceeded++

		report := c.validator.Validate(b, desc.DeclaredCRS, desc.ExpectedCRS)
		if report.RejectedCount > 0 {
			result.RecordsRejected += report.RejectedCount
			for reason, n := range report.RejectionCounts {
				result.Tally(reason)
				recordsRejected.WithLabelValues(desc.Name, reason).Add(float64(n))
			}
			continue
		}

		reconciler.Observe(b.Records)
		held = append(held, heldBatch{records: b.Records, report: report})
	}
	result.DiscoveredIDs = plan.DiscoveredIDs

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("Source ingestion cancelled")
		sourcesTotal.WithLabelValues("failed").Inc()
		return result
	}

	result.DominantGeometry = string(reconciler.Dominant())

	// Second pass: filter to the dominant geometry type and deliver.
	if err := c.deliver(ctx, desc, reconciler, held, newSink, result, start); err != nil {
		log.Error().Err(err).Msg("Sink delivery failed")
		result.Tally("other")
		sourcesTotal.WithLabelValues("failed").Inc()
		return result
	}

	outcome := "completed"
	if result.BatchesFailed > 0 {
		outcome = "partial"
	}
	sourcesTotal.WithLabelValues(outcome).Inc()

	log.Info().
		Int("batches", result.BatchesTotal).
		Int("batches_failed", result.BatchesFailed).
		Int("records_accepted", result.RecordsAccepted).
		Int("records_rejected", result.RecordsRejected).
		Str("dominant_geometry", result.DominantGeometry).
		Dur("duration", time.Since(start)).
		Msg("Source ingestion finished")
	return result
}

func (c *Coordinator) deliver(ctx context.Context, desc source.Descriptor, rec *geometry.Reconciler, held []heldBatch, newSink SinkFactory, result *feature.IngestionResult, start time.Time) error {
	if len(held) == 0 {
		return nil
	}

	out, err := newSink(desc)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	for _, hb := range held {
		kept, discarded := rec.Filter(hb.records)
		if n := discardTotal(discarded); n > 0 {
			hb.report.DiscardedTypes = discarded
			hb.report.AcceptedCount -= n
			hb.report.Reject(feature.ReasonNonDominantGeometry, n)
			result.RecordsRejected += n
			result.Tally(feature.ReasonNonDominantGeometry)
			recordsRejected.WithLabelValues(desc.Name, feature.ReasonNonDominantGeometry).Add(float64(n))
		}

		for _, r := range kept {
			if err := out.Write(ctx, r, hb.report); err != nil {
				out.Close()
				return fmt.Errorf("write record %d: %w", r.ID, err)
			}
		}
		result.RecordsAccepted += len(kept)
		recordsAccepted.WithLabelValues(desc.Name).Add(float64(len(kept)))
	}

	// Counters are final at this point; Elapsed needs setting so the
	// summary carries it.
	result.Elapsed = time.Since(start)
	if err := out.Finalize(result); err != nil {
		out.Close()
		return fmt.Errorf("finalize sink: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return nil
}

func discardTotal(discarded map[string]int) int {
	n := 0
	for _, v := range discarded {
		n += v
	}
	return n
}
