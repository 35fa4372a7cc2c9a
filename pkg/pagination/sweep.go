package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/source"
)

// chunk is one contiguous identifier range scheduled for a worker.
type chunk struct {
	seq    int
	lo, hi feature.ID
	count  int
}

// fetchSweep runs identifier-sweep pagination: discover the complete
// identifier list, partition it, and fetch chunks in parallel.
func (e *Engine) fetchSweep(ctx context.Context, desc source.Descriptor, plan *Plan, out chan<- *feature.Batch) {
	ids, err := e.fetchIDs(ctx, desc, plan)
	if err != nil {
		// A server that answers the probe but refuses ids-only queries
		// degrades to offset pagination, once; it is never asked again.
		if class := client.ClassOf(err); class == client.ClassHTTP4xx {
			e.logger.Warn().
				Str("source", desc.Name).
				Err(err).
				Msg("Identifier query unsupported, falling back to offset pagination")
			strategySelectedTotal.WithLabelValues(string(feature.StrategyOffset)).Inc()
			e.fetchOffset(ctx, desc, plan, out)
			return
		}

		emit(ctx, out, &feature.Batch{
			Strategy: feature.StrategyIDSweep,
			Err:      fmt.Errorf("identifier discovery: %w", err),
			ErrClass: string(client.ClassOf(err)),
		})
		return
	}

	idsDiscovered.WithLabelValues(desc.Name).Add(float64(len(ids)))

	if len(ids) == 0 {
		e.logger.Info().Str("source", desc.Name).Msg("No identifiers discovered")
		return
	}

	chunks := partition(ids, desc.ChunkSize)

	e.logger.Info().
		Str("source", desc.Name).
		Int("identifiers", len(ids)).
		Int("chunks", len(chunks)).
		Int("workers", desc.Workers).
		Msg("Starting identifier sweep")

	start := time.Now()

	jobs := make(chan chunk)
	go func() {
		defer close(jobs)
		for _, c := range chunks {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < desc.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.sweepWorker(ctx, desc, plan, jobs, out, workerID)
		}(i)
	}
	wg.Wait()

	e.logger.Info().
		Str("source", desc.Name).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Identifier sweep complete")
}

// sweepWorker drains the chunk queue. A worker blocks only on its own
// chunk's network I/O, never on another worker's result.
func (e *Engine) sweepWorker(ctx context.Context, desc source.Descriptor, plan *Plan, jobs <-chan chunk, out chan<- *feature.Batch, workerID int) {
	processed := 0

	for c := range jobs {
		select {
		case <-ctx.Done():
			e.logger.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		b := e.fetchRange(ctx, desc, plan, feature.StrategyIDSweep, c)
		if !emit(ctx, out, b) {
			return
		}
		processed++
	}

	if processed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("chunks_processed", processed).
			Msg("Worker completed")
	}
}

// fetchRange fetches every record whose identifier lies in the chunk's
// inclusive range. Failures become failed batches, never panics or gaps
// without a trace.
func (e *Engine) fetchRange(ctx context.Context, desc source.Descriptor, plan *Plan, strategy feature.Strategy, c chunk) *feature.Batch {
	b := &feature.Batch{
		Seq:      c.seq,
		Strategy: strategy,
		Window:   feature.Window{IDLow: c.lo, IDHigh: c.hi},
	}

	params := desc.BaseParams()
	params.Set("where", source.CombineWhere(desc.Where,
		fmt.Sprintf("%s >= %d AND %s <= %d", plan.IDField, c.lo, plan.IDField, c.hi)))

	resp, err := e.client.Get(ctx, desc.QueryURL(), params)
	if err != nil {
		b.Err = err
		b.ErrClass = string(client.ClassOf(err))
		return b
	}

	b.HTTPStatus = resp.StatusCode
	b.Elapsed = resp.Elapsed
	b.Retries = resp.Retries

	page, err := decodePage(resp.Body, plan.IDField)
	if err != nil {
		b.Err = err
		b.ErrClass = string(client.ClassMalformed)
		return b
	}

	b.Records = page.Records
	b.DeclaredCRS = page.ExplicitCRS

	e.logger.Debug().
		Str("source", desc.Name).
		Int("batch", c.seq).
		Int("records", len(b.Records)).
		Msg("Chunk fetched")

	return b
}

// fetchIDs retrieves the complete, deduplicated, sorted identifier list.
func (e *Engine) fetchIDs(ctx context.Context, desc source.Descriptor, plan *Plan) ([]feature.ID, error) {
	params := desc.BaseParams()
	params.Set("returnIdsOnly", "true")
	params.Set("f", "json")
	params.Del("outFields")
	params.Del("returnGeometry")

	resp, err := e.client.Get(ctx, desc.QueryURL(), params)
	if err != nil {
		return nil, err
	}

	var list idListResponse
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("decode identifier list: %w", err)
	}
	if list.Error != nil {
		return nil, list.Error
	}
	if list.ObjectIDFieldName != "" {
		plan.IDField = list.ObjectIDFieldName
	}
	if plan.IDField == "" {
		return nil, errors.New("identifier field unknown")
	}

	ids := slices.Clone(list.ObjectIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	plan.DiscoveredIDs = len(ids)
	return ids, nil
}

// partition splits a sorted unique identifier list into contiguous chunks
// of at most size identifiers. Ranges over the sorted list are pairwise
// disjoint by construction.
func partition(ids []feature.ID, size int) []chunk {
	if size <= 0 {
		size = source.DefaultChunkSize
	}

	chunks := make([]chunk, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		j := min(i+size, len(ids))
		chunks = append(chunks, chunk{
			seq:   len(chunks),
			lo:    ids[i],
			hi:    ids[j-1],
			count: j - i,
		})
	}
	return chunks
}
