package pagination

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/feature"
	"github.com/nordkart/geoharvest/pkg/source"
)

// fetchOffset runs serial result-window pagination. Offsets must advance
// serially; the server's ordering guarantees do not survive concurrency.
func (e *Engine) fetchOffset(ctx context.Context, desc source.Descriptor, plan *Plan, out chan<- *feature.Batch) {
	pageSize := desc.PageSize
	if plan.MaxRecordCount > 0 && plan.MaxRecordCount < pageSize {
		pageSize = plan.MaxRecordCount
	}

	e.logger.Info().
		Str("source", desc.Name).
		Int("page_size", pageSize).
		Msg("Starting offset pagination")

	seq := 0
	delivered := make(map[feature.ID]struct{})
	for offset := 0; ; offset += pageSize {
		if ctx.Err() != nil {
			return
		}
		if offset > offsetSafetyCap {
			e.logger.Warn().
				Str("source", desc.Name).
				Int("offset", offset).
				Msg("Offset safety cap reached")
			return
		}

		b := &feature.Batch{
			Seq:      seq,
			Strategy: feature.StrategyOffset,
			Window:   feature.Window{Offset: offset, Limit: pageSize},
		}

		params := desc.BaseParams()
		params.Set("resultOffset", strconv.Itoa(offset))
		params.Set("resultRecordCount", strconv.Itoa(pageSize))

		resp, err := e.client.Get(ctx, desc.QueryURL(), params)
		if err != nil {
			// Later offsets would silently skip the failed window, so a
			// dead page ends the walk. The gap shows up in the result.
			b.Err = err
			b.ErrClass = string(client.ClassOf(err))
			emit(ctx, out, b)
			return
		}

		b.HTTPStatus = resp.StatusCode
		b.Elapsed = resp.Elapsed
		b.Retries = resp.Retries

		page, err := decodePage(resp.Body, plan.IDField)
		if err != nil {
			b.Err = err
			b.ErrClass = string(client.ClassMalformed)
			emit(ctx, out, b)
			return
		}

		if len(page.Records) == 0 {
			return
		}

		// Truncation below the requested window without an end-of-data
		// signal means offsets have lost deterministic meaning. The
		// truncated page is discarded and the identifier space walked
		// instead; identifier predicates do not drift. Pages emitted
		// before the switch stay emitted, so their identifiers are
		// excluded from the walk.
		if page.Exceeded && len(page.Records) < pageSize {
			e.logger.Info().
				Str("source", desc.Name).
				Int("offset", offset).
				Int("delivered", len(delivered)).
				Msg("Transfer limit hit, switching to sequential identifier pagination")
			e.fetchSequential(ctx, desc, plan, seq, delivered, out)
			return
		}

		b.Records = page.Records
		b.DeclaredCRS = page.ExplicitCRS
		if !emit(ctx, out, b) {
			return
		}
		for _, r := range b.Records {
			delivered[r.ID] = struct{}{}
		}
		seq++

		e.logger.Debug().
			Str("source", desc.Name).
			Int("batch", b.Seq).
			Int("records", len(b.Records)).
			Msg("Page fetched")

		if len(page.Records) < pageSize {
			return
		}
	}
}

// fetchSequential walks a known identifier list in serial inclusive-range
// windows. Used only as the transfer-limit fallback; batches keep failure
// isolation since each window is an independent query. skip holds the
// identifiers of records already emitted by the offset walk, so the
// fallback never delivers a record twice.
func (e *Engine) fetchSequential(ctx context.Context, desc source.Descriptor, plan *Plan, seqStart int, skip map[feature.ID]struct{}, out chan<- *feature.Batch) {
	strategySelectedTotal.WithLabelValues(string(feature.StrategySequentialID)).Inc()

	ids, err := e.fetchIDs(ctx, desc, plan)
	if err != nil {
		emit(ctx, out, &feature.Batch{
			Seq:      seqStart,
			Strategy: feature.StrategySequentialID,
			Err:      fmt.Errorf("identifier discovery: %w", err),
			ErrClass: string(client.ClassOf(err)),
		})
		return
	}
	if len(skip) > 0 {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := skip[id]; !ok {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	if len(ids) == 0 {
		return
	}

	idsDiscovered.WithLabelValues(desc.Name).Add(float64(len(ids)))

	e.logger.Info().
		Str("source", desc.Name).
		Int("identifiers", len(ids)).
		Msg("Starting sequential identifier pagination")

	for _, c := range partition(ids, desc.PageSize) {
		if ctx.Err() != nil {
			return
		}
		c.seq += seqStart
		b := e.fetchRange(ctx, desc, plan, feature.StrategySequentialID, c)

		// Windows span only the remaining identifiers, but the inclusive
		// range can still cover skipped ones when the two interleave.
		if len(skip) > 0 && !b.Failed() {
			kept := b.Records[:0]
			for _, r := range b.Records {
				if _, ok := skip[r.ID]; !ok {
					kept = append(kept, r)
				}
			}
			b.Records = kept
		}

		if !emit(ctx, out, b) {
			return
		}
	}
}
