// Package pagination converts a source descriptor into a stream of raw
// feature batches, choosing the most efficient fetch strategy the server
// supports and degrading gracefully when it does not.
//
// Three strategies exist:
//
//   - Identifier sweep: fetch the complete identifier list once, partition
//     it into contiguous chunks, and fetch chunks in parallel under a
//     bounded worker pool. Preferred for large collections.
//   - Offset pagination: serial result-window paging. The default when the
//     server does not support identifier-only queries.
//   - Sequential identifier pagination: serial inclusive-range walks over a
//     known identifier list. Used when offset paging hits a transfer limit
//     without deterministic offset semantics, since identifier predicates
//     are immune to offset drift from concurrent edits.
//
// A batch that exhausts its retries is emitted as failed and its records
// are not refetched by any other path in the run; the gap surfaces in the
// ingestion result.
package pagination
