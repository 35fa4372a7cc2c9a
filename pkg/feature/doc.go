// Package feature defines the data model shared by the ingestion pipeline:
// coordinate reference systems, feature records, fetch batches, per-batch
// validation reports, and per-source ingestion results.
//
// Batches are created by the pagination engine, annotated in place by the
// validator and reconciler, and discarded once handed to the sink or logged
// as failed. Nothing in this package performs I/O.
package feature
