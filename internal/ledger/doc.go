// Package ledger keeps the durable record of each run.
//
// A Run accumulates item outcomes in memory and is finalized exactly once:
// the inputs, outputs and runtime documents are written to the log directory,
// a row per item is inserted into the SQLite history, and the documents are
// optionally archived to S3 or GCS.
package ledger
