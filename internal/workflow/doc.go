// Package workflow drives one caravel run from share discovery to the
// finalized ledger.
//
// The Manager admits every configured mount first, resolves the validator
// plugin of every admitted family, then processes the admitted mounts one at a
// time. Each mount moves through permission lock-down, layout indexing,
// validation and either integration or report publication before its share
// permission is restored and its lock marker is left set.
//
// Errors are classified with faults.Classify. Configuration and admission
// failures abort the run; everything after indexing is isolated to the
// current mount, reported to support and recorded as an internal error.
package workflow
