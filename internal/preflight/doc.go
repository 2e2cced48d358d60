// Package preflight provides readiness checks for the work directory, the
// remote store and the mail relay.
//
// These checks run in two contexts:
//   - "caravel run" calls RunAll before admitting any mount. A failed check
//     aborts the run before any remote state changes.
//   - "caravel check" prints every result so operators can fix the
//     environment ahead of a scheduled run.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
