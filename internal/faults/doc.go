// Package faults classifies failures raised while processing mounts.
//
// Every pipeline component wraps its errors with one of the exported class
// markers via Wrap. The workflow dispatcher calls Classify to decide whether
// a failure aborts the whole run (configuration and admission problems) or
// only excludes the current mount (integration and internal failures).
package faults
