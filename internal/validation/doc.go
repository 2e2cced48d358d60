// Package validation dispatches per-family validator plugins and produces
// tagged reports.
//
// Families register a Capabilities value (status, validators, listDatasets)
// in a Registry. The workflow resolves every family it needs before any
// mount is processed, so a missing or incomplete plugin aborts the run up
// front. Runner then executes the selected validators for one mount and
// returns a Report tagged Clean, ContentIssues or InternalFailure.
package validation
