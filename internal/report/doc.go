// Package report turns validation reports into artifacts: the structured
// JSON form, a Word document for contributors, and a plain-text table for
// mail bodies. Publisher keeps a timestamped audit copy of every report in
// the work directory and uploads dirty reports back into the mount under
// fixed names.
package report
