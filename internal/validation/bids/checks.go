package bids

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"caravel/internal/layout"
	"caravel/internal/validation"
)

// topLevelFiles may sit at the mount root next to subject directories.
var topLevelFiles = map[string]bool{
	"dataset_description.json": true,
	"participants.tsv":         true,
	"participants.json":        true,
	"README":                   true,
	"README.md":                true,
	"CHANGES":                  true,
	"report.json":              true,
	"report.docx":              true,
}

var datatypes = map[string]bool{
	"anat": true, "func": true, "dwi": true, "fmap": true, "perf": true,
	"eeg": true, "meg": true, "ieeg": true, "beh": true, "pet": true,
}

// subjectSegment returns the index of the sub-<label> segment for paths
// that live inside a subject directory, or -1.
func subjectSegment(segments []string) int {
	for i, segment := range segments[:len(segments)-1] {
		if strings.HasPrefix(segment, subjectPrefix) {
			return i
		}
	}
	return -1
}

func checkNaming(ctx context.Context, in validation.Input) ([]string, error) {
	var issues []string
	for _, file := range in.Index.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments := strings.Split(file.Path, "/")
		if len(segments) == 1 {
			if !topLevelFiles[file.Path] {
				issues = append(issues, fmt.Sprintf("%s: unexpected file at the dataset root", file.Path))
			}
			continue
		}
		if file.Layout == layout.LayoutPhenotype {
			if file.Extension != ".tsv" && file.Extension != ".json" {
				issues = append(issues, fmt.Sprintf("%s: phenotype files must be .tsv or .json", file.Path))
			}
			continue
		}
		idx := subjectSegment(segments)
		if idx < 0 {
			if file.Layout == "" {
				issues = append(issues, fmt.Sprintf("%s: not inside a sub-<label> directory", file.Path))
			}
			continue
		}
		dirLabel := strings.TrimPrefix(segments[idx], subjectPrefix)
		base := segments[len(segments)-1]
		if !strings.HasPrefix(base, subjectPrefix) {
			issues = append(issues, fmt.Sprintf("%s: file name must start with sub-%s_", file.Path, dirLabel))
			continue
		}
		stem := strings.TrimSuffix(base, file.Extension)
		nameLabel, _, _ := strings.Cut(strings.TrimPrefix(stem, subjectPrefix), "_")
		if nameLabel != dirLabel {
			issues = append(issues, fmt.Sprintf("%s: subject %q in file name does not match directory sub-%s", file.Path, nameLabel, dirLabel))
			continue
		}
		if file.Suffix == "" {
			issues = append(issues, fmt.Sprintf("%s: missing suffix (e.g. _T1w)", file.Path))
		}
		if file.Extension == "" {
			issues = append(issues, fmt.Sprintf("%s: missing extension", file.Path))
		}
	}
	return issues, nil
}

func checkLayout(ctx context.Context, in validation.Input) ([]string, error) {
	if len(in.Index.Files) == 0 {
		return []string{"upload is empty"}, nil
	}
	var issues []string
	seen := make(map[string]bool)
	for _, file := range in.Index.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments := strings.Split(file.Path, "/")
		idx := subjectSegment(segments)
		if idx < 0 || file.Layout == layout.LayoutDerivatives {
			continue
		}
		// sub-<label>/[ses-<label>/]<datatype>/<file>
		rest := segments[idx+1 : len(segments)-1]
		if len(rest) > 0 && strings.HasPrefix(rest[0], "ses-") {
			rest = rest[1:]
		}
		if len(rest) == 0 && (strings.HasSuffix(file.Path, "_scans.tsv") || strings.HasSuffix(file.Path, "_sessions.tsv")) {
			continue
		}
		dir := path.Join(segments[:len(segments)-1]...)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		switch {
		case len(rest) == 0:
			issues = append(issues, fmt.Sprintf("%s: files must sit in a datatype directory (anat, func, dwi, ...)", dir))
		case len(rest) > 1 || !datatypes[rest[0]]:
			issues = append(issues, fmt.Sprintf("%s: unknown datatype directory %q", dir, strings.Join(rest, "/")))
		}
	}
	sort.Strings(issues)
	return issues, nil
}

func checkSidecars(ctx context.Context, in validation.Input) ([]string, error) {
	present := make(map[string]bool, len(in.Index.Files))
	for _, file := range in.Index.Files {
		present[file.Path] = true
	}
	var issues []string
	for _, file := range in.Index.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.Extension != ".nii" && file.Extension != ".nii.gz" {
			continue
		}
		sidecar := strings.TrimSuffix(file.Path, file.Extension) + ".json"
		if !present[sidecar] {
			issues = append(issues, fmt.Sprintf("%s: missing JSON sidecar %s", file.Path, path.Base(sidecar)))
		}
	}
	return issues, nil
}

func checkSubjects(_ context.Context, in validation.Input) ([]string, error) {
	if in.Subjects == nil {
		return nil, nil
	}
	allowed := make(map[string]bool, len(in.Subjects))
	for _, subject := range in.Subjects {
		allowed[strings.TrimPrefix(subject, subjectPrefix)] = true
	}
	var issues []string
	for _, subject := range in.Index.Subjects() {
		if !allowed[subject] {
			issues = append(issues, fmt.Sprintf("sub-%s: subject is not in the project subject list", subject))
		}
	}
	return issues, nil
}

// checkPhenotype requires every participant_id of a phenotype table to be
// either uploaded alongside or already collected.
func checkPhenotype(ctx context.Context, in validation.Input) ([]string, error) {
	known := make(map[string]bool)
	for _, subject := range in.Index.Subjects() {
		known[subject] = true
	}
	for subject := range in.Baseline {
		known[subject] = true
	}
	tables, err := in.Index.Filter(layout.LayoutPhenotype, map[string]string{layout.KeyExtension: ".tsv"})
	if err != nil {
		return nil, err
	}
	var issues []string
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := participantIDs(filepath.Join(in.Index.Root, filepath.FromSlash(table.Path)))
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) || errors.Is(err, errNoParticipantColumn) {
				issues = append(issues, fmt.Sprintf("%s: %v", table.Path, err))
				continue
			}
			return nil, err
		}
		for _, id := range ids {
			if !known[strings.TrimPrefix(id, subjectPrefix)] {
				issues = append(issues, fmt.Sprintf("%s: participant %s has no data uploaded or collected", table.Path, id))
			}
		}
	}
	return issues, nil
}

var errNoParticipantColumn = errors.New("no participant_id column")

func participantIDs(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoParticipantColumn
		}
		return nil, err
	}
	column := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "participant_id" {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, errNoParticipantColumn
	}
	var ids []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if column < len(record) {
			if id := strings.TrimSpace(record[column]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
