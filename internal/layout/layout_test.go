package layout

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, rel := range files {
		target := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		rel  string
		want File
	}{
		{
			"rawdata/sub-01/ses-1/func/sub-01_ses-1_task-rest_run-2_bold.nii.gz",
			File{Path: "rawdata/sub-01/ses-1/func/sub-01_ses-1_task-rest_run-2_bold.nii.gz", Layout: "rawdata",
				Subject: "01", Session: "1", Task: "rest", Run: "2", Suffix: "bold", Extension: ".nii.gz"},
		},
		{
			"sub-02/anat/sub-02_T1w.json",
			File{Path: "sub-02/anat/sub-02_T1w.json", Subject: "02", Suffix: "T1w", Extension: ".json"},
		},
		{
			"phenotype/participants.tsv",
			File{Path: "phenotype/participants.tsv", Layout: "phenotype", Extension: ".tsv"},
		},
		{
			"sub-03/notes.txt",
			File{Path: "sub-03/notes.txt", Subject: "03", Extension: ".txt"},
		},
		{
			"unknown/sub-04_dwi.nii",
			File{Path: "unknown/sub-04_dwi.nii", Subject: "04", Suffix: "dwi", Extension: ".nii"},
		},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, ParseFile(tc.rel)); diff != "" {
			t.Fatalf("ParseFile(%q) mismatch (-want +got):\n%s", tc.rel, diff)
		}
	}
}

func TestBuildAndQuery(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"sub-01/anat/sub-01_T1w.nii.gz",
		"sub-01/anat/sub-01_T1w.json",
		"derivatives/sub-02/anat/sub-02_desc-brain_T1w.nii.gz",
		"phenotype/participants.tsv",
		".caravel-lock",
		".hidden/sub-09_T1w.nii",
	)
	idx, err := Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(idx.Files) != 4 {
		t.Fatalf("expected hidden entries skipped, got %+v", idx.Files)
	}
	if diff := cmp.Diff([]string{"01", "02"}, idx.Subjects()); diff != "" {
		t.Fatalf("subjects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"derivatives", "phenotype"}, idx.Layouts()); diff != "" {
		t.Fatalf("layouts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"subject", "suffix", "extension"}, idx.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	files, err := idx.Filter(LayoutRoot, map[string]string{KeyExtension: ".json"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(files) != 1 || files[0].Path != "sub-01/anat/sub-01_T1w.json" {
		t.Fatalf("unexpected filter result %+v", files)
	}
	all, _ := idx.Filter("*", map[string]string{KeySuffix: "T1w"})
	if len(all) != 3 {
		t.Fatalf("expected 3 T1w files across layouts, got %d", len(all))
	}
	if _, err := idx.Filter("*", map[string]string{"acquisition": "x"}); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestBuildMissingRoot(t *testing.T) {
	if _, err := Build(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestLatestSnapshotPicksNewest(t *testing.T) {
	dir := t.TempDir()
	older := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	if _, err := SaveSnapshot(dir, "proj", "mri", newer, &Index{Root: "new"}); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveSnapshot(dir, "proj", "mri", older, &Index{Root: "old"}); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveSnapshot(dir, "proj", "eeg", newer.Add(time.Hour), &Index{Root: "eeg"}); err != nil {
		t.Fatal(err)
	}

	snap, err := LatestSnapshot(dir, "proj", "mri")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap.Index.Root != "new" || !snap.Taken.Equal(newer) {
		t.Fatalf("expected newest snapshot, got %+v", snap)
	}
	if _, err := LatestSnapshot(dir, "proj", "dwi"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCheckKey(t *testing.T) {
	for _, key := range []string{KeySubject, KeySession, KeyTask, KeyRun, KeySuffix, KeyExtension} {
		if err := CheckKey(key); err != nil {
			t.Fatalf("CheckKey(%q): %v", key, err)
		}
	}
	if err := CheckKey("acq"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}
