package report_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"caravel/internal/admission"
	"caravel/internal/logging"
	"caravel/internal/report"
	"caravel/internal/testsupport"
	"caravel/internal/validation"
)

func dirtyReport() validation.Report {
	return validation.NewReport(map[string][]string{
		"naming":  {},
		"sidecar": {"sub-01/anat/sub-01_T1w.nii.gz: missing JSON sidecar", "missing field <X> & more"},
	})
}

func TestJSONRoundTripPreservesOrder(t *testing.T) {
	original := dirtyReport()
	data, err := report.EncodeJSON(original)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	decoded, err := report.DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if diff := cmp.Diff(original.Map(), decoded.Map()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if decoded.Kind() != original.Kind() {
		t.Fatalf("kind changed: %s -> %s", original.Kind(), decoded.Kind())
	}
	if _, err := report.DecodeJSON([]byte(`["not", "a", "map"]`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func readDocument(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	names := map[string]bool{}
	var document string
	for _, file := range zr.File {
		names[file.Name] = true
		if file.Name == "word/document.xml" {
			rc, err := file.Open()
			if err != nil {
				t.Fatal(err)
			}
			raw, _ := io.ReadAll(rc)
			rc.Close()
			document = string(raw)
		}
	}
	for _, want := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml"} {
		if !names[want] {
			t.Fatalf("docx missing part %s", want)
		}
	}
	return document
}

func TestRenderDOCX(t *testing.T) {
	var buf bytes.Buffer
	doc := report.Document{Title: "Validation report for modC-upload", Meta: [][2]string{{"Family", "modC"}}}
	if err := report.RenderDOCX(&buf, doc, dirtyReport()); err != nil {
		t.Fatalf("RenderDOCX: %v", err)
	}
	document := readDocument(t, buf.Bytes())
	for _, want := range []string{"Validation report for modC-upload", "Family: modC", "sidecar (2)", "missing field &lt;X&gt; &amp; more", "naming (0)", "2 issue(s) found"} {
		if !strings.Contains(document, want) {
			t.Fatalf("expected %q in document.xml", want)
		}
	}
}

func TestSummaryListsValidators(t *testing.T) {
	issues := make([]string, 7)
	for i := range issues {
		issues[i] = "issue"
	}
	summary := report.Summary(validation.NewReport(map[string][]string{"naming": {}, "layout": issues}))
	for _, want := range []string{"Validator", "layout", "naming", "passed", "and 2 more"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("expected %q in summary:\n%s", want, summary)
		}
	}
}

func TestPublisherSavesLocallyAndReplacesStaleReports(t *testing.T) {
	fx := testsupport.NewFixture(t, "modC-upload")
	testsupport.WriteFile(t, filepath.Join(fx.UploadDir("modC-upload"), report.JSONName), "stale")
	testsupport.WriteFile(t, filepath.Join(fx.UploadDir("modC-upload"), report.DOCXName), "stale")
	item := admission.WorkItem{UploadName: "modC-upload", UploadDir: fx.UploadDir("modC-upload"), UploadRemote: "modC-upload", Family: "modC"}

	localDir := filepath.Join(t.TempDir(), "local_reports")
	publisher := report.NewPublisher(fx.Store, localDir, "proj", logging.NewNop())
	artifacts, err := publisher.SaveLocal(item, dirtyReport(), "2024-03-01_12-00-00")
	if err != nil {
		t.Fatalf("SaveLocal: %v", err)
	}
	if artifacts.JSON != filepath.Join(localDir, "modC-upload", "report_2024-03-01_12-00-00.json") {
		t.Fatalf("unexpected local json path %s", artifacts.JSON)
	}

	if err := publisher.Publish(context.Background(), item, artifacts); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	uploaded, err := os.ReadFile(filepath.Join(fx.UploadDir("modC-upload"), report.JSONName))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := report.DecodeJSON(uploaded)
	if err != nil {
		t.Fatalf("uploaded report does not decode: %v", err)
	}
	if diff := cmp.Diff(dirtyReport().Map(), decoded.Map()); diff != "" {
		t.Fatalf("uploaded report mismatch (-want +got):\n%s", diff)
	}
	docx, err := os.ReadFile(filepath.Join(fx.UploadDir("modC-upload"), report.DOCXName))
	if err != nil {
		t.Fatal(err)
	}
	readDocument(t, docx)

	if err := publisher.RemoveStale(context.Background(), item); err != nil {
		t.Fatalf("RemoveStale: %v", err)
	}
	if testsupport.Exists(filepath.Join(fx.UploadDir("modC-upload"), report.JSONName)) {
		t.Fatal("expected report removed")
	}
}
