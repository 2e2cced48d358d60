package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caravel/internal/logging"
)

func TestConsoleLoggerWritesComponentAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	ctx := logging.WithMount(logging.WithRunID(context.Background(), "run-1"), "proj_mri_upload")
	component := logging.NewComponentLogger(logger, "admission")
	logging.WithContext(ctx, component).Info("mount admitted", logging.String("family", "mri"))

	line := buf.String()
	for _, want := range []string{"INFO admission: mount admitted", "run_id=run-1", "mount=proj_mri_upload", "family=mri"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be rendered as prefix, got %q", line)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "stdout_test.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	logger.Debug("suppressed")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(string(content), "suppressed") {
		t.Fatalf("debug line should be filtered at info level, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Format: "json", Level: "warn", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	logging.WarnWithContext(logger, "lock marker present", "mount_skipped")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json line %q: %v", buf.String(), err)
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record[logging.FieldEventType] != "mount_skipped" {
		t.Fatalf("expected enforced event type, got %v", record)
	}
	if record[logging.FieldImpact] == nil || record[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default hint and impact, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		configured string
		verbosity  int
		want       string
	}{
		{"warn", 0, "warn"},
		{"warn", 1, "info"},
		{"warn", 2, "debug"},
		{"error", 5, "debug"},
	}
	for _, tc := range tests {
		if got := logging.LevelForVerbosity(tc.configured, tc.verbosity); got != tc.want {
			t.Fatalf("LevelForVerbosity(%q, %d) = %q, want %q", tc.configured, tc.verbosity, got, tc.want)
		}
	}
}

func TestCleanupOldLogsRemovesOnlyExpiredMatches(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "stdout_old.log")
	fresh := filepath.Join(dir, "stdout_new.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{old, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{Dir: dir, Pattern: "stdout_*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected expired log to be removed")
	}
	for _, path := range []string{fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}
