package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"caravel/internal/config"
	"caravel/internal/faults"
	"caravel/internal/ledger"
	"caravel/internal/lock"
	"caravel/internal/runlock"
	"caravel/internal/testsupport"
	"caravel/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	fx         *testsupport.Fixture
	configPath string
}

func setupCLITestEnv(t *testing.T, uploads ...string) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	fx := testsupport.NewFixture(t, uploads...)
	mounts := make([]string, 0, len(uploads))
	for _, name := range uploads {
		mounts = append(mounts, fx.UploadDir(name))
	}
	cfg := testsupport.NewConfig(t, testsupport.WithStoreRoot(fx.Root), testsupport.WithMounts(mounts...))
	cfg.Validation.Families = []string{"mri"}
	cfg.Remote.DirectoryFile = writeDirectoryFile(t, fx)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, fx: fx, configPath: configPath}
}

func writeDirectoryFile(t *testing.T, fx *testsupport.Fixture) string {
	t.Helper()
	data, err := toml.Marshal(fx.Directory)
	if err != nil {
		t.Fatalf("marshal directory: %v", err)
	}
	path := filepath.Join(t.TempDir(), "directory.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write directory: %v", err)
	}
	return path
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func TestRunIntegratesCleanUpload(t *testing.T) {
	env := setupCLITestEnv(t, "proj_mri_upload")
	env.fx.WriteSubject(t, "proj_mri_upload", "sub-01")

	out, stderr, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\nstderr:\n%s", err, stderr)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "proj_mri_upload")
	requireContains(t, out, "integrated")

	moved := filepath.Join(env.fx.CollectDir("proj_mri_upload"), "sub-01", "anat", "sub-01_T1w.nii.gz")
	if !testsupport.Exists(moved) {
		t.Fatalf("expected dataset in collected mount at %s", moved)
	}
	if !testsupport.Exists(filepath.Join(env.fx.UploadDir("proj_mri_upload"), lock.MarkerName)) {
		t.Fatal("expected upload mount to stay locked after integration")
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "proj")
	requireContains(t, out, "completed")
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	env := setupCLITestEnv(t, "proj_mri_upload", "proj_eeg_upload")
	env.fx.WriteSubject(t, "proj_eeg_upload", "sub-01")

	_, stderr, err := runCLI(t, []string{"run", "--mount", env.fx.UploadDir("proj_eeg_upload"), "--project", "other"}, env.configPath)
	if err == nil {
		t.Fatal("expected unregistered family to abort the run")
	}
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v (stderr %s)", err, stderr)
	}
	if got := exitCode(err); got != exitFatal {
		t.Fatalf("exit code = %d, want %d", got, exitFatal)
	}
	if testsupport.Exists(filepath.Join(env.fx.UploadDir("proj_eeg_upload"), lock.MarkerName)) {
		t.Fatal("aborted run must not lock the mount")
	}
}

func TestRunRejectsHeldRunLock(t *testing.T) {
	env := setupCLITestEnv(t, "proj_mri_upload")
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	guard, err := runlock.Acquire(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer guard.Release()

	_, _, err = runCLI(t, []string{"run"}, env.configPath)
	if !errors.Is(err, runlock.ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if got := exitCode(err); got != exitBusy {
		t.Fatalf("exit code = %d, want %d", got, exitBusy)
	}
}

func TestUnlockRemovesMarker(t *testing.T) {
	env := setupCLITestEnv(t, "proj_mri_upload")
	marker := filepath.Join(env.fx.UploadDir("proj_mri_upload"), lock.MarkerName)
	testsupport.WriteFile(t, marker, "owner=previous\n")

	out, _, err := runCLI(t, []string{"unlock", env.fx.UploadDir("proj_mri_upload")}, env.configPath)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	requireContains(t, out, "proj_mri_upload: unlocked")
	if testsupport.Exists(marker) {
		t.Fatal("expected marker to be removed")
	}

	out, _, err = runCLI(t, []string{"unlock", "proj_mri_upload"}, env.configPath)
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	requireContains(t, out, "not locked")

	_, _, err = runCLI(t, []string{"unlock", "proj_eeg_upload"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "known shares: proj_mri_collected, proj_mri_upload") {
		t.Fatalf("expected unknown share error listing shares, got %v", err)
	}
}

func TestCheckReportsMissingMount(t *testing.T) {
	env := setupCLITestEnv(t, "proj_mri_upload")
	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "All checks passed")

	if err := os.RemoveAll(env.fx.UploadDir("proj_mri_upload")); err != nil {
		t.Fatalf("remove mount: %v", err)
	}
	out, _, err = runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatal("expected check to fail for a missing mount")
	}
	requireContains(t, out, "FAIL")
}

func TestOutcomeErrorReportsMountErrors(t *testing.T) {
	clean := workflow.Summary{Record: ledger.Record{Outputs: []ledger.ItemRecord{
		{Upload: "proj_mri_upload", Outcome: ledger.OutcomeIntegrated},
		{Upload: "proj_eeg_upload", Outcome: ledger.OutcomeSkipped},
	}}}
	if err := outcomeError(clean); err != nil {
		t.Fatalf("expected no error for a clean run, got %v", err)
	}

	restoreFailed := workflow.Summary{Record: ledger.Record{Outputs: []ledger.ItemRecord{
		{Upload: "proj_mri_upload", Outcome: ledger.OutcomeIntegrated, Error: "share permission not restored"},
	}}}
	err := outcomeError(restoreFailed)
	if err == nil || !strings.Contains(err.Error(), "proj_mri_upload: share permission not restored") {
		t.Fatalf("expected mount error to surface, got %v", err)
	}
	if got := exitCode(err); got != exitFailure {
		t.Fatalf("exit code = %d, want %d", got, exitFailure)
	}

	internal := workflow.Summary{Counts: map[ledger.Outcome]int{ledger.OutcomeInternalError: 2}}
	if err := outcomeError(internal); err == nil || !strings.Contains(err.Error(), "2 mount(s)") {
		t.Fatalf("expected internal error count, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{runlock.ErrHeld, exitBusy},
		{faults.Wrap(faults.ErrAdmission, "admission", "naming", "bad", nil), exitFatal},
		{errors.New("mount failed"), exitFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
