package preflight

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caravel/internal/remote"
	"caravel/internal/remote/localfs"
	"caravel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadableFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "subjects.txt")
	if err := os.WriteFile(f, []byte("sub-01\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !CheckReadableFile("subjects", f).Passed {
		t.Fatal("expected pass for readable file")
	}
	if CheckReadableFile("subjects", filepath.Dir(f)).Passed {
		t.Fatal("expected failure for directory")
	}
}

type brokenStore struct{ remote.Store }

func (brokenStore) ListShares(context.Context) ([]remote.Share, error) {
	return nil, errors.New("connection refused")
}

func TestCheckRemote(t *testing.T) {
	store := localfs.New(t.TempDir(), localfs.Directory{})
	if result := CheckRemote(context.Background(), store); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	result := CheckRemote(context.Background(), brokenStore{})
	if result.Passed || !strings.Contains(result.Detail, "connection refused") {
		t.Fatalf("expected failure, got %+v", result)
	}
}

func smtpGreeter(t *testing.T, greeting string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, greeting+"\r\n")
		_, _ = io.Copy(io.Discard, conn)
	}()
	return ln.Addr().String()
}

func TestCheckSMTP(t *testing.T) {
	if result := CheckSMTP(context.Background(), smtpGreeter(t, "220 relay ready")); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckSMTP(context.Background(), smtpGreeter(t, "554 go away")); result.Passed {
		t.Fatal("expected failure on rejecting greeting")
	}
}

func TestRunAllCoversConfiguredChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	mount := filepath.Join(testsupport.BaseDir(cfg), "proj_mri_upload")
	testsupport.MkdirAll(t, mount)
	cfg.Project.Mounts = []string{mount, filepath.Join(testsupport.BaseDir(cfg), "missing_upload")}

	results := RunAll(context.Background(), cfg, localfs.New(t.TempDir(), localfs.Directory{}))
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	want := "Work directory,Mount proj_mri_upload,Mount missing_upload,Remote store"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("checks = %s, want %s", got, want)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Mount missing_upload" {
		t.Fatalf("unexpected failures %+v", failed)
	}
}
