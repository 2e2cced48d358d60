package discovery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"caravel/internal/discovery"
	"caravel/internal/faults"
	"caravel/internal/logging"
	"caravel/internal/remote/localfs"
)

func newStore(t *testing.T) *localfs.Store {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proj_mri_upload"), 0o755); err != nil {
		t.Fatal(err)
	}
	return localfs.New(root, localfs.Directory{
		Groups: []localfs.DirectoryGroup{{Name: "proj_mri_upload", Members: []string{"carol", "alice", "bob", "dave"}}},
		Users: []localfs.DirectoryUser{
			{ID: "alice", Email: "alice@example.org"},
			{ID: "bob"},
			{ID: "carol", Email: "carol@example.org"},
			{ID: "dave", Email: "Alice@example.org"},
		},
	})
}

func TestDiscoverBuildsMaps(t *testing.T) {
	dir, err := discovery.Discover(context.Background(), newStore(t), logging.NewNop())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	share, ok := dir.Share("proj_mri_upload")
	if !ok || share.Path != "proj_mri_upload" {
		t.Fatalf("expected share, got %+v %v", share, ok)
	}
	if !dir.HasGroup("proj_mri_upload") || dir.HasGroup("other") {
		t.Fatal("unexpected group membership answer")
	}
	if diff := cmp.Diff([]string{"proj_mri_upload"}, dir.ShareNames()); diff != "" {
		t.Fatalf("share names mismatch (-want +got):\n%s", diff)
	}
}

func TestRecipientsSkipsMembersWithoutMail(t *testing.T) {
	dir, err := discovery.Discover(context.Background(), newStore(t), logging.NewNop())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got, err := dir.Recipients(context.Background(), "proj_mri_upload")
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	want := []string{"alice@example.org", "carol@example.org"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverFailsAsConfigurationError(t *testing.T) {
	store := localfs.New(filepath.Join(t.TempDir(), "missing"), localfs.Directory{})
	_, err := discovery.Discover(context.Background(), store, logging.NewNop())
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
