package testsupport

import (
	"path/filepath"
	"testing"

	"caravel/internal/admission"
	"caravel/internal/remote/localfs"
)

// Fixture is an on-disk store root holding upload/collected mount pairs,
// served through the localfs backend.
type Fixture struct {
	Root      string
	Directory localfs.Directory
	Store     *localfs.Store
}

// NewFixture creates an upload and collected directory for every upload
// name, a same-named group whose members are "<name>-owner" (with a mail
// address) and "nomail" (without one).
func NewFixture(t testing.TB, uploadNames ...string) *Fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "store")
	dir := localfs.Directory{
		Users: []localfs.DirectoryUser{{ID: "nomail", DisplayName: "No Mail"}},
	}
	for _, name := range uploadNames {
		MkdirAll(t, filepath.Join(root, name))
		MkdirAll(t, filepath.Join(root, admission.CollectedName(name)))
		owner := name + "-owner"
		dir.Groups = append(dir.Groups, localfs.DirectoryGroup{Name: name, Members: []string{owner, "nomail"}})
		dir.Users = append(dir.Users, localfs.DirectoryUser{ID: owner, Email: OwnerAddress(name)})
	}
	return &Fixture{Root: root, Directory: dir, Store: localfs.New(root, dir)}
}

// OwnerAddress is the mail address NewFixture assigns to a mount's owner.
func OwnerAddress(uploadName string) string {
	return uploadName + "-owner@example.org"
}

// UploadDir returns the local path of an upload mount.
func (f *Fixture) UploadDir(name string) string {
	return filepath.Join(f.Root, name)
}

// CollectDir returns the local path of the collected mount paired with name.
func (f *Fixture) CollectDir(name string) string {
	return filepath.Join(f.Root, admission.CollectedName(name))
}

// WriteSubject writes a minimal valid subject tree (anatomical image plus
// sidecar) below rel inside the upload mount.
func (f *Fixture) WriteSubject(t testing.TB, uploadName, rel string) {
	t.Helper()
	subject := filepath.Base(rel)
	anat := filepath.Join(f.UploadDir(uploadName), filepath.FromSlash(rel), "anat")
	WriteFile(t, filepath.Join(anat, subject+"_T1w.nii.gz"), "nifti")
	WriteFile(t, filepath.Join(anat, subject+"_T1w.json"), `{"RepetitionTime": 2.0}`)
}
