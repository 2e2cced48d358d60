// Package admission turns candidate mount paths into WorkItems.
//
// Every refusal other than an existing lock marker is an admission error
// wrapping faults.ErrAdmission, which aborts the run: it points at a
// misconfigured mount, not at bad content.
package admission

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"caravel/internal/discovery"
	"caravel/internal/faults"
	"caravel/internal/lock"
	"caravel/internal/logging"
	"caravel/internal/remote"
)

// Decision tells the caller what to do with a candidate mount.
type Decision int

const (
	Admitted Decision = iota
	SkippedLocked
)

func (d Decision) String() string {
	if d == SkippedLocked {
		return "skipped_locked"
	}
	return "admitted"
}

// Result is the outcome of admitting one mount.
type Result struct {
	Decision Decision
	Item     WorkItem
}

// Admitter validates candidate mounts against the discovered remote directory.
type Admitter struct {
	store     remote.Store
	directory *discovery.Directory
	locks     *lock.Manager
	scratch   string
	logger    *slog.Logger
}

// NewAdmitter wires the admission checks. scratchDir holds the staged sentinel file.
func NewAdmitter(store remote.Store, directory *discovery.Directory, locks *lock.Manager, scratchDir string, logger *slog.Logger) *Admitter {
	return &Admitter{
		store:     store,
		directory: directory,
		locks:     locks,
		scratch:   scratchDir,
		logger:    logging.NewComponentLogger(logger, "admission"),
	}
}

func reject(operation, message string, err error) error {
	return faults.Wrap(faults.ErrAdmission, "admission", operation, message, err)
}

// Admit runs the admission checks for one local mount path.
func (a *Admitter) Admit(ctx context.Context, mountPath string) (Result, error) {
	uploadDir := filepath.Clean(mountPath)
	uploadName := filepath.Base(uploadDir)
	ctx = logging.WithMount(ctx, uploadName)
	logger := logging.WithContext(ctx, a.logger)

	if !HasUploadSuffix(uploadName) {
		return Result{}, reject("naming", fmt.Sprintf("mount %q does not end in _%s or -%s", uploadName, UploadSuffix, UploadSuffix), nil)
	}
	family := FamilyOf(uploadName)

	share, ok := a.directory.Share(uploadName)
	if !ok {
		return Result{}, reject("share", fmt.Sprintf("no share registered for %q", uploadName), nil)
	}
	uploadRemote := remote.Clean(share.Path)
	markerPath := remote.Join(uploadRemote, lock.MarkerName)

	locked, err := a.locks.IsLocked(ctx, markerPath)
	if err != nil {
		return Result{}, reject("lock", "check lock marker", err)
	}
	if locked {
		logging.WarnWithContext(logger, "mount skipped: lock marker present", "mount_locked",
			logging.String(logging.FieldFamily, family),
			logging.String(logging.FieldErrorHint, "run `caravel unlock` once the previous report has been handled"),
			logging.String(logging.FieldImpact, "mount not processed this run"),
		)
		return Result{Decision: SkippedLocked, Item: WorkItem{UploadName: uploadName, UploadDir: uploadDir, Family: family, LockMarkerPath: markerPath}}, nil
	}

	collectName := CollectedName(uploadName)
	collectDir := filepath.Join(filepath.Dir(uploadDir), collectName)
	info, err := os.Stat(collectDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return Result{}, reject("collected", fmt.Sprintf("collected directory %s missing", collectDir), err)
	}

	if !a.directory.HasGroup(uploadName) {
		return Result{}, reject("group", fmt.Sprintf("no group registered for %q", uploadName), nil)
	}
	recipients, err := a.directory.Recipients(ctx, uploadName)
	if err != nil {
		return Result{}, reject("group", "resolve group members", err)
	}

	if err := a.roundTrip(ctx, uploadDir, uploadRemote); err != nil {
		return Result{}, err
	}

	item := WorkItem{
		UploadName:      uploadName,
		UploadDir:       uploadDir,
		CollectName:     collectName,
		CollectDir:      collectDir,
		UploadRemote:    uploadRemote,
		CollectRemote:   remote.Join(path.Dir(uploadRemote), collectName),
		LockMarkerPath:  markerPath,
		ShareID:         share.ID,
		Family:          family,
		NotifyAddresses: recipients,
	}
	logger.Info("mount admitted",
		logging.String(logging.FieldFamily, family),
		logging.Int("recipients", len(recipients)),
	)
	return Result{Decision: Admitted, Item: item}, nil
}

// roundTrip uploads a zero-byte marker through the store and requires it to
// show up in the local mount, which proves the mount is bound to the
// expected remote folder.
func (a *Admitter) roundTrip(ctx context.Context, uploadDir, uploadRemote string) error {
	local, err := lock.StageEmpty(a.scratch, "sentinel-*")
	if err != nil {
		return faults.Wrap(faults.ErrInternal, "admission", "sentinel", "stage sentinel marker", err)
	}
	defer os.Remove(local)

	remotePath := remote.Join(uploadRemote, SentinelMarkerName)
	if err := a.store.Upload(ctx, local, remotePath); err != nil {
		return reject("sentinel", "upload sentinel marker", err)
	}

	_, statErr := os.Stat(filepath.Join(uploadDir, SentinelMarkerName))
	deleteErr := a.store.Delete(ctx, remotePath)

	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return reject("sentinel", fmt.Sprintf("sentinel marker not visible in %s; mount is not bound to %s", uploadDir, uploadRemote), nil)
		}
		return reject("sentinel", "stat sentinel marker", statErr)
	}
	if deleteErr != nil {
		return reject("sentinel", "delete sentinel marker", deleteErr)
	}
	return nil
}
