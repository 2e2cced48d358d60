package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caravel/internal/fileutil"
)

const snapshotTimeFormat = "20060102T150405"

// Snapshot is a persisted index plus the instant it was taken.
type Snapshot struct {
	Project string    `json:"project"`
	Family  string    `json:"family"`
	Taken   time.Time `json:"taken"`
	Index   *Index    `json:"index"`
}

// SnapshotName returns "<project>_<family>_<stamp>.json".
func SnapshotName(project, family string, taken time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", project, family, taken.UTC().Format(snapshotTimeFormat))
}

// SaveSnapshot writes idx into dir and returns the file path.
func SaveSnapshot(dir, project, family string, taken time.Time, idx *Index) (string, error) {
	snap := Snapshot{Project: project, Family: family, Taken: taken.UTC(), Index: idx}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode layout snapshot: %w", err)
	}
	target := filepath.Join(dir, SnapshotName(project, family, taken))
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write layout snapshot: %w", err)
	}
	return target, nil
}

// LatestSnapshot loads the newest snapshot for project and family.
// It returns fs.ErrNotExist when none has been saved.
func LatestSnapshot(dir, project, family string) (*Snapshot, error) {
	prefix := project + "_" + family + "_"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var (
		newest     time.Time
		newestPath string
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		taken, err := time.Parse(snapshotTimeFormat, stamp)
		if err != nil {
			continue
		}
		if newestPath == "" || taken.After(newest) {
			newest = taken
			newestPath = filepath.Join(dir, name)
		}
	}
	if newestPath == "" {
		return nil, fmt.Errorf("no layout snapshot for %s/%s: %w", project, family, fs.ErrNotExist)
	}
	data, err := os.ReadFile(newestPath)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode layout snapshot %s: %w", newestPath, err)
	}
	if snap.Index == nil {
		return nil, errors.New("layout snapshot has no index")
	}
	return &snap, nil
}
