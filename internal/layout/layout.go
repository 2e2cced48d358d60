// Package layout indexes the file tree of an upload or collected mount.
//
// File names follow the BIDS entity convention
// (sub-<label>[_ses-<label>][_task-<label>][_run-<index>]_<suffix><ext>).
// Files are attributed to one of the top-level layouts sourcedata, rawdata,
// derivatives or phenotype when they live below a directory of that name,
// and to the root layout otherwise.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Layouts recognised below a mount root.
const (
	LayoutRoot        = ""
	LayoutSourcedata  = "sourcedata"
	LayoutRawdata     = "rawdata"
	LayoutDerivatives = "derivatives"
	LayoutPhenotype   = "phenotype"
)

// KnownLayouts lists the named layouts in their canonical order.
var KnownLayouts = []string{LayoutSourcedata, LayoutRawdata, LayoutDerivatives, LayoutPhenotype}

// Entity keys accepted by Values and Filter.
const (
	KeySubject   = "subject"
	KeySession   = "session"
	KeyTask      = "task"
	KeyRun       = "run"
	KeySuffix    = "suffix"
	KeyExtension = "extension"
)

var entityPrefixes = map[string]string{
	"sub":  KeySubject,
	"ses":  KeySession,
	"task": KeyTask,
	"run":  KeyRun,
}

// File is one indexed file.
type File struct {
	// Path is slash-separated and relative to the indexed root.
	Path      string `json:"path"`
	Layout    string `json:"layout,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Session   string `json:"session,omitempty"`
	Task      string `json:"task,omitempty"`
	Run       string `json:"run,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
	Extension string `json:"extension,omitempty"`
	Size      int64  `json:"size"`
}

// Entity returns the value of key for the file, or "".
func (f File) Entity(key string) string {
	switch key {
	case KeySubject:
		return f.Subject
	case KeySession:
		return f.Session
	case KeyTask:
		return f.Task
	case KeyRun:
		return f.Run
	case KeySuffix:
		return f.Suffix
	case KeyExtension:
		return f.Extension
	default:
		return ""
	}
}

// Index is the structured view of a mount consumed by validators.
type Index struct {
	Root  string `json:"root"`
	Files []File `json:"files"`
}

// Build walks root and indexes every regular file. Hidden entries are
// skipped, which keeps lock and sentinel markers out of the index.
func Build(root string) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index %s: not a directory", root)
	}
	idx := &Index{Root: root}
	walkErr := filepath.WalkDir(root, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if current == root {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		fileInfo, err := entry.Info()
		if err != nil {
			return err
		}
		file := ParseFile(filepath.ToSlash(rel))
		file.Size = fileInfo.Size()
		idx.Files = append(idx.Files, file)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("index %s: %w", root, walkErr)
	}
	sort.Slice(idx.Files, func(i, j int) bool { return idx.Files[i].Path < idx.Files[j].Path })
	return idx, nil
}

// ParseFile extracts layout and entities from a slash-separated relative path.
func ParseFile(rel string) File {
	file := File{Path: rel}
	segments := strings.Split(rel, "/")
	if len(segments) > 1 && isKnownLayout(segments[0]) {
		file.Layout = segments[0]
	}

	base := path.Base(rel)
	stem, ext := splitExtension(base)
	file.Extension = ext

	tokens := strings.Split(stem, "_")
	for i, token := range tokens {
		key, value, ok := strings.Cut(token, "-")
		if ok {
			if entity, known := entityPrefixes[key]; known && value != "" {
				file.setEntity(entity, value)
				continue
			}
		}
		if i == len(tokens)-1 && file.Subject != "" {
			file.Suffix = token
		}
	}
	if file.Subject == "" {
		// Subject directories carry the entity when the name does not.
		for _, segment := range segments[:len(segments)-1] {
			if label, ok := strings.CutPrefix(segment, "sub-"); ok && label != "" {
				file.Subject = label
				break
			}
		}
	}
	return file
}

func (f *File) setEntity(key, value string) {
	switch key {
	case KeySubject:
		f.Subject = value
	case KeySession:
		f.Session = value
	case KeyTask:
		f.Task = value
	case KeyRun:
		f.Run = value
	}
}

func splitExtension(base string) (string, string) {
	for _, double := range []string{".nii.gz", ".tsv.gz", ".tar.gz"} {
		if strings.HasSuffix(base, double) {
			return strings.TrimSuffix(base, double), double
		}
	}
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func isKnownLayout(name string) bool {
	for _, known := range KnownLayouts {
		if name == known {
			return true
		}
	}
	return false
}

// Layouts returns the named layouts present in the index.
func (i *Index) Layouts() []string {
	present := make(map[string]bool)
	for _, file := range i.Files {
		if file.Layout != "" {
			present[file.Layout] = true
		}
	}
	var out []string
	for _, known := range KnownLayouts {
		if present[known] {
			out = append(out, known)
		}
	}
	return out
}

// Keys lists the entity keys carrying at least one value in the index.
func (i *Index) Keys() []string {
	var keys []string
	for _, key := range []string{KeySubject, KeySession, KeyTask, KeyRun, KeySuffix, KeyExtension} {
		if len(i.Values(key)) > 0 {
			keys = append(keys, key)
		}
	}
	return keys
}

// ErrUnknownKey is returned by Filter for unsupported entity keys.
var ErrUnknownKey = errors.New("unknown layout key")

// CheckKey returns ErrUnknownKey unless key is an entity key.
func CheckKey(key string) error {
	switch key {
	case KeySubject, KeySession, KeyTask, KeyRun, KeySuffix, KeyExtension:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
}

// Values lists the distinct non-empty values of key, sorted.
func (i *Index) Values(key string) []string {
	seen := make(map[string]struct{})
	for _, file := range i.Files {
		if value := file.Entity(key); value != "" {
			seen[value] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for value := range seen {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// Subjects is shorthand for Values(KeySubject).
func (i *Index) Subjects() []string {
	return i.Values(KeySubject)
}

// Filter returns the files of layoutName (use LayoutRoot for files outside
// any named layout, "*" for all) whose entities equal every rule.
func (i *Index) Filter(layoutName string, rules map[string]string) ([]File, error) {
	for key := range rules {
		if err := CheckKey(key); err != nil {
			return nil, err
		}
	}
	var out []File
	for _, file := range i.Files {
		if layoutName != "*" && file.Layout != layoutName {
			continue
		}
		match := true
		for key, want := range rules {
			if file.Entity(key) != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, file)
		}
	}
	return out, nil
}
