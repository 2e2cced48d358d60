// Package localfs serves the remote facade from a directory tree mounted on
// the local host. Groups and users come from a TOML directory file; share
// permissions are tracked in memory for the lifetime of the Store.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"caravel/internal/faults"
	"caravel/internal/fileutil"
	"caravel/internal/remote"
)

const component = "localfs"

// Directory lists the groups, users and shares known to the store.
type Directory struct {
	Groups []DirectoryGroup `toml:"group"`
	Users  []DirectoryUser  `toml:"user"`
	Shares []DirectoryShare `toml:"share"`
}

type DirectoryGroup struct {
	Name    string   `toml:"name"`
	Members []string `toml:"members"`
}

type DirectoryUser struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Email       string `toml:"email"`
}

type DirectoryShare struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Path  string `toml:"path"`
	Group string `toml:"group"`
}

// LoadDirectory parses a directory file.
func LoadDirectory(path string) (Directory, error) {
	var dir Directory
	data, err := os.ReadFile(path)
	if err != nil {
		return dir, fmt.Errorf("read directory file: %w", err)
	}
	if err := toml.Unmarshal(data, &dir); err != nil {
		return dir, fmt.Errorf("parse directory file: %w", err)
	}
	return dir, nil
}

// Store implements remote.Store on a local directory.
type Store struct {
	root      string
	directory Directory

	mu          sync.Mutex
	permissions map[string]remote.Permission
}

var _ remote.Store = (*Store)(nil)

// New returns a store rooted at root.
func New(root string, directory Directory) *Store {
	return &Store{
		root:        root,
		directory:   directory,
		permissions: make(map[string]remote.Permission),
	}
}

// Permission returns the last level set on a share; shares never touched
// report PermissionAll.
func (s *Store) Permission(shareID string) remote.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level, ok := s.permissions[shareID]; ok {
		return level
	}
	return remote.PermissionAll
}

func (s *Store) abs(remotePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(remote.Clean(remotePath)))
}

func rejected(op, msg string, err error) error {
	return faults.Wrap(faults.ErrRejected, component, op, msg, err)
}

// ListShares returns the configured shares, or one share per top-level
// directory when the directory file declares none.
func (s *Store) ListShares(ctx context.Context) ([]remote.Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.directory.Shares) > 0 {
		shares := make([]remote.Share, 0, len(s.directory.Shares))
		for _, share := range s.directory.Shares {
			p := share.Path
			if p == "" {
				p = share.Name
			}
			id := share.ID
			if id == "" {
				id = share.Name
			}
			shares = append(shares, remote.Share{ID: id, Name: share.Name, Path: remote.Clean(p), Group: share.Group})
		}
		return shares, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, rejected("list shares", "read store root", err)
	}
	var shares []remote.Share
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		shares = append(shares, remote.Share{ID: entry.Name(), Name: entry.Name(), Path: entry.Name(), Group: entry.Name()})
	}
	return shares, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.directory.Groups))
	for _, group := range s.directory.Groups {
		names = append(names, group.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) GetGroup(ctx context.Context, name string) (remote.Group, error) {
	if err := ctx.Err(); err != nil {
		return remote.Group{}, err
	}
	for _, group := range s.directory.Groups {
		if group.Name == name {
			return remote.Group{Name: group.Name, Members: append([]string(nil), group.Members...)}, nil
		}
	}
	return remote.Group{}, rejected("get group", fmt.Sprintf("group %q not found", name), nil)
}

func (s *Store) GetUser(ctx context.Context, id string) (remote.User, error) {
	if err := ctx.Err(); err != nil {
		return remote.User{}, err
	}
	for _, user := range s.directory.Users {
		if user.ID == id {
			return remote.User{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
		}
	}
	return remote.User{}, rejected("get user", fmt.Sprintf("user %q not found", id), nil)
}

func (s *Store) Exists(ctx context.Context, remotePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Lstat(s.abs(remotePath))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, rejected("exists", remotePath, err)
}

func (s *Store) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.abs(remotePath)
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		return rejected("upload", "parent of "+remotePath, err)
	}
	if err := fileutil.CopyFileVerified(localPath, target); err != nil {
		return rejected("upload", remotePath, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if remote.Clean(remotePath) == "" {
		return rejected("delete", "refusing to delete the store root", nil)
	}
	target := s.abs(remotePath)
	if _, err := os.Lstat(target); err != nil {
		return rejected("delete", remotePath, err)
	}
	if err := os.RemoveAll(target); err != nil {
		return rejected("delete", remotePath, err)
	}
	return nil
}

func (s *Store) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, to := s.abs(src), s.abs(dst)
	if _, err := os.Lstat(from); err != nil {
		return rejected("move", src, err)
	}
	if _, err := os.Lstat(to); err == nil {
		if !overwrite {
			return rejected("move", fmt.Sprintf("destination %s exists", dst), nil)
		}
		if err := os.RemoveAll(to); err != nil {
			return rejected("move", "replace "+dst, err)
		}
	}
	if err := fileutil.MovePath(from, to); err != nil {
		return rejected("move", fmt.Sprintf("%s -> %s", src, dst), err)
	}
	return nil
}

// CreateDir creates a single directory; the parent must exist.
func (s *Store) CreateDir(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Mkdir(s.abs(remotePath), 0o755); err != nil {
		return rejected("create dir", remotePath, err)
	}
	return nil
}

func (s *Store) SetPermission(ctx context.Context, shareID string, level remote.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if level != remote.PermissionRead && level != remote.PermissionAll {
		return rejected("set permission", fmt.Sprintf("unsupported level %s", level), nil)
	}
	s.mu.Lock()
	s.permissions[shareID] = level
	s.mu.Unlock()
	return nil
}
