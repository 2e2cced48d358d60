// Package remote defines the facade every caravel component uses to reach the
// shared-file service hosting the upload and collected mounts.
//
// Paths handed to a Store are slash-separated and relative to the store root,
// for example "proj_mri_upload/sub-01". Mutating calls return nil on success;
// a refusal by the service is reported as an error wrapping
// faults.ErrRejected so callers can classify it.
package remote

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Permission is the access level granted on a share.
type Permission int

const (
	// PermissionRead allows contributors to list and download only.
	PermissionRead Permission = iota + 1
	// PermissionAll restores full contributor access.
	PermissionAll
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionAll:
		return "all"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Share is a folder shared with an access-control group.
type Share struct {
	ID   string
	Name string
	// Path is the store-relative folder path of the share.
	Path string
	// Group is the group the folder is shared with, when known.
	Group string
}

// Group is an access-control group and its member user IDs.
type Group struct {
	Name    string
	Members []string
}

// User is a member account. Email may be empty.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Store is the single I/O boundary to the shared-file service.
type Store interface {
	ListShares(ctx context.Context) ([]Share, error)
	ListGroups(ctx context.Context) ([]string, error)
	GetGroup(ctx context.Context, name string) (Group, error)
	GetUser(ctx context.Context, id string) (User, error)
	Exists(ctx context.Context, remotePath string) (bool, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Delete(ctx context.Context, remotePath string) error
	Move(ctx context.Context, src, dst string, overwrite bool) error
	CreateDir(ctx context.Context, remotePath string) error
	SetPermission(ctx context.Context, shareID string, level Permission) error
}

// Join builds a store-relative path from a base and OS-independent segments.
func Join(base string, elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, Clean(base))
	for _, elem := range elems {
		parts = append(parts, strings.ReplaceAll(elem, "\\", "/"))
	}
	return Clean(path.Join(parts...))
}

// Clean normalizes a store path: forward slashes, no leading slash, no
// trailing slash. The root is "".
func Clean(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}
