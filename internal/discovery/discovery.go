// Package discovery snapshots the shares and groups of the remote store once
// per run so admission can resolve mounts without repeated listing calls.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"caravel/internal/faults"
	"caravel/internal/logging"
	"caravel/internal/remote"
)

// Directory maps share names to shares and group names to memberships.
type Directory struct {
	store  remote.Store
	logger *slog.Logger

	shares map[string]remote.Share
	groups map[string]struct{}

	members map[string][]string
	users   map[string]remote.User
}

// Discover lists shares and groups. Listing failures are configuration
// errors: the run cannot admit anything without them.
func Discover(ctx context.Context, store remote.Store, logger *slog.Logger) (*Directory, error) {
	logger = logging.NewComponentLogger(logger, "discovery")

	shares, err := store.ListShares(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "discovery", "list shares", "remote store did not list shares", err)
	}
	groups, err := store.ListGroups(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "discovery", "list groups", "remote store did not list groups", err)
	}

	dir := &Directory{
		store:   store,
		logger:  logger,
		shares:  make(map[string]remote.Share, len(shares)),
		groups:  make(map[string]struct{}, len(groups)),
		members: make(map[string][]string),
		users:   make(map[string]remote.User),
	}
	for _, share := range shares {
		if _, dup := dir.shares[share.Name]; dup {
			// Group shares win over user shares of the same folder.
			if share.Group == "" {
				continue
			}
		}
		dir.shares[share.Name] = share
	}
	for _, group := range groups {
		dir.groups[group] = struct{}{}
	}
	logger.Info("remote directory discovered",
		logging.Int("shares", len(dir.shares)),
		logging.Int("groups", len(dir.groups)),
	)
	return dir, nil
}

// Share returns the share registered under name.
func (d *Directory) Share(name string) (remote.Share, bool) {
	share, ok := d.shares[name]
	return share, ok
}

// HasGroup reports whether an access-control group named name exists.
func (d *Directory) HasGroup(name string) bool {
	_, ok := d.groups[name]
	return ok
}

// ShareNames returns the discovered share names in sorted order.
func (d *Directory) ShareNames() []string {
	names := make([]string, 0, len(d.shares))
	for name := range d.shares {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recipients resolves the mail addresses of a group's members. Members with
// no address on file are left out.
func (d *Directory) Recipients(ctx context.Context, groupName string) ([]string, error) {
	members, ok := d.members[groupName]
	if !ok {
		group, err := d.store.GetGroup(ctx, groupName)
		if err != nil {
			return nil, err
		}
		members = group.Members
		d.members[groupName] = members
	}

	seen := make(map[string]struct{}, len(members))
	addresses := make([]string, 0, len(members))
	for _, id := range members {
		user, ok := d.users[id]
		if !ok {
			var err error
			user, err = d.store.GetUser(ctx, id)
			if err != nil {
				return nil, err
			}
			d.users[id] = user
		}
		email := strings.TrimSpace(user.Email)
		if email == "" {
			d.logger.Debug("group member has no mail address",
				logging.String("group", groupName),
				logging.String("user", id),
			)
			continue
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		addresses = append(addresses, email)
	}
	sort.Strings(addresses)
	return addresses, nil
}
