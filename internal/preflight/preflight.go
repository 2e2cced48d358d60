package preflight

import (
	"context"
	"net"
	"strconv"
	"strings"

	"caravel/internal/config"
	"caravel/internal/remote"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, store remote.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	for _, mount := range cfg.Project.Mounts {
		results = append(results, CheckDirectoryAccess("Mount "+lastElem(mount), mount))
	}
	if cfg.Project.SubjectsFile != "" {
		results = append(results, CheckReadableFile("Subjects file", cfg.Project.SubjectsFile))
	}
	if store != nil {
		results = append(results, CheckRemote(ctx, store))
	}
	if cfg.Mail.Enabled {
		addr := net.JoinHostPort(cfg.Mail.SMTPHost, strconv.Itoa(cfg.Mail.SMTPPort))
		results = append(results, CheckSMTP(ctx, addr))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func lastElem(path string) string {
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
