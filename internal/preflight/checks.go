package preflight

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"caravel/internal/remote"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies a regular file can be read.
func CheckReadableFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckRemote verifies the remote store answers a share listing.
func CheckRemote(ctx context.Context, store remote.Store) Result {
	const name = "Remote store"

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	shares, err := store.ListShares(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d shares)", len(shares))}
}

// CheckSMTP verifies the relay at addr accepts a connection and greets with 220.
func CheckSMTP(ctx context.Context, addr string) Result {
	const name = "SMTP relay"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", addr, summarizeNetError(err))}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	greeting, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no greeting: %v)", addr, err)}
	}
	if !strings.HasPrefix(greeting, "220") {
		return Result{Name: name, Detail: fmt.Sprintf("%s (unexpected greeting %q)", addr, strings.TrimSpace(greeting))}
	}
	_, _ = conn.Write([]byte("QUIT\r\n"))
	return Result{Name: name, Passed: true, Detail: addr}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
