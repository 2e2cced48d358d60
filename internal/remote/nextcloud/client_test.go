package nextcloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"caravel/internal/faults"
	"caravel/internal/remote"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeServer) record(r *http.Request) recordedRequest {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{method: r.Method, path: r.URL.EscapedPath(), header: r.Header.Clone(), body: string(body)}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := f.record(r)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="Nextcloud"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasPrefix(rec.path, "/ocs/"):
			if r.Header.Get("OCS-APIRequest") != "true" || r.URL.Query().Get("format") != "json" {
				t.Errorf("missing OCS headers on %s", rec.path)
			}
			f.serveOCS(w, r, rec)
		case rec.method == "PROPFIND":
			if strings.HasSuffix(rec.path, "/modB-upload/.caravel-lock") {
				w.Header().Set("Content-Type", "application/xml; charset=utf-8")
				w.WriteHeader(http.StatusMultiStatus)
				_, _ = io.WriteString(w, multistatus(rec.path))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case rec.method == http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		case rec.method == "MKCOL":
			if strings.HasSuffix(rec.path, "/modB-collected/rawdata") {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case rec.method == "MOVE":
			if rec.header.Get("Overwrite") == "F" && strings.HasSuffix(rec.header.Get("Destination"), "/sub-01") {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case rec.method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func multistatus(href string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>` + href + `</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>.caravel-lock</d:displayname>
        <d:getcontentlength>0</d:getcontentlength>
        <d:getlastmodified>Wed, 04 Mar 2026 05:06:07 GMT</d:getlastmodified>
        <d:resourcetype/>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`
}

func (f *fakeServer) serveOCS(w http.ResponseWriter, r *http.Request, rec recordedRequest) {
	w.Header().Set("Content-Type", "application/json")
	ok := func(data string) {
		_, _ = io.WriteString(w, `{"ocs":{"meta":{"status":"ok","statuscode":200,"message":"OK"},"data":`+data+`}}`)
	}
	switch {
	case rec.path == "/ocs/v2.php/apps/files_sharing/api/v1/shares" && r.Method == http.MethodGet:
		ok(`[{"id":"12","share_type":1,"share_with":"modB-upload","path":"/modB-upload"},{"id":13,"share_type":0,"share_with":"bob","path":"/notes"}]`)
	case rec.path == "/ocs/v2.php/apps/files_sharing/api/v1/shares/12" && r.Method == http.MethodPut:
		ok(`{}`)
	case rec.path == "/ocs/v2.php/cloud/groups":
		ok(`{"groups":["admin","modB-upload"]}`)
	case rec.path == "/ocs/v2.php/cloud/groups/modB-upload/users":
		ok(`{"users":["alice","bob"]}`)
	case rec.path == "/ocs/v2.php/cloud/users/alice":
		ok(`{"id":"alice","displayname":"Alice","email":"alice@example.org"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ocs":{"meta":{"status":"failure","statuscode":404,"message":"not found"},"data":[]}}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	return NewWithClient(server.URL+"/", "svc", "secret", server.Client()), fake
}

func TestListSharesAndGroups(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	shares, err := client.ListShares(ctx)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %+v", shares)
	}
	if shares[0] != (remote.Share{ID: "12", Name: "modB-upload", Path: "modB-upload", Group: "modB-upload"}) {
		t.Fatalf("unexpected group share %+v", shares[0])
	}
	if shares[1].ID != "13" || shares[1].Group != "" {
		t.Fatalf("numeric ids must decode and user shares carry no group, got %+v", shares[1])
	}

	groups, err := client.ListGroups(ctx)
	if err != nil || len(groups) != 2 {
		t.Fatalf("ListGroups: %v %v", groups, err)
	}
	group, err := client.GetGroup(ctx, "modB-upload")
	if err != nil || len(group.Members) != 2 {
		t.Fatalf("GetGroup: %+v %v", group, err)
	}
	user, err := client.GetUser(ctx, "alice")
	if err != nil || user.Email != "alice@example.org" {
		t.Fatalf("GetUser: %+v %v", user, err)
	}
	if _, err := client.GetUser(ctx, "ghost"); !errors.Is(err, faults.ErrRejected) {
		t.Fatalf("expected rejected error for unknown user, got %v", err)
	}
}

func TestWebDAVOperations(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "modB-upload/.caravel-lock")
	if err != nil || !exists {
		t.Fatalf("expected lock to exist, got %v %v", exists, err)
	}
	exists, err = client.Exists(ctx, "modB-upload/.caravel-missing")
	if err != nil || exists {
		t.Fatalf("expected missing path to be absent, got %v %v", exists, err)
	}

	local := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(local, []byte(`{"naming":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := client.Upload(ctx, local, "modB-upload/report.json"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := client.CreateDir(ctx, "modB-collected/sub 02"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if err := client.CreateDir(ctx, "modB-collected/rawdata"); err != nil {
		t.Fatalf("CreateDir on an existing collection: %v", err)
	}
	if err := client.Move(ctx, "modB-upload/sub-02", "modB-collected/sub-02", false); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := client.Move(ctx, "modB-upload/sub-01", "modB-collected/sub-01", false); !errors.Is(err, faults.ErrRejected) {
		t.Fatalf("expected rejected move, got %v", err)
	}
	if err := client.Delete(ctx, "modB-upload/report.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := client.Delete(ctx, ""); err == nil {
		t.Fatal("expected refusal to delete root")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var sawPut, sawMkcol bool
	for _, req := range fake.requests {
		switch req.method {
		case http.MethodPut:
			sawPut = sawPut || (req.path == "/remote.php/dav/files/svc/modB-upload/report.json" && req.body == `{"naming":[]}`)
		case "MKCOL":
			sawMkcol = sawMkcol || req.path == "/remote.php/dav/files/svc/modB-collected/sub%2002"
		case "MOVE":
			if req.header.Get("Authorization") == "" {
				t.Errorf("MOVE sent without credentials")
			}
		}
	}
	if !sawPut || !sawMkcol {
		t.Fatalf("expected escaped PUT and MKCOL paths, got %+v", fake.requests)
	}
}

func TestSetPermissionSendsOCSLevel(t *testing.T) {
	client, fake := newTestClient(t)
	if err := client.SetPermission(context.Background(), "12", remote.PermissionRead); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if err := client.SetPermission(context.Background(), "99", remote.PermissionAll); !errors.Is(err, faults.ErrRejected) {
		t.Fatalf("expected rejection for unknown share, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.requests[0].body; got != "permissions=1" {
		t.Fatalf("unexpected permission body %q", got)
	}
}

func TestBadCredentialsAreRejected(t *testing.T) {
	fake := &fakeServer{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()
	client := NewWithClient(server.URL, "svc", "wrong", server.Client())
	if _, err := client.ListShares(context.Background()); !errors.Is(err, faults.ErrRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if _, err := client.Exists(context.Background(), "modB-upload"); !errors.Is(err, faults.ErrRejected) {
		t.Fatalf("expected rejected WebDAV error, got %v", err)
	}
}
