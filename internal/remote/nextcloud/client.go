// Package nextcloud implements the remote facade against a Nextcloud server:
// files through WebDAV, and shares, groups and users through the OCS API.
package nextcloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"

	"caravel/internal/faults"
	"caravel/internal/remote"
)

const (
	component = "nextcloud"
	userAgent = "caravel/1"

	ocsSharesPath = "/ocs/v2.php/apps/files_sharing/api/v1/shares"
	ocsGroupsPath = "/ocs/v2.php/cloud/groups"
	ocsUsersPath  = "/ocs/v2.php/cloud/users"

	ocsPermissionRead = 1
	ocsPermissionAll  = 31
)

// Client talks to one Nextcloud account. File operations go through a
// WebDAV client rooted at the account's files; share, group and user
// lookups use the OCS API directly. The WebDAV client takes no context, so
// cancellation is honoured between file operations only.
type Client struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
	dav      *gowebdav.Client
}

var _ remote.Store = (*Client)(nil)

// New builds a client with a timeout-bound http.Client.
func New(baseURL, user, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return NewWithClient(baseURL, user, password, &http.Client{Timeout: timeout})
}

// NewWithClient builds a client whose WebDAV and OCS calls share the
// transport and timeout of httpClient.
func NewWithClient(baseURL, user, password string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	dav := gowebdav.NewClient(baseURL+"/remote.php/dav/files/"+user, user, password)
	if httpClient.Transport != nil {
		dav.SetTransport(httpClient.Transport)
	}
	dav.SetTimeout(httpClient.Timeout)
	// Credentials go out on every request, not after a 401 challenge.
	dav.SetHeader("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+password)))
	dav.SetHeader("User-Agent", userAgent)
	return &Client{
		baseURL:  baseURL,
		user:     user,
		password: password,
		client:   httpClient,
		dav:      dav,
	}
}

func rejected(op, msg string, err error) error {
	return faults.Wrap(faults.ErrRejected, component, op, msg, err)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

type ocsEnvelope struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
			Message    string `json:"message"`
		} `json:"meta"`
		Data json.RawMessage `json:"data"`
	} `json:"ocs"`
}

// ocs performs an OCS API call and decodes the data member into out.
func (c *Client) ocs(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	target := c.baseURL + endpoint
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	target += separator + "format=json"

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	var envelope ocsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode ocs response: %w", err)
	}
	if envelope.OCS.Meta.Status != "ok" {
		return fmt.Errorf("ocs status %d: %s", envelope.OCS.Meta.StatusCode, envelope.OCS.Meta.Message)
	}
	if out == nil || len(envelope.OCS.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.OCS.Data, out); err != nil {
		return fmt.Errorf("decode ocs data: %w", err)
	}
	return nil
}

type ocsShare struct {
	ID        json.Number `json:"id"`
	ShareType int         `json:"share_type"`
	ShareWith string      `json:"share_with"`
	Path      string      `json:"path"`
}

// shareTypeGroup is the OCS share_type for group shares.
const shareTypeGroup = 1

func (c *Client) ListShares(ctx context.Context) ([]remote.Share, error) {
	var data []ocsShare
	if err := c.ocs(ctx, http.MethodGet, ocsSharesPath, nil, &data); err != nil {
		return nil, rejected("list shares", "", err)
	}
	shares := make([]remote.Share, 0, len(data))
	for _, item := range data {
		cleaned := remote.Clean(item.Path)
		share := remote.Share{ID: item.ID.String(), Name: path.Base("/" + cleaned), Path: cleaned}
		if item.ShareType == shareTypeGroup {
			share.Group = item.ShareWith
		}
		shares = append(shares, share)
	}
	return shares, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]string, error) {
	var data struct {
		Groups []string `json:"groups"`
	}
	if err := c.ocs(ctx, http.MethodGet, ocsGroupsPath, nil, &data); err != nil {
		return nil, rejected("list groups", "", err)
	}
	return data.Groups, nil
}

func (c *Client) GetGroup(ctx context.Context, name string) (remote.Group, error) {
	var data struct {
		Users []string `json:"users"`
	}
	endpoint := ocsGroupsPath + "/" + url.PathEscape(name) + "/users"
	if err := c.ocs(ctx, http.MethodGet, endpoint, nil, &data); err != nil {
		return remote.Group{}, rejected("get group", name, err)
	}
	return remote.Group{Name: name, Members: data.Users}, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (remote.User, error) {
	var data struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayname"`
		Email       string `json:"email"`
	}
	if err := c.ocs(ctx, http.MethodGet, ocsUsersPath+"/"+url.PathEscape(id), nil, &data); err != nil {
		return remote.User{}, rejected("get user", id, err)
	}
	if data.ID == "" {
		data.ID = id
	}
	return remote.User{ID: data.ID, DisplayName: data.DisplayName, Email: strings.TrimSpace(data.Email)}, nil
}

func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := c.dav.Stat(remote.Clean(remotePath)); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, rejected("exists", remotePath, err)
	}
	return true, nil
}

func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return rejected("upload", localPath, err)
	}
	defer file.Close()
	if err := c.dav.WriteStream(remote.Clean(remotePath), file, 0o644); err != nil {
		return rejected("upload", remotePath, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if remote.Clean(remotePath) == "" {
		return rejected("delete", "refusing to delete the account root", nil)
	}
	if err := c.dav.Remove(remote.Clean(remotePath)); err != nil {
		return rejected("delete", remotePath, err)
	}
	return nil
}

func (c *Client) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dav.Rename(remote.Clean(src), remote.Clean(dst), overwrite); err != nil {
		return rejected("move", fmt.Sprintf("%s -> %s", src, dst), err)
	}
	return nil
}

// CreateDir creates one collection. MKCOL answers 405 when the collection
// already exists, which counts as success.
func (c *Client) CreateDir(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.dav.Mkdir(remote.Clean(remotePath), 0o755)
	if err != nil && !gowebdav.IsErrCode(err, http.StatusMethodNotAllowed) {
		return rejected("create dir", remotePath, err)
	}
	return nil
}

func (c *Client) SetPermission(ctx context.Context, shareID string, level remote.Permission) error {
	var value int
	switch level {
	case remote.PermissionRead:
		value = ocsPermissionRead
	case remote.PermissionAll:
		value = ocsPermissionAll
	default:
		return rejected("set permission", fmt.Sprintf("unsupported level %s", level), nil)
	}
	form := url.Values{"permissions": {strconv.Itoa(value)}}
	if err := c.ocs(ctx, http.MethodPut, ocsSharesPath+"/"+url.PathEscape(shareID), form, nil); err != nil {
		return rejected("set permission", shareID, err)
	}
	return nil
}
