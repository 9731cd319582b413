// Package torbox implements debrid.Client against the TorBox REST API, the
// second provider adapter named in spec.md §3 (Credential entry
// "provider-name" examples include torbox) and §8 scenario 5's cache-probe
// table.
package torbox

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/debrid"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
)

const defaultBaseURL = "https://api.torbox.app/v1/api"

// Client talks to TorBox's REST API on behalf of one API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(apiKey string) *Client {
	return &Client{apiKey: apiKey, baseURL: defaultBaseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Name() string { return "torbox" }

type envelope struct {
	Success bool            `json:"success"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	u := c.baseURL + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		if form != nil {
			u += "?" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	} else {
		body := strings.NewReader("")
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err = http.NewRequestWithContext(ctx, method, u, body)
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.NetworkTransient, "torbox request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return debrid.ClassifyStatus(resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.Success {
		return errkind.New(errkind.FatalProvider, env.Detail)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) Validate(ctx context.Context) (bool, error) {
	var v struct {
		ID int64 `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/user/me", nil, &v)
	if err != nil {
		if errkind.Is(err, errkind.AuthFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) CheckCache(ctx context.Context, infoHash string) (*debrid.CacheResult, error) {
	var resp map[string]struct {
		Files []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"files"`
	}
	form := url.Values{"hash": {strings.ToLower(infoHash)}, "format": {"object"}}
	if err := c.doJSON(ctx, http.MethodGet, "/torrents/checkcached", form, &resp); err != nil {
		return nil, err
	}
	entry, ok := resp[strings.ToLower(infoHash)]
	if !ok {
		return &debrid.CacheResult{IsCached: false}, nil
	}
	files := make([]debrid.CacheFile, len(entry.Files))
	for i, f := range entry.Files {
		files[i] = debrid.CacheFile{Index: i, Path: f.Name, Size: f.Size}
	}
	return &debrid.CacheResult{IsCached: true, Files: files}, nil
}

func (c *Client) Submit(ctx context.Context, magnetOrHash string) (string, error) {
	magnet := magnetOrHash
	if !strings.HasPrefix(magnet, "magnet:") {
		magnet = "magnet:?xt=urn:btih:" + magnet
	}

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("magnet", magnet)
	_ = mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/torrents/createtorrent", strings.NewReader(buf.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errkind.Wrap(errkind.NetworkTransient, "torbox submit failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", debrid.ClassifyStatus(resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", errkind.New(errkind.FatalProvider, env.Detail)
	}
	var data struct {
		TorrentID int64 `json:"torrent_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", err
	}
	return strconv.FormatInt(data.TorrentID, 10), nil
}

// SelectFiles is a no-op for TorBox: files become available immediately
// after the torrent is cached, with no separate selection step (§4.J notes
// "required by some providers before links materialize" — TorBox isn't
// one of them).
func (c *Client) SelectFiles(ctx context.Context, remoteID string, fileIndices []int) error {
	return nil
}

type torrentInfo struct {
	ID            int64   `json:"id"`
	DownloadState string  `json:"download_state"`
	Progress      float64 `json:"progress"`
	DownloadSpeed int64   `json:"download_speed"`
	ETA           int64   `json:"eta"`
	Files         []struct {
		ID        int64  `json:"id"`
		ShortName string `json:"short_name"`
		Size      int64  `json:"size"`
	} `json:"files"`
}

func (c *Client) info(ctx context.Context, remoteID string) (*torrentInfo, error) {
	var resp torrentInfo
	form := url.Values{"id": {remoteID}, "bypass_cache": {"true"}}
	if err := c.doJSON(ctx, http.MethodGet, "/torrents/mylist", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Progress(ctx context.Context, remoteID string) (*debrid.Progress, error) {
	info, err := c.info(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	eta := debrid.ETAUnknown
	if info.ETA > 0 {
		eta = time.Duration(info.ETA) * time.Second
	}
	return &debrid.Progress{
		Status:  mapState(info.DownloadState),
		Percent: info.Progress * 100,
		Speed:   info.DownloadSpeed,
		ETA:     eta,
	}, nil
}

func mapState(s string) debrid.Status {
	switch strings.ToLower(s) {
	case "downloading", "metadl", "checking":
		return debrid.Downloading
	case "completed", "uploading":
		return debrid.Downloaded
	case "cached":
		return debrid.Downloaded
	case "queued":
		return debrid.Queued
	case "stalled", "stalled (no seeds)":
		return debrid.Dead
	case "error":
		return debrid.Error
	default:
		return debrid.Downloading
	}
}

func (c *Client) Links(ctx context.Context, remoteID string) ([]debrid.DownloadLink, error) {
	info, err := c.info(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	out := make([]debrid.DownloadLink, 0, len(info.Files))
	for _, f := range info.Files {
		link, err := c.requestDownloadLink(ctx, remoteID, strconv.FormatInt(f.ID, 10))
		if err != nil {
			return nil, err
		}
		out = append(out, debrid.DownloadLink{Path: f.ShortName, Size: f.Size, URL: link})
	}
	return out, nil
}

func (c *Client) requestDownloadLink(ctx context.Context, torrentID, fileID string) (string, error) {
	var link string
	form := url.Values{"torrent_id": {torrentID}, "file_id": {fileID}, "token": {c.apiKey}}
	if err := c.doJSON(ctx, http.MethodGet, "/torrents/requestdl", form, &link); err != nil {
		return "", err
	}
	return link, nil
}

func (c *Client) List(ctx context.Context) ([]debrid.RemoteTransfer, error) {
	var resp []torrentInfo
	if err := c.doJSON(ctx, http.MethodGet, "/torrents/mylist", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]debrid.RemoteTransfer, len(resp))
	for i, t := range resp {
		out[i] = debrid.RemoteTransfer{
			ID:       strconv.FormatInt(t.ID, 10),
			Status:   mapState(t.DownloadState),
			Progress: t.Progress * 100,
		}
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, remoteID string) error {
	form := url.Values{"torrent_id": {remoteID}}
	return c.doJSON(ctx, http.MethodPost, "/torrents/controltorrent", form, nil)
}
