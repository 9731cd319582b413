// Package realdebrid implements debrid.Client against the Real-Debrid REST
// API, the first concrete provider adapter named in spec.md §6
// (add_cloud_torrent's "real-debrid" argument, §8 scenario 5).
package realdebrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/debrid"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
)

const defaultBaseURL = "https://api.real-debrid.com/rest/1.0"

// Client talks to Real-Debrid's REST API on behalf of one API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New builds a client bound to a decrypted API key (read from
// internal/vault just before use; never retained beyond the call site that
// constructs this Client).
func New(apiKey string) *Client {
	return &Client{apiKey: apiKey, baseURL: defaultBaseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Name() string { return "real-debrid" }

// parseRetryAfter parses an HTTP Retry-After header value, which is either
// a delta in seconds or an HTTP-date (RFC 7231 §7.1.3), returning zero if v
// is empty, unparseable, or already in the past.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body *strings.Reader
	var req *http.Request
	var err error
	u := c.baseURL + path
	if method == http.MethodGet && form != nil {
		u += "?" + form.Encode()
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	} else {
		if form != nil {
			body = strings.NewReader(form.Encode())
		} else {
			body = strings.NewReader("")
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
		return errkind.Wrap(errkind.NetworkTransient, "real-debrid request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		err := errkind.Wrap(errkind.NetworkTransient, "rate limited, retry-after="+retryAfter, nil)
		err.RetryAfter = parseRetryAfter(retryAfter)
		return err
	}
	if resp.StatusCode >= 300 {
		return debrid.ClassifyStatus(resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Validate(ctx context.Context) (bool, error) {
	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	err := c.do(ctx, http.MethodGet, "/user", nil, &user)
	if err != nil {
		if errkind.Is(err, errkind.AuthFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type instantAvailabilityResponse map[string]map[string][]map[string][]struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

func (c *Client) CheckCache(ctx context.Context, infoHash string) (*debrid.CacheResult, error) {
	var resp instantAvailabilityResponse
	path := "/torrents/instantAvailability/" + strings.ToLower(infoHash)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	hosters, ok := resp[strings.ToLower(infoHash)]
	if !ok {
		return &debrid.CacheResult{IsCached: false}, nil
	}
	for _, variants := range hosters {
		for _, variant := range variants {
			files := make([]debrid.CacheFile, 0, len(variant))
			idx := 0
			for _, f := range variant {
				files = append(files, debrid.CacheFile{Index: idx, Path: f.Filename, Size: f.Filesize})
				idx++
			}
			if len(files) > 0 {
				return &debrid.CacheResult{IsCached: true, Files: files}, nil
			}
		}
	}
	return &debrid.CacheResult{IsCached: false}, nil
}

func (c *Client) Submit(ctx context.Context, magnetOrHash string) (string, error) {
	form := url.Values{}
	if strings.HasPrefix(magnetOrHash, "magnet:") {
		form.Set("magnet", magnetOrHash)
	} else {
		form.Set("magnet", "magnet:?xt=urn:btih:"+magnetOrHash)
	}
	var resp struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) SelectFiles(ctx context.Context, remoteID string, fileIndices []int) error {
	form := url.Values{}
	if len(fileIndices) == 0 {
		form.Set("files", "all")
	} else {
		parts := make([]string, len(fileIndices))
		for i, idx := range fileIndices {
			parts[i] = strconv.Itoa(idx)
		}
		form.Set("files", strings.Join(parts, ","))
	}
	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+remoteID, form, nil)
}

type torrentInfoResponse struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Speed    int64   `json:"speed"`
	Seeders  int     `json:"seeders"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
	Links []string `json:"links"`
}

func (c *Client) Progress(ctx context.Context, remoteID string) (*debrid.Progress, error) {
	var resp torrentInfoResponse
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+remoteID, nil, &resp); err != nil {
		return nil, err
	}
	return &debrid.Progress{
		Status:  mapStatus(resp.Status),
		Percent: resp.Progress,
		Speed:   resp.Speed,
		ETA:     debrid.ETAUnknown,
	}, nil
}

func mapStatus(s string) debrid.Status {
	switch s {
	case "magnet_conversion":
		return debrid.MagnetConversion
	case "waiting_files_selection":
		return debrid.WaitingFilesSelection
	case "queued":
		return debrid.Queued
	case "downloading":
		return debrid.Downloading
	case "downloaded":
		return debrid.Downloaded
	case "compressing":
		return debrid.Compressing
	case "uploading":
		return debrid.Uploading
	case "dead":
		return debrid.Dead
	case "error", "magnet_error", "virus":
		return debrid.Error
	default:
		return debrid.Error
	}
}

func (c *Client) Links(ctx context.Context, remoteID string) ([]debrid.DownloadLink, error) {
	var info torrentInfoResponse
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+remoteID, nil, &info); err != nil {
		return nil, err
	}
	out := make([]debrid.DownloadLink, 0, len(info.Links))
	selected := selectedFiles(info.Files)
	for i, link := range info.Links {
		var path string
		var size int64
		if i < len(selected) {
			path = selected[i].Path
			size = selected[i].Bytes
		}
		unrestricted, err := c.unrestrict(ctx, link)
		if err != nil {
			return nil, err
		}
		out = append(out, debrid.DownloadLink{Path: path, Size: size, URL: unrestricted})
	}
	return out, nil
}

func selectedFiles(files []struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}) []struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
} {
	out := files[:0:0]
	for _, f := range files {
		if f.Selected == 1 {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) unrestrict(ctx context.Context, link string) (string, error) {
	form := url.Values{"link": {link}}
	var resp struct {
		Download string `json:"download"`
	}
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", form, &resp); err != nil {
		return "", err
	}
	return resp.Download, nil
}

func (c *Client) List(ctx context.Context) ([]debrid.RemoteTransfer, error) {
	var resp []struct {
		ID       string  `json:"id"`
		Filename string  `json:"filename"`
		Hash     string  `json:"hash"`
		Status   string  `json:"status"`
		Progress float64 `json:"progress"`
	}
	if err := c.do(ctx, http.MethodGet, "/torrents", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]debrid.RemoteTransfer, len(resp))
	for i, t := range resp {
		out[i] = debrid.RemoteTransfer{
			ID:       t.ID,
			Name:     t.Filename,
			InfoHash: t.Hash,
			Status:   mapStatus(t.Status),
			Progress: t.Progress,
		}
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, remoteID string) error {
	return c.do(ctx, http.MethodDelete, "/torrents/delete/"+remoteID, nil, nil)
}
