package debrid

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sourcery/internal/media"
)

const realDebridBaseURL = "https://api.real-debrid.com/rest/1.0"

// RealDebrid talks to the Real-Debrid REST API.
type RealDebrid struct {
	api *apiClient
}

var _ Service = (*RealDebrid)(nil)

// NewRealDebrid creates a Real-Debrid client.
func NewRealDebrid(opts ServiceOptions) *RealDebrid {
	return &RealDebrid{api: newAPIClient("realdebrid", realDebridBaseURL, opts)}
}

func init() {
	RegisterService("realdebrid", func(opts ServiceOptions) Service {
		return NewRealDebrid(opts)
	})
}

func (r *RealDebrid) Name() string { return "realdebrid" }

type rdAddMagnet struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type rdTorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Links    []string `json:"links"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
}

type rdUnrestrict struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Download string `json:"download"`
}

// AddMagnet posts the magnet to /torrents/addMagnet.
func (r *RealDebrid) AddMagnet(ctx context.Context, magnet string) (string, error) {
	const endpoint = "/torrents/addMagnet"
	resp, err := r.api.do(ctx, http.MethodPost, endpoint, nil, url.Values{"magnet": {strings.TrimSpace(magnet)}})
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("%w: realdebrid rejected magnet: %s", media.ErrNotFound, snippet(resp.Body))
	}

	var out rdAddMagnet
	if err := r.api.decode(resp, endpoint, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: realdebrid returned no torrent id", media.ErrNotFound)
	}
	return out.ID, nil
}

// Job reads /torrents/info/{id}.
func (r *RealDebrid) Job(ctx context.Context, id string) (*Job, error) {
	endpoint := "/torrents/info/" + url.PathEscape(id)
	resp, err := r.api.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	var info rdTorrentInfo
	if err := r.api.decode(resp, endpoint, &info); err != nil {
		return nil, err
	}

	job := &Job{
		ID:       info.ID,
		Status:   realDebridStatus(info.Status),
		Progress: int(info.Progress),
		Links:    info.Links,
	}
	for _, f := range info.Files {
		job.Files = append(job.Files, File{ID: f.ID, Path: f.Path, Bytes: f.Bytes})
	}
	return job, nil
}

func realDebridStatus(s string) Status {
	switch s {
	case "waiting_files_selection":
		return StatusSelecting
	case "queued":
		return StatusQueued
	case "downloading", "compressing", "uploading":
		return StatusDownloading
	case "downloaded":
		return StatusDownloaded
	case "magnet_error":
		return StatusMagnetError
	case "magnet_conversion":
		return StatusMagnetConversion
	case "virus":
		return StatusVirus
	case "dead":
		return StatusDead
	default:
		return StatusError
	}
}

// SelectFiles posts the chosen ids, or "all".
func (r *RealDebrid) SelectFiles(ctx context.Context, id string, fileIDs []int) error {
	endpoint := "/torrents/selectFiles/" + url.PathEscape(id)
	files := "all"
	if len(fileIDs) > 0 {
		parts := make([]string, len(fileIDs))
		for i, fid := range fileIDs {
			parts[i] = strconv.Itoa(fid)
		}
		files = strings.Join(parts, ",")
	}

	resp, err := r.api.do(ctx, http.MethodPost, endpoint, nil, url.Values{"files": {files}})
	if err != nil {
		return err
	}
	return r.api.decode(resp, endpoint, nil)
}

// Unrestrict posts to /unrestrict/link, preferring the download URL.
func (r *RealDebrid) Unrestrict(ctx context.Context, link string) (string, error) {
	const endpoint = "/unrestrict/link"
	resp, err := r.api.do(ctx, http.MethodPost, endpoint, nil, url.Values{"link": {strings.TrimSpace(link)}})
	if err != nil {
		return "", err
	}

	var out rdUnrestrict
	if err := r.api.decode(resp, endpoint, &out); err != nil {
		return "", err
	}
	direct := out.Download
	if direct == "" {
		direct = out.Link
	}
	if direct == "" {
		return "", fmt.Errorf("%w: realdebrid returned no download url", media.ErrNotFound)
	}
	return direct, nil
}

// Delete removes the torrent from the account.
func (r *RealDebrid) Delete(ctx context.Context, id string) error {
	endpoint := "/torrents/delete/" + url.PathEscape(id)
	resp, err := r.api.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil {
		return err
	}
	return r.api.decode(resp, endpoint, nil)
}
