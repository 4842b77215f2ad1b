package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sourcery/internal/media"
)

const (
	allDebridBaseURL = "https://api.alldebrid.com/v4"
	allDebridAgent   = "sourcery"
)

// AllDebrid talks to the AllDebrid v4 API. File selection does not exist
// there; every file of a magnet is processed.
type AllDebrid struct {
	api *apiClient
}

var _ Service = (*AllDebrid)(nil)

// NewAllDebrid creates an AllDebrid client.
func NewAllDebrid(opts ServiceOptions) *AllDebrid {
	return &AllDebrid{api: newAPIClient("alldebrid", allDebridBaseURL, opts)}
}

func init() {
	RegisterService("alldebrid", func(opts ServiceOptions) Service {
		return NewAllDebrid(opts)
	})
}

func (a *AllDebrid) Name() string { return "alldebrid" }

type adResponse[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r adResponse[T]) err(op string) error {
	if r.Status == "success" {
		return nil
	}
	msg := "unknown error"
	if r.Error != nil {
		msg = r.Error.Code + ": " + r.Error.Message
	}
	return fmt.Errorf("alldebrid %s failed: %s", op, msg)
}

type adUpload struct {
	Magnets []struct {
		ID    int    `json:"id"`
		Hash  string `json:"hash"`
		Name  string `json:"name"`
		Ready bool   `json:"ready"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"magnets"`
}

type adStatus struct {
	ID         int        `json:"id"`
	Filename   string     `json:"filename"`
	Size       int64      `json:"size"`
	StatusCode int        `json:"statusCode"`
	Downloaded int64      `json:"downloaded"`
	Files      []adNode   `json:"files"`
	Links      []adV4Link `json:"links"`
}

// adNode is an entry of the v4.1 nested file tree.
type adNode struct {
	N string   `json:"n"`
	S int64    `json:"s"`
	L string   `json:"l"`
	E []adNode `json:"e"`
}

type adV4Link struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type adUnlock struct {
	Link    string `json:"link"`
	Delayed int    `json:"delayed"`
}

func (a *AllDebrid) form(kv ...string) url.Values {
	v := url.Values{"agent": {allDebridAgent}}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Add(kv[i], kv[i+1])
	}
	return v
}

// AddMagnet uploads a magnet with /magnet/upload.
func (a *AllDebrid) AddMagnet(ctx context.Context, magnet string) (string, error) {
	const endpoint = "/magnet/upload"
	resp, err := a.api.do(ctx, http.MethodPost, endpoint, nil, a.form("magnets[]", strings.TrimSpace(magnet)))
	if err != nil {
		return "", err
	}

	var out adResponse[adUpload]
	if err := a.api.decode(resp, endpoint, &out); err != nil {
		return "", err
	}
	if err := out.err("upload"); err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNotFound, err)
	}
	if len(out.Data.Magnets) == 0 {
		return "", fmt.Errorf("%w: alldebrid returned no magnet", media.ErrNotFound)
	}
	m := out.Data.Magnets[0]
	if m.Error != nil {
		return "", fmt.Errorf("%w: alldebrid rejected magnet: %s", media.ErrNotFound, m.Error.Message)
	}
	return strconv.Itoa(m.ID), nil
}

// Job reads the v4.1 /magnet/status endpoint, which returns a file tree.
func (a *AllDebrid) Job(ctx context.Context, id string) (*Job, error) {
	const endpoint = "/magnet/status"
	statusURL := strings.Replace(a.api.baseURL, "/v4", "/v4.1", 1)
	api := *a.api
	api.baseURL = statusURL

	resp, err := api.do(ctx, http.MethodGet, endpoint, a.form("id", id), nil)
	if err != nil {
		return nil, err
	}

	var out adResponse[struct {
		Magnets json.RawMessage `json:"magnets"`
	}]
	if err := api.decode(resp, endpoint, &out); err != nil {
		return nil, err
	}
	if err := out.err("status"); err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrNotFound, err)
	}

	var st adStatus
	raw := out.Data.Magnets
	switch {
	case len(raw) == 0:
		return nil, fmt.Errorf("%w: alldebrid magnet %s not found", media.ErrNotFound, id)
	case raw[0] == '[':
		var list []adStatus
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return nil, fmt.Errorf("%w: alldebrid magnet %s not found", media.ErrNotFound, id)
		}
		st = list[0]
	default:
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("%w: decode alldebrid status: %v", media.ErrTransport, err)
		}
	}

	job := &Job{ID: strconv.Itoa(st.ID), Status: allDebridStatus(st.StatusCode)}
	if st.Size > 0 {
		job.Progress = int(st.Downloaded * 100 / st.Size)
	}
	if job.Status == StatusDownloaded {
		job.Progress = 100
	}
	if len(st.Files) > 0 {
		flattenTree(st.Files, "", job)
	} else {
		for i, l := range st.Links {
			job.Files = append(job.Files, File{ID: i + 1, Path: l.Filename, Bytes: l.Size})
			job.Links = append(job.Links, l.Link)
		}
	}
	return job, nil
}

func flattenTree(nodes []adNode, base string, job *Job) {
	for _, n := range nodes {
		p := n.N
		if base != "" {
			p = base + "/" + n.N
		}
		switch {
		case len(n.E) > 0:
			flattenTree(n.E, p, job)
		case n.L != "":
			job.Files = append(job.Files, File{ID: len(job.Files) + 1, Path: p, Bytes: n.S})
			job.Links = append(job.Links, n.L)
		}
	}
}

// allDebridStatus maps statusCode: 0 queued, 1-3 in progress, 4 ready,
// 5-11 failures.
func allDebridStatus(code int) Status {
	switch {
	case code == 0:
		return StatusQueued
	case code >= 1 && code <= 3:
		return StatusDownloading
	case code == 4:
		return StatusDownloaded
	case code == 7 || code == 11:
		return StatusDead
	default:
		return StatusError
	}
}

// SelectFiles is a no-op.
func (a *AllDebrid) SelectFiles(context.Context, string, []int) error {
	return nil
}

// Unrestrict unlocks a hosted link with /link/unlock.
func (a *AllDebrid) Unrestrict(ctx context.Context, link string) (string, error) {
	const endpoint = "/link/unlock"
	resp, err := a.api.do(ctx, http.MethodPost, endpoint, nil, a.form("link", strings.TrimSpace(link)))
	if err != nil {
		return "", err
	}

	var out adResponse[adUnlock]
	if err := a.api.decode(resp, endpoint, &out); err != nil {
		return "", err
	}
	if err := out.err("unlock"); err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrNotFound, err)
	}
	if out.Data.Delayed > 0 || out.Data.Link == "" {
		return "", fmt.Errorf("%w: alldebrid link not ready (delayed %d)", media.ErrNotFound, out.Data.Delayed)
	}
	return out.Data.Link, nil
}

// Delete removes the magnet.
func (a *AllDebrid) Delete(ctx context.Context, id string) error {
	const endpoint = "/magnet/delete"
	resp, err := a.api.do(ctx, http.MethodPost, endpoint, nil, a.form("id", id))
	if err != nil {
		return err
	}
	var out adResponse[json.RawMessage]
	if err := a.api.decode(resp, endpoint, &out); err != nil {
		return err
	}
	return out.err("delete")
}
