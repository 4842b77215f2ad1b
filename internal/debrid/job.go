// Package debrid resolves torrents to direct file URLs through a debrid
// service: candidates come from Stremio-style torrent addons, are submitted
// as magnets, polled until cached and finally unrestricted.
package debrid

import (
	"path"
	"strings"

	"sourcery/internal/media"
)

// Status is the service-agnostic lifecycle state of a Job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusSelecting   Status = "selecting-files"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"

	// Terminal failures.
	StatusError            Status = "error"
	StatusDead             Status = "dead"
	StatusVirus            Status = "virus"
	StatusMagnetError      Status = "magnet_error"
	StatusMagnetConversion Status = "magnet_conversion"
)

// Failed reports whether s is a terminal failure.
func (s Status) Failed() bool {
	switch s {
	case StatusError, StatusDead, StatusVirus, StatusMagnetError, StatusMagnetConversion:
		return true
	}
	return false
}

// File is one file inside a torrent.
type File struct {
	ID    int
	Path  string
	Bytes int64
}

// Ext returns the lower-cased extension without the dot.
func (f File) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(f.Path)), ".")
}

// Job is the state of one magnet on the debrid service.
type Job struct {
	ID       string
	Status   Status
	Progress int
	Files    []File
	Links    []string
}

// Apply moves the job to the polled state next. A job in a terminal failure
// state never changes again.
func (j *Job) Apply(next Job) {
	if j.Status.Failed() {
		return
	}
	id := j.ID
	*j = next
	if j.ID == "" {
		j.ID = id
	}
	j.Progress = max(0, min(100, j.Progress))
}

// Candidate is a torrent found by an addon.
type Candidate struct {
	// Magnet is a full magnet URI or a bare info hash.
	Magnet string
	Hash   string
	// Source names the addon the candidate came from.
	Source  string
	Title   string
	Bucket  media.Quality
	Seeders int
	Size    int64
}
