// Package media defines the shared query, stream and error types for the
// sourcery resolution engine.
package media

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// MediaType represents whether content is a movie or TV show.
type MediaType int

const (
	Movie MediaType = iota
	Show
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case Show:
		return "show"
	default:
		return "unknown"
	}
}

// ParseMediaType maps a user-supplied kind onto a MediaType.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return Movie, nil
	case "show", "tv", "series", "shows":
		return Show, nil
	default:
		return Movie, fmt.Errorf("unknown media type %q", s)
	}
}

// Query identifies the media item being resolved. It is passed by value and
// never mutated during a resolution pass.
type Query struct {
	Type    MediaType
	Title   string
	Year    int
	IMDBID  string // e.g. "tt0111161"
	TMDBID  string
	Season  int // Show only
	Episode int // Show only
}

// IsShow reports whether the query targets an episode.
func (q Query) IsShow() bool {
	return q.Type == Show
}

// Validate checks that the query carries enough information to resolve.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Title) == "" && q.IMDBID == "" && q.TMDBID == "" {
		return fmt.Errorf("query needs a title or an external id")
	}
	if q.IsShow() && (q.Season <= 0 || q.Episode <= 0) {
		return fmt.Errorf("show query needs season and episode, got S%dE%d", q.Season, q.Episode)
	}
	return nil
}

func (q Query) String() string {
	if q.IsShow() {
		return fmt.Sprintf("%s S%02dE%02d", q.Title, q.Season, q.Episode)
	}
	if q.Year > 0 {
		return fmt.Sprintf("%s (%d)", q.Title, q.Year)
	}
	return q.Title
}

// Flag is a capability tag carried by providers and streams.
type Flag string

const (
	// FlagCORSAllowed means the player can fetch the stream directly.
	FlagCORSAllowed Flag = "cors-allowed"
	// FlagIPLocked means the stream must be played from the IP that resolved it.
	FlagIPLocked Flag = "ip-locked"
)

// StreamType tags the Stream union.
type StreamType string

const (
	StreamFile StreamType = "file"
	StreamHLS  StreamType = "hls"
)

// File is one quality rendition of a file stream.
type File struct {
	Type string `json:"type"` // container, e.g. "mp4"
	URL  string `json:"url"`
}

// Caption is a subtitle track attached to a stream.
type Caption struct {
	Type     string `json:"type"` // "srt" or "vtt"
	URL      string `json:"url"`
	Language string `json:"language"`
}

// Stream is a playable stream descriptor. Type selects which of Qualities
// (file) or Playlist (hls) is populated.
type Stream struct {
	ID        string            `json:"id"`
	Type      StreamType        `json:"type"`
	Qualities map[Quality]File  `json:"qualities,omitempty"`
	Playlist  string            `json:"playlist,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Captions  []Caption         `json:"captions"`
	Flags     []Flag            `json:"flags"`

	// Set by the orchestrator.
	SourcererID string `json:"sourcererId,omitempty"`
	EmbedID     string `json:"embedId,omitempty"`
}

// NewFileStream builds a file stream, normalizing quality labels. When
// several labels normalize to the same quality, the lexically smallest one
// wins.
func NewFileStream(id string, files map[string]File) Stream {
	qualities := make(map[Quality]File, len(files))
	for _, label := range slices.Sorted(maps.Keys(files)) {
		f := files[label]
		if f.URL == "" {
			continue
		}
		q := NormalizeQuality(label)
		if _, taken := qualities[q]; taken {
			continue
		}
		qualities[q] = f
	}
	return Stream{ID: id, Type: StreamFile, Qualities: qualities, Captions: []Caption{}}
}

// NewHLSStream builds an HLS stream for a playlist URL.
func NewHLSStream(id, playlist string) Stream {
	return Stream{ID: id, Type: StreamHLS, Playlist: playlist, Captions: []Caption{}}
}

// Playable reports whether the stream points at something a player can open.
func (s Stream) Playable() bool {
	switch s.Type {
	case StreamHLS:
		return s.Playlist != ""
	case StreamFile:
		return len(s.Qualities) > 0
	default:
		return false
	}
}

// HasFlag reports whether the stream carries f.
func (s Stream) HasFlag(f Flag) bool {
	return slices.Contains(s.Flags, f)
}

// EmbedRef points at an embed provider able to resolve url.
type EmbedRef struct {
	EmbedID string
	URL     string
}

// Result is what a sourcerer or embed returns. Both lists empty means the
// provider found nothing.
type Result struct {
	Streams []Stream
	Embeds  []EmbedRef
}

// Empty reports whether the result carries neither streams nor embeds.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Streams) == 0 && len(r.Embeds) == 0)
}
