package media

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuality(t *testing.T) {
	tests := []struct {
		input string
		want  Quality
	}{
		{"1080p", Quality1080},
		{"1080", Quality1080},
		{"720P", Quality720},
		{"480p", Quality480},
		{"360", Quality360},
		{"2160p", Quality4K},
		{"4K", Quality4K},
		{"UHD", Quality4K},
		{"auto", QualityUnknown},
		{"HD", QualityUnknown},
		{"", QualityUnknown},
		{"240p", QualityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuality(tt.input))
		})
	}
}

func TestNewFileStreamNormalizesKeys(t *testing.T) {
	s := NewFileStream("x", map[string]File{
		"1080p":  {Type: "mp4", URL: "https://a/1080.mp4"},
		"2160p":  {Type: "mp4", URL: "https://a/4k.mp4"},
		"weird":  {Type: "mp4", URL: "https://a/unknown.mp4"},
		"720p":   {Type: "mp4", URL: ""},
		"Ultra?": {Type: "mp4", URL: "https://a/other.mp4"},
	})

	require.Equal(t, StreamFile, s.Type)
	assert.Len(t, s.Qualities, 3)
	assert.Contains(t, s.Qualities, Quality1080)
	assert.Contains(t, s.Qualities, Quality4K)
	assert.Contains(t, s.Qualities, QualityUnknown)
	assert.NotContains(t, s.Qualities, Quality720)

	q, f, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, Quality4K, q)
	assert.Equal(t, "https://a/4k.mp4", f.URL)
}

func TestNewFileStreamDeterministic(t *testing.T) {
	files := map[string]File{
		"1080p":   {Type: "mp4", URL: "https://a/1080p.mp4"},
		"1080":    {Type: "mp4", URL: "https://a/1080.mp4"},
		"FHD":     {Type: "mp4", URL: "https://a/fhd.mp4"},
		"mystery": {Type: "mp4", URL: "https://a/mystery.mp4"},
		"Auto":    {Type: "mp4", URL: "https://a/auto.mp4"},
		"720":     {Type: "mp4", URL: ""},
		"720p":    {Type: "mp4", URL: "https://a/720p.mp4"},
	}

	for range 50 {
		s := NewFileStream("x", files)
		assert.Equal(t, "https://a/1080.mp4", s.Qualities[Quality1080].URL)
		assert.Equal(t, "https://a/auto.mp4", s.Qualities[QualityUnknown].URL)
		assert.Equal(t, "https://a/720p.mp4", s.Qualities[Quality720].URL, "empty URLs never win")
	}
}

func TestStreamHasFlag(t *testing.T) {
	s := Stream{Flags: []Flag{FlagCORSAllowed}}
	assert.True(t, s.HasFlag(FlagCORSAllowed))
	assert.False(t, s.HasFlag(FlagIPLocked))
	assert.False(t, Stream{}.HasFlag(FlagIPLocked))
}

func TestStreamJSONShape(t *testing.T) {
	s := NewHLSStream("hls-1", "https://cdn/master.m3u8")
	s.Flags = []Flag{FlagCORSAllowed}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "hls", got["type"])
	assert.Equal(t, "https://cdn/master.m3u8", got["playlist"])
	assert.NotContains(t, got, "qualities")
	assert.Equal(t, []any{}, got["captions"])
	assert.Equal(t, []any{"cors-allowed"}, got["flags"])
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"not found", fmt.Errorf("search: %w", ErrNotFound), KindNotFound},
		{"deobfuscation", fmt.Errorf("%w: bad table", ErrDeobfuscation), KindDeobfuscation},
		{"decryption", fmt.Errorf("%w: tag", ErrDecryption), KindDecryption},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"transport", fmt.Errorf("%w: reset", ErrTransport), KindTransport},
		{"config", ErrConfiguration, KindConfiguration},
		{"other", fmt.Errorf("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(ErrNotFound))
	assert.True(t, Recoverable(fmt.Errorf("x: %w", ErrDecryption)))
	assert.False(t, Recoverable(ErrTransport))
	assert.False(t, Recoverable(fmt.Errorf("boom")))
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, Query{Type: Movie, Title: "Example"}.Validate())
	assert.NoError(t, Query{Type: Movie, IMDBID: "tt0000001"}.Validate())
	assert.Error(t, Query{Type: Movie}.Validate())
	assert.Error(t, Query{Type: Show, Title: "Example"}.Validate())
	assert.NoError(t, Query{Type: Show, Title: "Example", Season: 1, Episode: 2}.Validate())
}
