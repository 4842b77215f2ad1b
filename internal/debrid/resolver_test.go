package debrid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcery/internal/media"
)

var testFiles = []File{
	{ID: 1, Path: "Title.2019.720p.mp4", Bytes: 100 * mb},
	{ID: 2, Path: "Title.2019.1080p.mp4", Bytes: 200 * mb},
	{ID: 3, Path: "sample.mp4", Bytes: 5 * mb},
}

func instantResolver(svc Service, cfg PollConfig) *Resolver {
	r := NewResolver(svc, cfg, quietLog())
	r.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func TestResolverHappyPath(t *testing.T) {
	svc := newFakeService()
	svc.scripts["m1"] = []Job{
		{Status: StatusSelecting, Files: testFiles},
		{Status: StatusDownloading, Progress: 50},
		{Status: StatusDownloaded, Progress: 100, Links: []string{"movie.mkv"}},
	}

	r := instantResolver(svc, DefaultPollConfig())
	s, err := r.Resolve(context.Background(), Candidate{Magnet: "m1", Bucket: media.Quality1080}, "Title")
	require.NoError(t, err)

	assert.Equal(t, "debrid-1080", s.ID)
	assert.Equal(t, media.StreamFile, s.Type)
	require.Contains(t, s.Qualities, media.Quality1080)
	assert.Equal(t, media.File{Type: "mkv", URL: "https://direct.example/movie.mkv"}, s.Qualities[media.Quality1080])
	assert.Equal(t, [][]int{{2}}, svc.selections["m1"])
	assert.Equal(t, 3, svc.pollCount("m1"))
	assert.Empty(t, svc.deleted)
}

func TestResolverAlreadyCached(t *testing.T) {
	svc := newFakeService()
	svc.scripts["m1"] = []Job{{Status: StatusDownloaded, Links: []string{"x/video"}}}

	r := instantResolver(svc, DefaultPollConfig())
	s, err := r.Resolve(context.Background(), Candidate{Magnet: "m1", Bucket: media.Quality720}, "Title")
	require.NoError(t, err)
	assert.Equal(t, "mp4", s.Qualities[media.Quality720].Type)
	assert.Equal(t, 1, svc.pollCount("m1"))
	assert.Empty(t, svc.selections["m1"])
}

func TestResolverTerminalStateIsNotRetried(t *testing.T) {
	for _, status := range []Status{StatusDead, StatusVirus, StatusMagnetError, StatusMagnetConversion, StatusError} {
		t.Run(string(status), func(t *testing.T) {
			svc := newFakeService()
			svc.scripts["m1"] = []Job{
				{Status: StatusQueued},
				{Status: status},
				{Status: StatusDownloaded, Links: []string{"never"}},
			}

			r := instantResolver(svc, DefaultPollConfig())
			_, err := r.Resolve(context.Background(), Candidate{Magnet: "m1", Bucket: media.Quality1080}, "Title")
			require.Error(t, err)
			assert.True(t, errors.Is(err, media.ErrNotFound))
			assert.Equal(t, 2, svc.pollCount("m1"))
			assert.Equal(t, []string{"m1"}, svc.deleted)
		})
	}
}

func TestResolverRejectedMagnet(t *testing.T) {
	svc := newFakeService()
	svc.reject["m1"] = true

	r := instantResolver(svc, DefaultPollConfig())
	_, err := r.Resolve(context.Background(), Candidate{Magnet: "m1"}, "Title")
	assert.True(t, errors.Is(err, media.ErrNotFound))
	assert.Zero(t, svc.pollCount("m1"))
}

func TestResolverReselectsOnceWhenStalled(t *testing.T) {
	svc := newFakeService()
	svc.scripts["m1"] = []Job{{Status: StatusDownloading, Progress: 0, Files: testFiles}}

	cfg := PollConfig{Interval: time.Millisecond, InitialAttempts: 5, MainAttempts: 6, StallThreshold: 2}
	r := instantResolver(svc, cfg)
	_, err := r.Resolve(context.Background(), Candidate{Magnet: "m1", Bucket: media.Quality1080}, "Title")

	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrTimeout))
	assert.Len(t, svc.selections["m1"], 1)
	assert.Equal(t, 1+cfg.MainAttempts, svc.pollCount("m1"))
}

func TestResolverProgressResetsStall(t *testing.T) {
	svc := newFakeService()
	svc.scripts["m1"] = []Job{
		{Status: StatusDownloading, Files: testFiles},
		{Status: StatusDownloading},
		{Status: StatusDownloading, Progress: 10},
		{Status: StatusDownloading},
		{Status: StatusDownloaded, Links: []string{"a.mp4"}},
	}

	cfg := PollConfig{Interval: time.Millisecond, InitialAttempts: 5, MainAttempts: 10, StallThreshold: 2}
	r := instantResolver(svc, cfg)
	_, err := r.Resolve(context.Background(), Candidate{Magnet: "m1", Bucket: media.Quality1080}, "Title")
	require.NoError(t, err)
	assert.Empty(t, svc.selections["m1"])
}

func TestResolverStopsPollingOnCancel(t *testing.T) {
	svc := newFakeService()
	svc.scripts["m1"] = []Job{{Status: StatusDownloading, Progress: 10}}

	cfg := PollConfig{Interval: 20 * time.Millisecond, InitialAttempts: 5, MainAttempts: 1000, StallThreshold: 5}
	r := NewResolver(svc, cfg, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(60*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Resolve(ctx, Candidate{Magnet: "m1", Bucket: media.Quality1080}, "Title")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	polls := svc.pollCount("m1")
	time.Sleep(3 * cfg.Interval)
	assert.Equal(t, polls, svc.pollCount("m1"), "no polls after cancellation")
	assert.Empty(t, svc.deleted)
}
