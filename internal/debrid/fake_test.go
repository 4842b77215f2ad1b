package debrid

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"sourcery/internal/media"
)

// fakeService replays a scripted sequence of job states per magnet. The job
// id equals the magnet string.
type fakeService struct {
	mu         sync.Mutex
	scripts    map[string][]Job
	reject     map[string]bool
	polls      map[string]int
	selections map[string][][]int
	deleted    []string
	// block makes Job wait for ctx when the magnet's script is exhausted.
	block map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{
		scripts:    map[string][]Job{},
		reject:     map[string]bool{},
		polls:      map[string]int{},
		selections: map[string][][]int{},
		block:      map[string]bool{},
	}
}

func (f *fakeService) Name() string { return "fake" }

func (f *fakeService) AddMagnet(_ context.Context, magnet string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[magnet] {
		return "", fmt.Errorf("%w: rejected", media.ErrNotFound)
	}
	return magnet, nil
}

func (f *fakeService) Job(ctx context.Context, id string) (*Job, error) {
	f.mu.Lock()
	script := f.scripts[id]
	n := f.polls[id]
	f.polls[id] = n + 1
	block := f.block[id]
	f.mu.Unlock()

	if len(script) == 0 {
		return nil, fmt.Errorf("%w: unknown job %s", media.ErrNotFound, id)
	}
	if n >= len(script) && block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	j := script[min(n, len(script)-1)]
	j.ID = id
	return &j, nil
}

func (f *fakeService) SelectFiles(_ context.Context, id string, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections[id] = append(f.selections[id], ids)
	return nil
}

func (f *fakeService) Unrestrict(_ context.Context, link string) (string, error) {
	return "https://direct.example/" + link, nil
}

func (f *fakeService) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) pollCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
