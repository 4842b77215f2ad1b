package debrid

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sourcery/internal/media"
)

// PollConfig bounds the poll loops. The thresholds are tunable; the
// defaults poll every 2s, wait up to 5 polls for file selection and 30 for
// completion, and re-select files once after 5 stalled polls.
type PollConfig struct {
	Interval        time.Duration
	InitialAttempts int
	MainAttempts    int
	StallThreshold  int
}

// DefaultPollConfig returns the standard thresholds.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:        2 * time.Second,
		InitialAttempts: 5,
		MainAttempts:    30,
		StallThreshold:  5,
	}
}

// Resolver drives one candidate through the debrid job lifecycle.
type Resolver struct {
	svc  Service
	cfg  PollConfig
	log  *logrus.Entry
	wait func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a Resolver for svc.
func NewResolver(svc Service, cfg PollConfig, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{svc: svc, cfg: cfg, log: log, wait: sleep}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve submits c, waits for the job to finish and returns a file stream
// keyed by the candidate's bucket. Terminal job failures wrap
// media.ErrNotFound; running out of polls wraps media.ErrTimeout.
func (r *Resolver) Resolve(ctx context.Context, c Candidate, title string) (media.Stream, error) {
	log := r.log.WithFields(logrus.Fields{"bucket": c.Bucket, "hash": c.Hash})

	id, err := r.svc.AddMagnet(ctx, c.Magnet)
	if err != nil {
		return media.Stream{}, fmt.Errorf("submit %s: %w", c.Bucket, err)
	}
	log = log.WithField("job", id)
	log.Debug("magnet submitted")

	job := &Job{ID: id, Status: StatusQueued}
	stream, err := r.run(ctx, job, c, title, log)
	if err != nil && ctx.Err() == nil {
		r.abandon(ctx, id, log)
	}
	return stream, err
}

func (r *Resolver) abandon(ctx context.Context, id string, log *logrus.Entry) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.svc.Delete(dctx, id); err != nil {
		log.WithError(err).Debug("could not delete abandoned job")
	}
}

// poll refreshes job and fails fast on terminal states.
func (r *Resolver) poll(ctx context.Context, job *Job) error {
	next, err := r.svc.Job(ctx, job.ID)
	if err != nil {
		return err
	}
	job.Apply(*next)
	if job.Status.Failed() {
		return fmt.Errorf("%w: debrid job %s ended with status %s", media.ErrNotFound, job.ID, job.Status)
	}
	return nil
}

func (r *Resolver) selectFiles(ctx context.Context, job *Job, title string, log *logrus.Entry) error {
	chosen := ChooseFiles(job.Files, title)
	ids := fileIDs(chosen)
	if len(chosen) == len(job.Files) {
		ids = nil
	}
	log.WithField("files", len(chosen)).Debug("selecting files")
	return r.svc.SelectFiles(ctx, job.ID, ids)
}

func (r *Resolver) run(ctx context.Context, job *Job, c Candidate, title string, log *logrus.Entry) (media.Stream, error) {
	selected := false

	// Wait for the service to list files so a selection can be made.
	for attempt := 0; attempt < r.cfg.InitialAttempts; attempt++ {
		if err := r.poll(ctx, job); err != nil {
			return media.Stream{}, err
		}
		if job.Status == StatusSelecting {
			if err := r.selectFiles(ctx, job, title, log); err != nil {
				return media.Stream{}, err
			}
			selected = true
			break
		}
		if job.Status == StatusDownloading || job.Status == StatusDownloaded {
			break
		}
		if err := r.wait(ctx, r.cfg.Interval); err != nil {
			return media.Stream{}, err
		}
	}

	stalled := 0
	reselected := false
	for attempt := 0; attempt < r.cfg.MainAttempts; attempt++ {
		if job.Status == StatusDownloaded && len(job.Links) > 0 {
			return r.finish(ctx, job, c)
		}
		if err := r.wait(ctx, r.cfg.Interval); err != nil {
			return media.Stream{}, err
		}
		if err := r.poll(ctx, job); err != nil {
			return media.Stream{}, err
		}

		switch {
		case job.Status == StatusSelecting && !selected:
			if err := r.selectFiles(ctx, job, title, log); err != nil {
				return media.Stream{}, err
			}
			selected = true
		case job.Status == StatusDownloading && job.Progress == 0:
			stalled++
			if stalled >= r.cfg.StallThreshold && !reselected {
				log.WithField("polls", stalled).Info("debrid job stalled; re-selecting files")
				if err := r.selectFiles(ctx, job, title, log); err != nil {
					return media.Stream{}, err
				}
				reselected = true
			}
		default:
			stalled = 0
		}
	}
	if job.Status == StatusDownloaded && len(job.Links) > 0 {
		return r.finish(ctx, job, c)
	}

	return media.Stream{}, fmt.Errorf("%w: debrid job %s still %s after %d polls",
		media.ErrTimeout, job.ID, job.Status, r.cfg.MainAttempts)
}

func (r *Resolver) finish(ctx context.Context, job *Job, c Candidate) (media.Stream, error) {
	direct, err := r.svc.Unrestrict(ctx, job.Links[0])
	if err != nil {
		return media.Stream{}, fmt.Errorf("unrestrict: %w", err)
	}

	container := "mp4"
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(stripQuery(direct))), "."); ext != "" {
		container = ext
	}
	s := media.NewFileStream("debrid-"+string(c.Bucket), map[string]media.File{
		string(c.Bucket): {Type: container, URL: direct},
	})
	return s, nil
}

func stripQuery(u string) string {
	u, _, _ = strings.Cut(u, "?")
	return u
}
