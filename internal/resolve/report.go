package resolve

import (
	"fmt"
	"strings"
	"time"

	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// Status is the outcome of one provider invocation.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not-found"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
)

// Outcome records one provider invocation.
type Outcome struct {
	ProviderID string
	Kind       provider.Kind
	// Parent is the sourcerer whose embed reference led to this embed call.
	Parent   string
	Status   Status
	Err      error
	Streams  int
	Embeds   int
	Duration time.Duration
}

// ErrKind classifies Err.
func (o Outcome) ErrKind() media.ErrorKind {
	return media.KindOf(o.Err)
}

// Report summarises a finished run.
type Report struct {
	RunID    string
	Outcomes []Outcome
	// Streams holds every stream emitted, in emission order. After a
	// cancellation it also holds streams a provider returned late, whether
	// or not a consumer received them.
	Streams  []media.Stream
	Canceled bool
}

// Count returns how many outcomes have status st.
func (r *Report) Count(st Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

// ExhaustedError is returned when every provider failed and no stream was
// produced. It matches media.ErrNotFound with errors.Is.
type ExhaustedError struct {
	Outcomes []Outcome
}

func (e *ExhaustedError) Error() string {
	if len(e.Outcomes) == 0 {
		return "no sources found: no providers available"
	}
	counts := map[Status]int{}
	for _, o := range e.Outcomes {
		counts[o.Status]++
	}
	var parts []string
	for _, st := range []Status{StatusNotFound, StatusTimeout, StatusError} {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
		}
	}
	return fmt.Sprintf("no sources found: %d providers tried (%s)", len(e.Outcomes), strings.Join(parts, ", "))
}

func (e *ExhaustedError) Unwrap() error {
	return media.ErrNotFound
}
