package debrid

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// Service is a debrid API.
type Service interface {
	Name() string
	// AddMagnet submits a magnet and returns the job id. A rejected magnet
	// wraps media.ErrNotFound.
	AddMagnet(ctx context.Context, magnet string) (string, error)
	// Job polls the current state of a job.
	Job(ctx context.Context, id string) (*Job, error)
	// SelectFiles chooses which files to download; no ids means all.
	SelectFiles(ctx context.Context, id string, fileIDs []int) error
	// Unrestrict turns a service-hosted link into a direct URL.
	Unrestrict(ctx context.Context, link string) (string, error)
	Delete(ctx context.Context, id string) error
}

// ServiceOptions configures a Service constructor.
type ServiceOptions struct {
	Token   string
	Fetcher provider.Fetcher
	// BaseURL overrides the service's API root.
	BaseURL string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	Retries    uint
	RetryDelay time.Duration
	Log        *logrus.Entry
}

// ServiceFactory builds a Service.
type ServiceFactory func(opts ServiceOptions) Service

var services = map[string]ServiceFactory{}

// RegisterService makes a service available to NewService.
func RegisterService(name string, factory ServiceFactory) {
	services[strings.ToLower(name)] = factory
}

// Services lists registered service names.
func Services() []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewService builds the named service. A missing token is a configuration
// error.
func NewService(name string, opts ServiceOptions) (Service, error) {
	factory, ok := services[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown debrid service %q (valid: %s)",
			media.ErrConfiguration, name, strings.Join(Services(), ", "))
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("%w: %s needs an API token", media.ErrConfiguration, name)
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: %s needs a fetcher", media.ErrConfiguration, name)
	}
	return factory(opts), nil
}
