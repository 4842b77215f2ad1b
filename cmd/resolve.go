package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
	"sourcery/internal/resolve"
	"sourcery/internal/sources"
	"sourcery/internal/subtitle"
)

// resolve flags
var (
	flagTitle    string
	flagYear     int
	flagIMDB     string
	flagTMDB     string
	flagType     string
	flagSeason   int
	flagEpisode  int
	flagPrefer   []string
	flagJSON     bool
	flagLanguage string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find playable streams for a movie or episode",
	Example: `  sourcery resolve --title "The Exorcist" --year 1973
  sourcery resolve --imdb tt0903747 --tmdb 1396 --season 1 --episode 3 --json`,
	Args: cobra.NoArgs,
	RunE: resolveRun,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&flagTitle, "title", "t", "", "Title to search for")
	f.IntVarP(&flagYear, "year", "y", 0, "Release year")
	f.StringVar(&flagIMDB, "imdb", "", "IMDb id (tt...)")
	f.StringVar(&flagTMDB, "tmdb", "", "TMDB id")
	f.StringVar(&flagType, "type", "", "movie | show (default: show when --season is set)")
	f.IntVarP(&flagSeason, "season", "s", 0, "Season number")
	f.IntVarP(&flagEpisode, "episode", "e", 0, "Episode number")
	f.StringSliceVarP(&flagPrefer, "prefer", "p", nil, "Provider ids to try first")
	f.BoolVarP(&flagJSON, "json", "j", false, "Print streams as JSON lines")
	f.StringVarP(&flagLanguage, "language", "l", "", "Subtitle language (default: english)")
}

// buildQuery turns the resolve flags into a query.
func buildQuery() (media.Query, error) {
	q := media.Query{
		Title:   flagTitle,
		Year:    flagYear,
		IMDBID:  flagIMDB,
		TMDBID:  flagTMDB,
		Season:  flagSeason,
		Episode: flagEpisode,
	}
	switch {
	case flagType != "":
		t, err := media.ParseMediaType(flagType)
		if err != nil {
			return q, err
		}
		q.Type = t
	case flagSeason > 0 || flagEpisode > 0:
		q.Type = media.Show
	}

	if q.IMDBID != "" {
		if err := httputil.ValidateIMDBID(q.IMDBID); err != nil {
			return q, fmt.Errorf("--imdb: %w", err)
		}
	}
	if q.TMDBID != "" {
		if err := httputil.ValidateNumericID(q.TMDBID); err != nil {
			return q, fmt.Errorf("--tmdb: %w", err)
		}
	}
	return q, q.Validate()
}

// newFetchers returns the direct fetcher and, when a proxy is configured,
// the proxied one.
func newFetchers() (provider.Fetcher, provider.Fetcher, error) {
	direct, err := httputil.New(httputil.Config{
		Timeout:   cfg.Fetch.Timeout.Duration,
		UserAgent: cfg.Fetch.UserAgent,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Fetch.Proxy == "" {
		return direct, nil, nil
	}
	proxied, err := httputil.New(httputil.Config{
		Timeout:   cfg.Fetch.Timeout.Duration,
		UserAgent: cfg.Fetch.UserAgent,
		ProxyURL:  cfg.Fetch.Proxy,
	})
	if err != nil {
		return nil, nil, err
	}
	return direct, proxied, nil
}

func newOrchestrator() (*resolve.Orchestrator, error) {
	direct, proxied, err := newFetchers()
	if err != nil {
		return nil, err
	}
	reg, err := sources.NewRegistry(cfg, direct, logger.WithField("component", "sources"))
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}
	return resolve.New(resolve.Config{
		Registry: reg,
		Fetcher:  direct,
		Proxied:  proxied,
		Logger:   logger,
		Timeout:  cfg.Resolve.ProviderTimeout.Duration,
		Grace:    cfg.Debrid.PollInterval.Duration,
	})
}

func resolveRun(cmd *cobra.Command, args []string) error {
	q, err := buildQuery()
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	orch, err := newOrchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	styled := !flagJSON && isTerminal(out)
	prefer := lo.Uniq(append(flagPrefer, cfg.Resolve.Prefer...))

	run := orch.Resolve(ctx, q, resolve.Options{
		PreferredProviderIDs: prefer,
		OnProgress: func(p int) {
			logger.Debugf("progress %d%%", p)
		},
	})
	logger.WithField("run", run.ID).Infof("resolving %s", q)

	n := 0
	for s := range run.Streams() {
		n++
		one := []media.Stream{s}
		subtitle.Apply(one, cfg.SubsLanguage)
		if err := printStream(out, one[0], n, styled); err != nil {
			stop()
			run.Wait()
			return err
		}
	}

	report, err := run.Wait()
	if !flagJSON {
		renderReport(cmd.ErrOrStderr(), report, styled)
	}
	if err != nil {
		return err
	}
	if report.Canceled {
		return fmt.Errorf("resolve interrupted after %d streams: %w", n, ctx.Err())
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// playURL returns the label and URL a player should open for s.
func playURL(s media.Stream) (string, string) {
	if s.Type == media.StreamHLS {
		return "hls", s.Playlist
	}
	q, f, ok := s.Best()
	if !ok {
		return "", ""
	}
	return string(q), f.URL
}

// streamLine is the --json shape of one emitted stream.
type streamLine struct {
	media.Stream
	Best string `json:"best"`
}

func printStream(w io.Writer, s media.Stream, n int, styled bool) error {
	if flagJSON {
		_, best := playURL(s)
		return json.NewEncoder(w).Encode(streamLine{Stream: s, Best: best})
	}
	_, err := fmt.Fprintln(w, formatStream(s, n, styled))
	return err
}
