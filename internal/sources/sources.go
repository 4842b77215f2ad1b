// Package sources holds the compiled-in providers and wires them from
// configuration. Site identities live here as data; the engine only sees
// provider.Sourcerer and provider.Embed values.
package sources

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sourcery/internal/config"
	"sourcery/internal/debrid"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

// Provider ids.
const (
	IDFlixHQ      = "flixhq"
	IDEmbedAPI    = "embedapi"
	IDMegaCloud   = "megacloud"
	IDUpCloud     = "upcloud"
	IDStreamwish  = "streamwish"
	IDVidlink     = "vidlink"
	IDCloudnestra = "cloudnestra"
	IDMixdrop     = "mixdrop"
)

// applyOverrides folds a [providers.<id>] section into d.
func applyOverrides(d *provider.Descriptor, pc config.ProviderConfig) {
	if pc.Rank != nil {
		d.Rank = *pc.Rank
	}
	if pc.Disabled && !d.Disabled {
		d.Disabled = true
		d.DisabledReason = fmt.Errorf("%w: disabled in config", media.ErrConfiguration)
	}
}

// Builtins returns every compiled-in sourcerer and embed configured from cfg.
// fetch is the direct fetcher the debrid API client uses; providers get
// theirs from the scope at call time.
func Builtins(cfg *config.Config, fetch provider.Fetcher, log *logrus.Entry) ([]provider.Sourcerer, []provider.Embed) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	flix := FlixHQ{Base: cfg.Provider(IDFlixHQ).BaseURL}
	api := EmbedAPI{
		CloudnestraBase: orDefault(cfg.Provider(IDCloudnestra).BaseURL, defaultCloudnestraBase),
		VidlinkBase:     orDefault(cfg.Provider(IDVidlink).BaseURL, defaultVidlinkBase),
	}

	sourcerers := []provider.Sourcerer{
		{
			Descriptor: provider.Descriptor{ID: IDFlixHQ, Name: "FlixHQ", Rank: 300},
			Scrape:     flix.Scrape,
		},
		{
			Descriptor: provider.Descriptor{ID: IDEmbedAPI, Name: "Embed API", Rank: 200},
			Scrape:     api.Scrape,
		},
		debridSourcerer(cfg, fetch, log),
	}

	keysURL := cfg.Provider(IDMegaCloud).Key
	vidlink := Vidlink{Key: cfg.Provider(IDVidlink).Key}
	embeds := []provider.Embed{
		{
			Descriptor: provider.Descriptor{ID: IDMegaCloud, Name: "MegaCloud", Rank: 400},
			Resolve:    NewMegaCloud(IDMegaCloud, keysURL).Resolve,
		},
		{
			Descriptor: provider.Descriptor{ID: IDUpCloud, Name: "UpCloud", Rank: 390},
			Resolve:    NewMegaCloud(IDUpCloud, keysURL).Resolve,
		},
		{
			Descriptor: provider.Descriptor{ID: IDStreamwish, Name: "Streamwish", Rank: 300},
			Resolve:    Streamwish,
		},
		{
			Descriptor: provider.Descriptor{
				ID: IDVidlink, Name: "Vidlink", Rank: 280,
				Flags: []media.Flag{media.FlagCORSAllowed},
			},
			Resolve: vidlink.Resolve,
		},
		{
			Descriptor: provider.Descriptor{ID: IDCloudnestra, Name: "Cloudnestra", Rank: 250},
			Resolve:    Cloudnestra,
		},
		{
			Descriptor: provider.Descriptor{
				ID: IDMixdrop, Name: "Mixdrop", Rank: 200,
				Flags: []media.Flag{media.FlagIPLocked},
			},
			Resolve: Mixdrop,
		},
	}
	if vidlink.Key == "" {
		embeds[3].Disabled = true
		embeds[3].DisabledReason = fmt.Errorf("%w: providers.vidlink.key is not set", media.ErrConfiguration)
	}

	for i := range sourcerers {
		applyOverrides(&sourcerers[i].Descriptor, cfg.Provider(sourcerers[i].ID))
	}
	for i := range embeds {
		applyOverrides(&embeds[i].Descriptor, cfg.Provider(embeds[i].ID))
	}
	return sourcerers, embeds
}

func debridSourcerer(cfg *config.Config, fetch provider.Fetcher, log *logrus.Entry) provider.Sourcerer {
	d := cfg.Debrid
	svc, err := debrid.NewService(d.Service, debrid.ServiceOptions{
		Token:     d.Token,
		Fetcher:   fetch,
		BaseURL:   cfg.Provider(debrid.ID).BaseURL,
		RateLimit: d.RateLimit,
		Retries:   uint(max(0, d.Retries)),
		Log:       log.WithField("provider", debrid.ID),
	})
	return debrid.NewSourcerer(debrid.Config{
		Addons: d.Addons,
		Poll: debrid.PollConfig{
			Interval:        d.PollInterval.Duration,
			InitialAttempts: d.InitialAttempts,
			MainAttempts:    d.MainAttempts,
			StallThreshold:  d.StallThreshold,
		},
		Concurrency: d.Concurrency,
	}, svc, err)
}

// NewRegistry builds the registry of compiled-in providers.
func NewRegistry(cfg *config.Config, fetch provider.Fetcher, log *logrus.Entry) (*provider.Registry, error) {
	sourcerers, embeds := Builtins(cfg, fetch, log)
	return provider.NewRegistry(sourcerers, embeds)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
