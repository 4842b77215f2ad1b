package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sourcery/internal/deobfuscate"
	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

const (
	defaultCloudnestraBase = "https://cloudnestra.com"
	defaultVidlinkBase     = "https://vidlink.pro"

	// cloudnestraShift is the character shift applied before reversal.
	cloudnestraShift = 3
)

// EmbedAPI builds embed references straight from external ids; it performs
// no requests of its own.
type EmbedAPI struct {
	CloudnestraBase string
	VidlinkBase     string
}

// Scrape returns one reference per id-addressable player that can serve q.
func (a EmbedAPI) Scrape(_ context.Context, sc *provider.Scope, q media.Query) (*media.Result, error) {
	var refs []media.EmbedRef

	id := ""
	if httputil.ValidateIMDBID(q.IMDBID) == nil {
		id = q.IMDBID
	} else if httputil.ValidateNumericID(q.TMDBID) == nil {
		id = q.TMDBID
	}
	if id != "" {
		refs = append(refs, media.EmbedRef{EmbedID: "cloudnestra", URL: idURL(a.CloudnestraBase, "embed", id, q)})
	}
	if httputil.ValidateNumericID(q.TMDBID) == nil {
		refs = append(refs, media.EmbedRef{EmbedID: "vidlink", URL: idURL(a.VidlinkBase, "", q.TMDBID, q)})
	}
	sc.Progress(100)

	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no usable imdb or tmdb id", media.ErrNotFound)
	}
	return &media.Result{Embeds: refs}, nil
}

// idURL renders base[/prefix]/movie/{id} or base[/prefix]/tv/{id}/{s}/{e}.
func idURL(base, prefix, id string, q media.Query) string {
	segs := []string{}
	if prefix != "" {
		segs = append(segs, prefix)
	}
	if q.IsShow() {
		segs = append(segs, "tv", id, fmt.Sprint(q.Season), fmt.Sprint(q.Episode))
	} else {
		segs = append(segs, "movie", id)
	}
	return httputil.BuildURL(base, segs...)
}

// Cloudnestra resolves a cloudnestra player page. The playlist URL sits in a
// hidden element, ROT13'd, shifted, reversed and base64 encoded.
func Cloudnestra(ctx context.Context, sc *provider.Scope, embedURL string) (*media.Result, error) {
	page, err := sc.Fetcher.Fetch(ctx, embedURL, httputil.Options{
		Headers: map[string]string{"Referer": httputil.Origin(embedURL) + "/"},
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing player page: %v", media.ErrDeobfuscation, err)
	}

	payload := ""
	doc.Find("div[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style := strings.ReplaceAll(s.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") {
			payload = strings.TrimSpace(s.Text())
		}
		return payload == ""
	})
	if payload == "" {
		return nil, fmt.Errorf("%w: no hidden payload in player page", media.ErrNotFound)
	}

	playlist, err := decodeCloudnestra(payload)
	if err != nil {
		return nil, err
	}
	stream := media.NewHLSStream("cloudnestra", playlist)
	stream.Headers = map[string]string{"Referer": httputil.Origin(embedURL) + "/"}
	return &media.Result{Streams: []media.Stream{stream}}, nil
}

func decodeCloudnestra(payload string) (string, error) {
	s := deobfuscate.ROT13(payload)
	s = deobfuscate.ShiftChars(s, -cloudnestraShift)
	s = deobfuscate.Reverse(s)
	raw, err := deobfuscate.DecodeBase64(s)
	if err != nil {
		return "", err
	}
	playlist := strings.TrimSpace(string(raw))
	if httputil.ValidateURL(playlist) != nil {
		return "", fmt.Errorf("%w: hidden payload is not a playlist url", media.ErrDeobfuscation)
	}
	return playlist, nil
}

// Vidlink resolves vidlink players through their encrypted JSON API.
type Vidlink struct {
	// Key is the base64 static AES-GCM key of the API payload.
	Key string
}

type vidlinkEnvelope struct {
	Data string `json:"data"`
}

type vidlinkPayload struct {
	Stream struct {
		Type      string                `json:"type"`
		Playlist  string                `json:"playlist"`
		Qualities map[string]media.File `json:"qualities"`
		Captions  []struct {
			URL      string `json:"url"`
			Language string `json:"language"`
			Type     string `json:"type"`
		} `json:"captions"`
	} `json:"stream"`
}

// Resolve maps {base}/movie/{id} onto {base}/api/b/movie/{id} and decrypts
// the response.
func (v Vidlink) Resolve(ctx context.Context, sc *provider.Scope, embedURL string) (*media.Result, error) {
	if v.Key == "" {
		return nil, fmt.Errorf("%w: vidlink key not configured", media.ErrConfiguration)
	}
	u, err := url.Parse(embedURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: bad vidlink url", media.ErrNotFound)
	}
	api := u.Scheme + "://" + u.Host + "/api/b" + u.Path

	body, err := sc.Fetcher.Fetch(ctx, api, httputil.Options{
		Headers: map[string]string{"Referer": embedURL, "Accept": "application/json"},
	})
	if err != nil {
		return nil, err
	}
	var env vidlinkEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == "" {
		return nil, fmt.Errorf("%w: vidlink response has no payload", media.ErrDeobfuscation)
	}
	var p vidlinkPayload
	if err := deobfuscate.DecryptAESGCMStatic(env.Data, v.Key, &p); err != nil {
		return nil, err
	}

	var stream media.Stream
	switch p.Stream.Type {
	case "hls":
		stream = media.NewHLSStream("vidlink", p.Stream.Playlist)
	default:
		stream = media.NewFileStream("vidlink", p.Stream.Qualities)
	}
	for _, c := range p.Stream.Captions {
		if c.URL == "" {
			continue
		}
		typ := c.Type
		if typ == "" {
			typ = captionType(c.URL)
		}
		stream.Captions = append(stream.Captions, media.Caption{Type: typ, URL: c.URL, Language: c.Language})
	}
	if !stream.Playable() {
		return nil, fmt.Errorf("%w: vidlink returned no playable stream", media.ErrNotFound)
	}
	return &media.Result{Streams: []media.Stream{stream}}, nil
}
