package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sourcery/internal/deobfuscate"
	"sourcery/internal/httputil"
	"sourcery/internal/media"
	"sourcery/internal/provider"
)

var (
	reMixdropURL     = regexp.MustCompile(`MDCore\.wurl\s*=\s*"([^"]+)"`)
	reMixdropSub     = regexp.MustCompile(`MDCore\.remotesub\s*=\s*"([^"]+)"`)
	reStreamwishFile = regexp.MustCompile(`file\s*:\s*"([^"]+\.m3u8[^"]*)"`)
	reStreamwishSub  = regexp.MustCompile(`\{\s*file\s*:\s*"([^"]+\.(?:vtt|srt)[^"]*)"\s*,\s*label\s*:\s*"([^"]*)"\s*,\s*kind\s*:\s*"captions"`)
)

// playerScript fetches a player page and returns its unpacked script. Pages
// that are not packed are returned as is.
func playerScript(ctx context.Context, f provider.Fetcher, embedURL string) (string, error) {
	page, err := f.Fetch(ctx, embedURL, httputil.Options{
		Headers: map[string]string{"Referer": httputil.Origin(embedURL) + "/"},
	})
	if err != nil {
		return "", err
	}
	html := string(page)
	if !deobfuscate.IsPacked(html) {
		return html, nil
	}
	return deobfuscate.Unpack(html)
}

// absoluteURL resolves a URL found in a player script against the page it
// came from. Refs that do not parse are returned as found.
func absoluteURL(page, ref string) string {
	u, err := httputil.ResolveRef(page, ref)
	if err != nil {
		return ref
	}
	return u
}

// Mixdrop resolves mixdrop file pages. The direct URL is bound to the
// resolving IP.
func Mixdrop(ctx context.Context, sc *provider.Scope, embedURL string) (*media.Result, error) {
	embedURL = strings.Replace(embedURL, "/f/", "/e/", 1)
	script, err := playerScript(ctx, sc.Fetcher, embedURL)
	if err != nil {
		return nil, err
	}

	m := reMixdropURL.FindStringSubmatch(script)
	if m == nil {
		return nil, fmt.Errorf("%w: no mixdrop file url in player script", media.ErrDeobfuscation)
	}
	stream := media.NewFileStream("mixdrop", map[string]media.File{
		string(media.QualityUnknown): {Type: "mp4", URL: absoluteURL(embedURL, m[1])},
	})
	stream.Headers = map[string]string{"Referer": httputil.Origin(embedURL) + "/"}
	if sub := reMixdropSub.FindStringSubmatch(script); sub != nil {
		u := absoluteURL(embedURL, sub[1])
		stream.Captions = append(stream.Captions, media.Caption{Type: captionType(u), URL: u, Language: "unknown"})
	}
	return &media.Result{Streams: []media.Stream{stream}}, nil
}

// Streamwish resolves streamwish player pages into HLS.
func Streamwish(ctx context.Context, sc *provider.Scope, embedURL string) (*media.Result, error) {
	script, err := playerScript(ctx, sc.Fetcher, embedURL)
	if err != nil {
		return nil, err
	}

	m := reStreamwishFile.FindStringSubmatch(script)
	if m == nil {
		return nil, fmt.Errorf("%w: no playlist in streamwish player", media.ErrDeobfuscation)
	}
	stream := media.NewHLSStream("streamwish", absoluteURL(embedURL, m[1]))
	stream.Headers = map[string]string{"Referer": httputil.Origin(embedURL) + "/"}
	for _, sub := range reStreamwishSub.FindAllStringSubmatch(script, -1) {
		u := absoluteURL(embedURL, sub[1])
		stream.Captions = append(stream.Captions, media.Caption{Type: captionType(u), URL: u, Language: sub[2]})
	}
	return &media.Result{Streams: []media.Stream{stream}}, nil
}
