package sources

import (
	"fmt"
	"regexp"

	"sourcery/internal/media"
)

// The megacloud embed page hides a per-request client key behind one of
// several rotating markups. They are tried in this order.
var (
	reKeyMeta    = regexp.MustCompile(`<meta name="_gg_fb" content="([a-zA-Z0-9]+)">`)
	reKeyComment = regexp.MustCompile(`<!--\s+_is_th:([0-9a-zA-Z]+)\s+-->`)
	reKeyLkDb    = regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{([^}]*)\};</script>`)
	reKeyDpi     = regexp.MustCompile(`<div\s+data-dpi="([0-9a-zA-Z]+)"\s+[^>]*></div>`)
	reKeyNonce   = regexp.MustCompile(`<script nonce="([0-9a-zA-Z]+)">`)
	reKeyXyWs    = regexp.MustCompile(`<script>window\._xy_ws = ['"\x60]([0-9a-zA-Z]+)['"\x60];</script>`)

	reLkDbPart = regexp.MustCompile(`([xyz]):\s+["']([a-zA-Z0-9]+)["']`)
)

func lkDbKey(body string) (string, bool) {
	parts := map[string]string{}
	for _, m := range reLkDbPart.FindAllStringSubmatch(body, -1) {
		parts[m[1]] = m[2]
	}
	if len(parts) != 3 {
		return "", false
	}
	return parts["x"] + parts["y"] + parts["z"], true
}

// clientKey extracts the client key from an embed page.
func clientKey(html string) (string, error) {
	single := func(re *regexp.Regexp) func() (string, bool) {
		return func() (string, bool) {
			m := re.FindStringSubmatch(html)
			if m == nil {
				return "", false
			}
			return m[1], true
		}
	}
	extractors := []func() (string, bool){
		single(reKeyMeta),
		single(reKeyComment),
		func() (string, bool) {
			m := reKeyLkDb.FindStringSubmatch(html)
			if m == nil {
				return "", false
			}
			return lkDbKey(m[1])
		},
		single(reKeyDpi),
		single(reKeyNonce),
		single(reKeyXyWs),
	}
	for _, extract := range extractors {
		if key, ok := extract(); ok && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: no client key in embed page", media.ErrDeobfuscation)
}
