// Package subtitle filters stream captions by preferred language.
package subtitle

import (
	"strings"

	"github.com/samber/lo"

	"sourcery/internal/media"
)

// codes maps short language codes onto the names caption labels use.
var codes = map[string]string{
	"en": "english", "eng": "english",
	"es": "spanish", "spa": "spanish",
	"fr": "french", "fre": "french", "fra": "french",
	"de": "german", "ger": "german", "deu": "german",
	"it": "italian", "ita": "italian",
	"pt": "portuguese", "por": "portuguese",
	"ar": "arabic", "ara": "arabic",
	"ja": "japanese", "jpn": "japanese",
}

func normalize(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if name, ok := codes[lang]; ok {
		return name
	}
	return lang
}

// matches reports whether a caption label names lang. Labels are either a
// name ("English - SDH") or a bare code ("en").
func matches(label, lang string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.Contains(label, lang) || normalize(label) == lang
}

// Filter returns captions matching the preferred language (case-insensitive).
func Filter(captions []media.Caption, language string) []media.Caption {
	lang := normalize(language)
	if lang == "" {
		return captions
	}
	return lo.Filter(captions, func(c media.Caption, _ int) bool {
		return matches(c.Language, lang)
	})
}

// BestMatch returns the best matching caption for the given language.
// Prefers plain tracks over SDH and forced variants.
func BestMatch(captions []media.Caption, language string) *media.Caption {
	filtered := Filter(captions, language)
	if len(filtered) == 0 {
		return nil
	}

	plain, ok := lo.Find(filtered, func(c media.Caption) bool {
		label := strings.ToLower(c.Language)
		return !strings.Contains(label, "sdh") && !strings.Contains(label, "forced")
	})
	if ok {
		return &plain
	}
	return &filtered[0]
}

// Apply narrows the captions of every stream to language, in place. Streams
// with no matching track keep an empty, non-nil list.
func Apply(streams []media.Stream, language string) {
	if normalize(language) == "" {
		return
	}
	for i := range streams {
		kept := Filter(streams[i].Captions, language)
		if kept == nil {
			kept = []media.Caption{}
		}
		streams[i].Captions = kept
	}
}
