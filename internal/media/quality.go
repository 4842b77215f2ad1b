package media

import (
	"regexp"
	"strings"
)

// Quality is a rendition label from a closed vocabulary.
type Quality string

const (
	Quality360     Quality = "360"
	Quality480     Quality = "480"
	Quality720     Quality = "720"
	Quality1080    Quality = "1080"
	Quality4K      Quality = "4k"
	QualityUnknown Quality = "unknown"
)

// Qualities lists the vocabulary from best to worst.
var Qualities = []Quality{Quality4K, Quality1080, Quality720, Quality480, Quality360, QualityUnknown}

var qualityDigits = regexp.MustCompile(`(\d{3,4})`)

// NormalizeQuality maps free-form labels ("1080p", "2160", "4K UHD", "HD")
// onto the closed vocabulary. Anything unrecognised becomes QualityUnknown.
func NormalizeQuality(label string) Quality {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return QualityUnknown
	}
	if strings.Contains(l, "4k") || strings.Contains(l, "uhd") {
		return Quality4K
	}
	m := qualityDigits.FindString(l)
	switch m {
	case "2160", "4096", "3840":
		return Quality4K
	case "1080":
		return Quality1080
	case "720":
		return Quality720
	case "480":
		return Quality480
	case "360":
		return Quality360
	}
	return QualityUnknown
}

// Rank orders qualities; higher is better and QualityUnknown ranks lowest.
func (q Quality) Rank() int {
	for i, v := range Qualities {
		if v == q {
			return len(Qualities) - i
		}
	}
	return 0
}

// Best returns the highest quality rendition of a file stream.
func (s Stream) Best() (Quality, File, bool) {
	for _, q := range Qualities {
		if f, ok := s.Qualities[q]; ok {
			return q, f, true
		}
	}
	return "", File{}, false
}
