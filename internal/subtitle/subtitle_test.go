package subtitle

import (
	"testing"

	"sourcery/internal/media"
)

func TestFilter(t *testing.T) {
	subs := []media.Caption{
		{Language: "English"},
		{Language: "English - SDH"},
		{Language: "Spanish"},
		{Language: "French"},
		{Language: "de"},
	}

	tests := []struct {
		lang     string
		expected int
	}{
		{"english", 2},
		{"en", 2},
		{"ENG", 2},
		{"spanish", 1},
		{"french", 1},
		{"german", 1},
		{"japanese", 0},
		{"", 5},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			got := Filter(subs, tt.lang)
			if len(got) != tt.expected {
				t.Errorf("Filter(%q) returned %d subs, want %d", tt.lang, len(got), tt.expected)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	subs := []media.Caption{
		{Language: "English - SDH", URL: "https://example.com/sdh.vtt"},
		{Language: "English", URL: "https://example.com/en.vtt"},
		{Language: "Spanish (Forced)", URL: "https://example.com/es-forced.vtt"},
		{Language: "Spanish", URL: "https://example.com/es.vtt"},
	}

	// Should prefer non-SDH English
	best := BestMatch(subs, "english")
	if best == nil {
		t.Fatal("BestMatch returned nil for english")
	}
	if best.Language != "English" {
		t.Errorf("BestMatch preferred %q, want 'English' (non-SDH)", best.Language)
	}

	best = BestMatch(subs, "es")
	if best == nil {
		t.Fatal("BestMatch returned nil for es")
	}
	if best.URL != "https://example.com/es.vtt" {
		t.Errorf("got %q, want the non-forced Spanish track", best.URL)
	}

	// Only SDH available
	best = BestMatch(subs[:1], "english")
	if best == nil || best.Language != "English - SDH" {
		t.Errorf("BestMatch should fall back to the SDH track, got %v", best)
	}

	// No match
	best = BestMatch(subs, "japanese")
	if best != nil {
		t.Error("BestMatch should return nil for unmatched language")
	}
}

func TestApply(t *testing.T) {
	streams := []media.Stream{
		{ID: "a", Captions: []media.Caption{{Language: "English"}, {Language: "French"}}},
		{ID: "b", Captions: []media.Caption{{Language: "French"}}},
	}

	Apply(streams, "english")
	if len(streams[0].Captions) != 1 || streams[0].Captions[0].Language != "English" {
		t.Errorf("stream a captions = %v, want English only", streams[0].Captions)
	}
	if streams[1].Captions == nil || len(streams[1].Captions) != 0 {
		t.Errorf("stream b captions = %#v, want empty non-nil list", streams[1].Captions)
	}

	Apply(streams, "")
	if len(streams[0].Captions) != 1 {
		t.Error("empty language must leave captions untouched")
	}
}
