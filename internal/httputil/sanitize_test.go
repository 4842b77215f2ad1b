package httputil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid HTTPS", "https://example.com/path", false},
		{"HTTP rejected", "http://example.com/path", true},
		{"javascript scheme rejected", "javascript:alert(1)", true},
		{"data scheme rejected", "data:text/html,<h1>Hi</h1>", true},
		{"empty string", "", true},
		{"no host", "https://", true},
		{"valid with port", "https://example.com:8080/path", false},
		{"valid with query", "https://example.com/path?q=test&a=b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateURL(%q) error = %v", tt.url, err)
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid movie ID", "movie/watch-example-film-75043", false},
		{"valid numeric", "12345", false},
		{"empty", "", true},
		{"path traversal dots", "../../etc/passwd", true},
		{"shell injection", "123; rm -rf /", true},
		{"newline injection", "123\n456", true},
		{"too long", string(make([]byte, 300)), true},
		{"spaces", "movie id with spaces", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateID(%q) error = %v", tt.id, err)
		})
	}
}

func TestValidateNumericAndIMDB(t *testing.T) {
	assert.NoError(t, ValidateNumericID("0"))
	assert.Error(t, ValidateNumericID(""))
	assert.Error(t, ValidateNumericID("-1"))

	assert.NoError(t, ValidateIMDBID("tt0111161"))
	assert.Error(t, ValidateIMDBID("0111161"))
	assert.Error(t, ValidateIMDBID("tt12"))
	assert.Error(t, ValidateIMDBID("tt0111161; ls"))
}

func TestEncodeQuery(t *testing.T) {
	assert.Equal(t, "star-wars", EncodeQuery("star wars"))
	assert.Equal(t, "the-dark-knight", EncodeQuery("  the   dark knight "))
	assert.Equal(t, "", EncodeQuery(""))
	assert.Equal(t, "a%3Fb", EncodeQuery("a?b"))
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "https://host.example/ajax/v2/tv/seasons/123",
		BuildURL("https://host.example/", "ajax", "v2", "tv", "seasons", "123"))
	assert.Equal(t, "https://host.example/search/a%2Fb", BuildURL("https://host.example", "search", "a/b"))
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://embed.example/e/abc", "/stream/master.m3u8", "https://embed.example/stream/master.m3u8"},
		{"https://embed.example/e/abc", "//cdn.example/v.mp4", "https://cdn.example/v.mp4"},
		{"https://embed.example/e/abc", "https://other.example/x", "https://other.example/x"},
		{"https://embed.example/e/abc", "def", "https://embed.example/e/def"},
	}

	for _, tt := range tests {
		got, err := ResolveRef(tt.base, tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://embed.example", Origin("https://embed.example/e/abc?x=1"))
	assert.Equal(t, "", Origin("not a url"))
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://api.example/v4/magnet/status?agent=sourcery&apikey=secret")
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "apikey=REDACTED")
	assert.Contains(t, got, "agent=sourcery")

	plain := "https://api.example/path?id=1"
	assert.Equal(t, plain, RedactURL(plain))
}
