package sources

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcery/internal/media"
)

// encryptSources is the inverse of decryptSources.
func encryptSources(plain, clientKey, playerKey string) string {
	key := deriveKey(playerKey, clientKey)
	b := []byte(fmt.Sprintf("%04d%s", len(plain), plain))
	cols := len(key) + 1
	for len(b)%cols != 0 {
		b = append(b, '~')
	}

	for layer := 1; layer <= cipherLayers; layer++ {
		layerKey := key + strconv.Itoa(layer)

		table := substitutionTable(layerKey)
		for i, c := range b {
			if printable(c) {
				b[i] = table[c-printableLo]
			}
		}

		rows := len(b) / cols
		out := make([]byte, 0, len(b))
		for _, col := range columnOrder(layerKey) {
			for row := 0; row < rows; row++ {
				out = append(out, b[row*cols+col])
			}
		}
		b = out

		rng := hash31(layerKey)
		for i, c := range b {
			if printable(c) {
				b[i] = byte(printableLo + (int(c)-printableLo+rng.next(printableCount))%printableCount)
			}
		}
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{
			name: "meta tag pattern",
			html: `<html><head><meta name="_gg_fb" content="abc123XYZ"></head><body></body></html>`,
			want: "abc123XYZ",
		},
		{
			name: "comment pattern",
			html: `<html><!-- _is_th:secretKey42 --><body></body></html>`,
			want: "secretKey42",
		},
		{
			name: "lk_db 3-part key pattern",
			html: `<html><script>window._lk_db = {x: "partA", y: "partB", z: "partC"};</script></html>`,
			want: "partApartBpartC",
		},
		{
			name: "lk_db parts out of order",
			html: `<html><script>window._lk_db = {z: "C3", x: 'A1', y: "B2"};</script></html>`,
			want: "A1B2C3",
		},
		{
			name: "div data-dpi pattern",
			html: `<html><div data-dpi="myKey99" class="test"></div></html>`,
			want: "myKey99",
		},
		{
			name: "script nonce pattern",
			html: `<html><script nonce="nonceKey123">console.log('hi');</script></html>`,
			want: "nonceKey123",
		},
		{
			name: "window._xy_ws pattern",
			html: "<html><script>window._xy_ws = `wsKey456`;</script></html>",
			want: "wsKey456",
		},
		{
			name:    "no match",
			html:    `<html><body>nothing here</body></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clientKey(tt.html)
			if (err != nil) != tt.wantErr {
				t.Fatalf("clientKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, media.ErrDeobfuscation) {
				t.Errorf("clientKey() error = %v, want ErrDeobfuscation", err)
			}
			if got != tt.want {
				t.Errorf("clientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveKeyIsPrintableAndBounded(t *testing.T) {
	key := deriveKey("playerKeyXYZ", "clientKey42")
	require.NotEmpty(t, key)
	assert.Equal(t, key, deriveKey("playerKeyXYZ", "clientKey42"))
	assert.NotEqual(t, key, deriveKey("playerKeyXYZ", "clientKey43"))
	for i := 0; i < len(key); i++ {
		assert.True(t, printable(key[i]), "byte %d is %q", i, key[i])
	}

	long := deriveKey(string(make([]byte, 200)), "k")
	assert.LessOrEqual(t, len(long), 128)
}

func TestDecryptSourcesRoundTrip(t *testing.T) {
	plain := `[{"file":"https://cdn.example/hls/master.m3u8","type":"hls"}]`
	for _, ck := range []string{"a", "clientKey42", "partApartBpartC"} {
		enc := encryptSources(plain, ck, "playerKeyXYZ")
		got, err := decryptSources(enc, ck, "playerKeyXYZ")
		require.NoError(t, err, ck)
		assert.Equal(t, plain, got, ck)
	}
}

func TestDecryptSourcesFailures(t *testing.T) {
	_, err := decryptSources("%%%", "ck", "pk")
	assert.True(t, errors.Is(err, media.ErrDecryption))

	enc := encryptSources(`[]`, "ck", "pk")
	_, err = decryptSources(enc, "other", "pk")
	assert.True(t, errors.Is(err, media.ErrDecryption), "wrong key garbles the length prefix")

	_, err = decryptSources(base64.StdEncoding.EncodeToString([]byte("ab")), "ck", "pk")
	assert.True(t, errors.Is(err, media.ErrDecryption))
}

func TestSplitEmbedURL(t *testing.T) {
	host, prefix, id, err := splitEmbedURL("https://videostr.example/embed-1/v3/e-1/AbCdEf?z=")
	require.NoError(t, err)
	assert.Equal(t, "videostr.example", host)
	assert.Equal(t, "embed-1", prefix)
	assert.Equal(t, "AbCdEf", id)

	_, prefix, id, err = splitEmbedURL("https://mirror.example/e/XYZ")
	require.NoError(t, err)
	assert.Equal(t, "embed-2", prefix)
	assert.Equal(t, "XYZ", id)

	_, _, _, err = splitEmbedURL("https://host.example/")
	assert.True(t, errors.Is(err, media.ErrNotFound))
}

func megaMux(t *testing.T, keyHits *atomic.Int32, encrypted bool) *http.ServeMux {
	const plain = `[{"file":"https://cdn.example/hls/master.m3u8","type":"hls"}]`
	mux := http.NewServeMux()
	mux.HandleFunc("/keys.json", func(w http.ResponseWriter, r *http.Request) {
		keyHits.Add(1)
		fmt.Fprint(w, `{"mega":"playerKeyXYZ","rabbit":"unused"}`)
	})
	mux.HandleFunc("/embed-1/v3/e-1/AbC123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta name="_gg_fb" content="clientKey42"></head><body></body></html>`)
	})
	mux.HandleFunc("/embed-1/v3/e-1/getSources", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AbC123", r.URL.Query().Get("id"))
		assert.Equal(t, "clientKey42", r.URL.Query().Get("_k"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		sources := plain
		if encrypted {
			sources = strconv.Quote(encryptSources(plain, "clientKey42", "playerKeyXYZ"))
		}
		fmt.Fprintf(w, `{"sources":%s,"encrypted":%t,"tracks":[
			{"file":"https://cdn.example/subs/eng.vtt","label":"English","kind":"captions","default":true},
			{"file":"https://cdn.example/subs/spa.srt","label":"Spanish","kind":"captions"},
			{"file":"https://cdn.example/thumbs.vtt","kind":"thumbnails"}]}`, sources, encrypted)
	})
	return mux
}

func TestMegaCloudResolveEncrypted(t *testing.T) {
	var keyHits atomic.Int32
	srv, sc := newSite(t, megaMux(t, &keyHits, true))
	m := NewMegaCloud(IDUpCloud, srv.URL+"/keys.json")

	for range 2 {
		res, err := m.Resolve(context.Background(), sc, srv.URL+"/embed-1/v3/e-1/AbC123?z=")
		require.NoError(t, err)
		require.Len(t, res.Streams, 1)

		s := res.Streams[0]
		assert.Equal(t, "upcloud", s.ID)
		assert.Equal(t, media.StreamHLS, s.Type)
		assert.Equal(t, "https://cdn.example/hls/master.m3u8", s.Playlist)
		assert.Equal(t, srv.URL+"/", s.Headers["Referer"])
		assert.Equal(t, []media.Caption{
			{Type: "vtt", URL: "https://cdn.example/subs/eng.vtt", Language: "English"},
			{Type: "srt", URL: "https://cdn.example/subs/spa.srt", Language: "Spanish"},
		}, s.Captions)
	}
	assert.Equal(t, int32(1), keyHits.Load(), "player key is cached")
}

func TestMegaCloudResolvePlaintext(t *testing.T) {
	var keyHits atomic.Int32
	srv, sc := newSite(t, megaMux(t, &keyHits, false))
	m := NewMegaCloud(IDMegaCloud, srv.URL+"/keys.json")

	res, err := m.Resolve(context.Background(), sc, srv.URL+"/embed-1/v3/e-1/AbC123?z=")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/hls/master.m3u8", res.Streams[0].Playlist)
	assert.Zero(t, keyHits.Load())
}

func TestMegaCloudPlayerRequestsGoThroughProxy(t *testing.T) {
	var keyHits atomic.Int32
	srv, sc := newSite(t, megaMux(t, &keyHits, true))
	direct, proxied := withProxy(sc)

	res, err := NewMegaCloud(IDUpCloud, srv.URL+"/keys.json").Resolve(context.Background(), sc, srv.URL+"/embed-1/v3/e-1/AbC123?z=")
	require.NoError(t, err)
	require.Len(t, res.Streams, 1)

	assert.Equal(t, int32(2), proxied.hits.Load(), "player page and getSources")
	assert.Equal(t, int32(1), direct.hits.Load(), "player key list")
	assert.Equal(t, int32(1), keyHits.Load())
}

func TestMegaCloudMissingClientKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>player moved</body></html>`)
	})
	srv, sc := newSite(t, mux)

	_, err := NewMegaCloud(IDMegaCloud, srv.URL+"/keys.json").Resolve(context.Background(), sc, srv.URL+"/embed-1/v3/e-1/AbC123")
	assert.True(t, errors.Is(err, media.ErrDeobfuscation))
	assert.True(t, media.Recoverable(err))
}
