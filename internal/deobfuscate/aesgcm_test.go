package deobfuscate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcery/internal/media"
)

// 48 bytes once decoded, truncated to 32.
var testKey = EncodeBase64([]byte(strings.Repeat("k", 48)))

type payload struct {
	Stream struct {
		Playlist string `json:"playlist"`
	} `json:"stream"`
}

func TestAESGCMRoundTrip(t *testing.T) {
	iv := []byte("0123456789ab")
	enc, err := EncryptAESGCMStatic([]byte(`{"stream":{"playlist":"https://cdn/x.m3u8"}}`), testKey, iv)
	require.NoError(t, err)

	var got payload
	require.NoError(t, DecryptAESGCMStatic(enc, testKey, &got))
	assert.Equal(t, "https://cdn/x.m3u8", got.Stream.Playlist)
}

func TestAESGCMRandomIV(t *testing.T) {
	a, err := EncryptAESGCMStatic([]byte(`{}`), testKey, nil)
	require.NoError(t, err)
	b, err := EncryptAESGCMStatic([]byte(`{}`), testKey, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	plain, err := OpenAESGCMStatic(a, testKey)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(plain))
}

func TestAESGCMFailures(t *testing.T) {
	good, err := EncryptAESGCMStatic([]byte(`{"a":1}`), testKey, nil)
	require.NoError(t, err)
	notJSON, err := EncryptAESGCMStatic([]byte(`plain text`), testKey, nil)
	require.NoError(t, err)
	otherKey := EncodeBase64([]byte(strings.Repeat("z", 32)))

	raw, err := DecodeBase64(good)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := EncodeBase64(raw)

	tests := []struct {
		name    string
		payload string
		key     string
	}{
		{"wrong key", good, otherKey},
		{"tampered tag", tampered, testKey},
		{"too short", EncodeBase64([]byte("short")), testKey},
		{"not base64", "***", testKey},
		{"bad key length", good, EncodeBase64([]byte("tiny"))},
		{"plaintext not json", notJSON, testKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]any
			err := DecryptAESGCMStatic(tt.payload, tt.key, &v)
			require.Error(t, err)
			assert.ErrorIs(t, err, media.ErrDecryption)
		})
	}
}
