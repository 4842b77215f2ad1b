package deobfuscate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"sourcery/internal/media"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16
	aesKeySize = 32
)

func staticGCM(staticKeyB64 string) (cipher.AEAD, error) {
	key, err := DecodeBase64(staticKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: static key: %v", media.ErrDecryption, err)
	}
	if len(key) > aesKeySize {
		key = key[:aesKeySize]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrDecryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrDecryption, err)
	}
	return gcm, nil
}

// OpenAESGCMStatic decrypts a base64 payload laid out as IV(12) | ciphertext |
// tag(16) with the base64-encoded static key, truncated to 32 bytes.
func OpenAESGCMStatic(payloadB64, staticKeyB64 string) ([]byte, error) {
	gcm, err := staticGCM(staticKeyB64)
	if err != nil {
		return nil, err
	}
	raw, err := DecodeBase64(payloadB64)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcmIVSize+gcmTagSize {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", media.ErrDecryption, len(raw))
	}

	plain, err := gcm.Open(nil, raw[:gcmIVSize], raw[gcmIVSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm open: %v", media.ErrDecryption, err)
	}
	return plain, nil
}

// DecryptAESGCMStatic decrypts payloadB64 and JSON-decodes the plaintext into v.
func DecryptAESGCMStatic(payloadB64, staticKeyB64 string, v any) error {
	plain, err := OpenAESGCMStatic(payloadB64, staticKeyB64)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: decode plaintext: %v", media.ErrDecryption, err)
	}
	return nil
}

// EncryptAESGCMStatic produces a payload OpenAESGCMStatic accepts. A nil iv
// draws a random one.
func EncryptAESGCMStatic(plain []byte, staticKeyB64 string, iv []byte) (string, error) {
	gcm, err := staticGCM(staticKeyB64)
	if err != nil {
		return "", err
	}
	if iv == nil {
		iv = make([]byte, gcmIVSize)
		if _, err := rand.Read(iv); err != nil {
			return "", fmt.Errorf("generate iv: %w", err)
		}
	}
	if len(iv) != gcmIVSize {
		return "", fmt.Errorf("%w: iv must be %d bytes", media.ErrDecryption, gcmIVSize)
	}

	out := make([]byte, 0, len(iv)+len(plain)+gcmTagSize)
	out = append(out, iv...)
	out = gcm.Seal(out, iv, plain, nil)
	return EncodeBase64(out), nil
}
