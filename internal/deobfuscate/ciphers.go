package deobfuscate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"sourcery/internal/media"
)

// DecodeBase64 decodes standard or URL-safe base64, with or without padding.
// Embedded whitespace is ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		case '-':
			return '+'
		case '_':
			return '/'
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")

	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", media.ErrDecryption, err)
	}
	return b, nil
}

// EncodeBase64 encodes b as padded standard base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ROT13 rotates ASCII letters by 13 places. Other bytes pass through
// untouched. It is its own inverse.
func ROT13(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + (c-'A'+13)%26
		}
	}
	return string(b)
}

// ShiftChars adds n to every byte of s, wrapping at 256.
// ShiftChars(ShiftChars(s, n), -n) == s for any n.
func ShiftChars(s string, n int) string {
	shift := byte(((n % 256) + 256) % 256)
	b := []byte(s)
	for i := range b {
		b[i] += shift
	}
	return string(b)
}

// Reverse reverses the bytes of s. It works on the same unit as ShiftChars,
// so Reverse(Reverse(s)) == s for any input.
func Reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// Substitute maps every byte from[i] in s to to[i]. Bytes not in from pass
// through. Pairs beyond the shorter of from and to are ignored. Calling it
// again with from and to swapped undoes the substitution when from holds no
// repeated bytes and to is a permutation of from.
func Substitute(s, from, to string) string {
	var table [256]byte
	for i := range table {
		table[i] = byte(i)
	}
	n := min(len(from), len(to))
	for i := 0; i < n; i++ {
		table[from[i]] = to[i]
	}

	b := []byte(s)
	for i := range b {
		b[i] = table[b[i]]
	}
	return string(b)
}
