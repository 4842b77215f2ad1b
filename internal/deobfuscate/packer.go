// Package deobfuscate holds the pure string transforms used to recover
// stream URLs from obfuscated player pages: the P.A.C.K.E.R. unpacker, simple
// character ciphers and static-key AES-GCM. Nothing here performs I/O.
package deobfuscate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sourcery/internal/media"
)

// packedRe matches the argument list of a packed script:
// }('payload',radix,count,'sym|bols'.split('|')
var packedRe = regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+|\[\])\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*'\|'\s*\)`)

var wordRe = regexp.MustCompile(`\b\w+\b`)

const (
	alphabet62 = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// alphabet95 is the printable ASCII range used by high-radix packers.
	alphabet95 = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
)

// IsPacked reports whether script contains a packed payload.
func IsPacked(script string) bool {
	return strings.Contains(script, "eval(function(p,a,c,k,e,") && packedRe.MatchString(script)
}

// Unpack reverses a P.A.C.K.E.R. packed script. The first packed block found
// in script is unpacked; surrounding HTML is ignored.
func Unpack(script string) (string, error) {
	m := packedRe.FindStringSubmatch(script)
	if m == nil {
		return "", fmt.Errorf("%w: no packed script found", media.ErrDeobfuscation)
	}

	payload := unescapeJS(m[1])
	radix := 62
	if m[2] != "[]" {
		r, err := strconv.Atoi(m[2])
		if err != nil {
			return "", fmt.Errorf("%w: bad radix %q", media.ErrDeobfuscation, m[2])
		}
		radix = r
	}
	if radix < 2 || radix > len(alphabet95) {
		return "", fmt.Errorf("%w: unsupported radix %d", media.ErrDeobfuscation, radix)
	}

	count, err := strconv.Atoi(m[3])
	if err != nil {
		return "", fmt.Errorf("%w: bad symbol count %q", media.ErrDeobfuscation, m[3])
	}
	symbols := strings.Split(unescapeJS(m[4]), "|")
	if count != len(symbols) {
		return "", fmt.Errorf("%w: symbol table has %d entries, header says %d",
			media.ErrDeobfuscation, len(symbols), count)
	}

	out := wordRe.ReplaceAllStringFunc(payload, func(word string) string {
		idx, ok := decodeRadix(word, radix)
		if !ok || idx >= len(symbols) || symbols[idx] == "" {
			return word
		}
		return symbols[idx]
	})
	return out, nil
}

// radixDigits is the packer's digit alphabet for radix.
func radixDigits(radix int) string {
	if radix > 62 {
		return alphabet95[:radix]
	}
	return alphabet62[:radix]
}

// decodeRadix parses word as a base-radix number. It accepts only tokens the
// packer's encoder can produce: digits from its case-sensitive alphabet and
// no leading zero.
func decodeRadix(word string, radix int) (int, bool) {
	digits := radixDigits(radix)
	if word == "" || (len(word) > 1 && word[0] == digits[0]) {
		return 0, false
	}
	n := 0
	for i := 0; i < len(word); i++ {
		d := strings.IndexByte(digits, word[i])
		if d < 0 {
			return 0, false
		}
		n = n*radix + d
		if n < 0 {
			return 0, false
		}
	}
	return n, true
}

// EncodeRadix is the inverse of the packer's token decoder.
func EncodeRadix(n, radix int) string {
	digits := radixDigits(radix)
	if n == 0 {
		return digits[:1]
	}
	var b []byte
	for n > 0 {
		b = append(b, digits[n%radix])
		n /= radix
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func unescapeJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`)
	return r.Replace(s)
}
