package sources

import (
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"sourcery/internal/deobfuscate"
	"sourcery/internal/media"
)

// The megacloud source cipher runs three layers over printable ASCII, each a
// seeded shift, a columnar transposition and a seeded substitution. The
// plaintext carries its own length as a four digit prefix.

const (
	printableLo    = 32
	printableCount = 95
	cipherLayers   = 3
)

func printable(c byte) bool {
	return c >= printableLo && c < printableLo+printableCount
}

// lcg is the linear congruential generator both seeded steps draw from.
type lcg uint64

func (s *lcg) next(n int) int {
	*s = (*s*1103515245 + 12345) & 0x7fffffff
	return int(uint64(*s) % uint64(n))
}

// hash31 is the 32-bit rolling hash used to seed a layer.
func hash31(s string) lcg {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = (h*31 + uint64(s[i])) & 0xffffffff
	}
	return lcg(h)
}

// deriveKey mixes the published player key with the page's client key.
func deriveKey(playerKey, clientKey string) string {
	const (
		xorVal   = 247
		shiftVal = 5
	)
	mixed := playerKey + clientKey
	if mixed == "" {
		return ""
	}

	h := new(big.Int)
	for i := 0; i < len(mixed); i++ {
		// h = c + 31h + (h << 7) - h
		prev := new(big.Int).Set(h)
		h.Mul(prev, big.NewInt(31))
		h.Add(h, new(big.Int).Lsh(prev, 7))
		h.Sub(h, prev)
		h.Add(h, big.NewInt(int64(mixed[i])))
	}
	h.Abs(h)
	seed := new(big.Int).Mod(h, new(big.Int).SetUint64(0x7fffffffffffffff)).Int64()

	xored := make([]byte, len(mixed))
	for i := range len(mixed) {
		xored[i] = mixed[i] ^ xorVal
	}
	pivot := (int(seed%int64(len(xored))) + shiftVal) % len(xored)
	rotated := append(xored[pivot:len(xored):len(xored)], xored[:pivot]...)

	leaf := []byte(clientKey)
	slices.Reverse(leaf)
	key := make([]byte, 0, len(rotated)+len(leaf))
	for i := range max(len(rotated), len(leaf)) {
		if i < len(rotated) {
			key = append(key, rotated[i])
		}
		if i < len(leaf) {
			key = append(key, leaf[i])
		}
	}

	key = key[:min(len(key), 96+int(seed%33))]
	for i, c := range key {
		key[i] = byte(int(c)%printableCount + printableLo)
	}
	return string(key)
}

// columnOrder returns the column indexes of key sorted by key byte, ties in
// position order.
func columnOrder(key string) []int {
	order := make([]int, len(key))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return int(key[a]) - int(key[b]) })
	return order
}

// substitutionTable is the printable alphabet shuffled by a seeded
// Fisher-Yates pass.
func substitutionTable(key string) [printableCount]byte {
	var table [printableCount]byte
	for i := range table {
		table[i] = byte(printableLo + i)
	}
	rng := hash31(key)
	for i := len(table) - 1; i > 0; i-- {
		j := rng.next(i + 1)
		table[i], table[j] = table[j], table[i]
	}
	return table
}

func unshift(b []byte, key string) {
	rng := hash31(key)
	for i, c := range b {
		if !printable(c) {
			continue
		}
		idx := int(c) - printableLo
		b[i] = byte(printableLo + (idx-rng.next(printableCount)+printableCount)%printableCount)
	}
}

func untranspose(b []byte, key string) []byte {
	cols := len(key)
	rows := (len(b) + cols - 1) / cols
	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}
	k := 0
	for _, col := range columnOrder(key) {
		for row := 0; row < rows && k < len(b); row++ {
			grid[row*cols+col] = b[k]
			k++
		}
	}
	return grid
}

func unsubstitute(b []byte, key string) {
	table := substitutionTable(key)
	var reverse [256]byte
	for i := range reverse {
		reverse[i] = byte(i)
	}
	for i, c := range table {
		reverse[c] = byte(printableLo + i)
	}
	for i, c := range b {
		b[i] = reverse[c]
	}
}

// decryptSources recovers the JSON source list from an encrypted getSources
// payload.
func decryptSources(payload, clientKey, playerKey string) (string, error) {
	key := deriveKey(playerKey, clientKey)
	if key == "" {
		return "", fmt.Errorf("%w: empty source key", media.ErrDecryption)
	}
	b, err := deobfuscate.DecodeBase64(payload)
	if err != nil {
		return "", err
	}

	for layer := cipherLayers; layer > 0; layer-- {
		layerKey := key + strconv.Itoa(layer)
		unshift(b, layerKey)
		b = untranspose(b, layerKey)
		unsubstitute(b, layerKey)
	}

	if len(b) < 4 {
		return "", fmt.Errorf("%w: source payload too short", media.ErrDecryption)
	}
	n, err := strconv.Atoi(string(b[:4]))
	if err != nil || n < 0 || 4+n > len(b) {
		return "", fmt.Errorf("%w: bad source length prefix", media.ErrDecryption)
	}
	return string(b[4 : 4+n]), nil
}
