package media

import (
	"context"
	"errors"
)

// Sentinel errors forming the closed taxonomy that providers report through.
// Wrap them with fmt.Errorf("...: %w", ErrX) to add detail.
var (
	// ErrNotFound is the expected "nothing here for this query" signal.
	ErrNotFound = errors.New("not found")
	// ErrDeobfuscation means an obfuscated page no longer matches the unpacker.
	ErrDeobfuscation = errors.New("deobfuscation failed")
	// ErrDecryption means a payload could not be decrypted or decoded.
	ErrDecryption = errors.New("decryption failed")
	// ErrTimeout means a provider or poll loop exceeded its bound.
	ErrTimeout = errors.New("timed out")
	// ErrTransport is a network or HTTP failure.
	ErrTransport = errors.New("transport error")
	// ErrConfiguration means a required credential or setting is missing.
	ErrConfiguration = errors.New("configuration error")
)

// ErrorKind is the closed enum of error categories.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindDeobfuscation
	KindDecryption
	KindTimeout
	KindTransport
	KindConfiguration
	KindCanceled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not-found"
	case KindDeobfuscation:
		return "deobfuscation"
	case KindDecryption:
		return "decryption"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindConfiguration:
		return "configuration"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// KindOf classifies err. Deadline expiry counts as a timeout.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDeobfuscation):
		return KindDeobfuscation
	case errors.Is(err, ErrDecryption):
		return KindDecryption
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindOther
	}
}

// Recoverable reports whether err is a soft "nothing usable here" failure:
// not-found, deobfuscation and decryption errors.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindDeobfuscation, KindDecryption:
		return true
	}
	return false
}
