// Package fingerprint derives irreversible identity tokens from face descriptors.
// The raw descriptor never leaves the process; only the keyed digest is stored.
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"strconv"
	"sync"
	"time"
)

// Fingerprint is a 64 character lowercase hex HMAC-SHA256 digest.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Extractor produces fingerprints keyed by a deployment secret. It is safe for
// concurrent use.
type Extractor struct {
	pool sync.Pool
}

// New creates an Extractor keyed by salt.
func New(salt string) (*Extractor, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	key := []byte(salt)
	return &Extractor{
		pool: sync.Pool{
			New: func() any { return hmac.New(sha256.New, key) },
		},
	}, nil
}

// Fingerprint hashes the canonical encoding of descriptor: a big-endian uint32
// dimension followed by each component's IEEE-754 float64 bits, big-endian.
func (e *Extractor) Fingerprint(descriptor []float64) (Fingerprint, error) {
	if len(descriptor) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}

	buf := make([]byte, 4+8*len(descriptor))
	binary.BigEndian.PutUint32(buf, uint32(len(descriptor)))
	for i, v := range descriptor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: non-finite component at %d", ErrInvalidDescriptor, i)
		}
		binary.BigEndian.PutUint64(buf[4+8*i:], math.Float64bits(v))
	}

	return e.sum(buf), nil
}

// Placeholder derives a synthetic fingerprint for manually reported counts.
func (e *Extractor) Placeholder(zone string, at time.Time, index int) Fingerprint {
	b := make([]byte, 0, 64)
	b = append(b, "manual:"...)
	b = append(b, zone...)
	b = append(b, ':')
	b = strconv.AppendInt(b, at.UnixNano(), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(index), 10)
	return e.sum(b)
}

func (e *Extractor) sum(data []byte) Fingerprint {
	h := e.pool.Get().(hash.Hash)
	defer func() {
		h.Reset()
		e.pool.Put(h)
	}()

	h.Write(data)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
