package oracle

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Source produces the 32-byte result for a dispatched request.
type Source interface {
	Randomness(d Dispatch) ([32]byte, error)
}

// Source kinds accepted by NewSource.
const (
	SourceCrypto = "crypto"
	SourceHMAC   = "hmac"
)

// NewSource builds the named source. seed is used by the hmac source only.
func NewSource(kind, seed string) (Source, error) {
	switch kind {
	case "", SourceCrypto:
		return NewCryptoSource(), nil
	case SourceHMAC:
		return NewHMACSource(seed)
	default:
		return nil, fmt.Errorf("unknown randomness source %q", kind)
	}
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source { return cryptoSource{} }

func (cryptoSource) Randomness(Dispatch) ([32]byte, error) {
	var out [32]byte
	if _, err := rand.Read(out[:]); err != nil {
		return out, fmt.Errorf("reading crypto/rand: %w", err)
	}
	return out, nil
}

// hmacSource derives results from a secret seed so that runs are reproducible:
// HMAC-SHA256(seed, feed || counter).
type hmacSource struct {
	key []byte
}

// NewHMACSource returns a deterministic Source keyed by seed.
//
// Precondition: seed must be non-empty.
func NewHMACSource(seed string) (Source, error) {
	if seed == "" {
		return nil, errors.New("hmac source requires a seed")
	}
	return &hmacSource{key: []byte(seed)}, nil
}

func (s *hmacSource) Randomness(d Dispatch) ([32]byte, error) {
	m := hmac.New(sha256.New, s.key)
	_, _ = m.Write(d.Feed[:])
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], d.Counter)
	_, _ = m.Write(ctr[:])
	var out [32]byte
	copy(out[:], m.Sum(nil))
	return out, nil
}

// ScriptedSource returns queued buffers in order. It is used to replay known
// outcomes.
type ScriptedSource struct {
	mu   sync.Mutex
	bufs [][32]byte
}

// NewScriptedSource queues bufs.
func NewScriptedSource(bufs ...[32]byte) *ScriptedSource {
	return &ScriptedSource{bufs: bufs}
}

// Push appends buf to the queue.
func (s *ScriptedSource) Push(buf [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufs = append(s.bufs, buf)
}

// Randomness returns the next queued buffer.
func (s *ScriptedSource) Randomness(Dispatch) ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bufs) == 0 {
		return [32]byte{}, errors.New("scripted source exhausted")
	}
	buf := s.bufs[0]
	s.bufs = s.bufs[1:]
	return buf, nil
}
