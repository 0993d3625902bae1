package random

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// Random provides random number generation that can be replaced in tests.
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) string
}

// CryptoRandom implements Random using crypto/rand. Intn(2) is an unbiased
// coin flip, which the match relies on to pick the first turn.
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		return 0
	}
	return int(result.Int64())
}

// String generates a random string of the given length from the given alphabet
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	result := make([]byte, length)
	for i := range result {
		result[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(result)
}

// Sequence is a deterministic Random for tests. It replays the queued values
// and falls back to 0 and to crypto strings once they run out.
type Sequence struct {
	mu      sync.Mutex
	Ints    []int
	Strings []string
}

// Intn returns the next queued int.
func (s *Sequence) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}

// String returns the next queued string.
func (s *Sequence) String(length int, alphabet string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Strings) == 0 {
		return New().String(length, alphabet)
	}
	v := s.Strings[0]
	s.Strings = s.Strings[1:]
	return v
}
