package random

import (
	"strings"
	"testing"
)

func TestCryptoRandomIntnRange(t *testing.T) {
	r := New()
	counts := [2]int{}
	for i := 0; i < 2000; i++ {
		v := r.Intn(2)
		if v < 0 || v > 1 {
			t.Fatalf("Intn(2) returned %d", v)
		}
		counts[v]++
	}
	// Loose bound; a fair coin lands far inside it.
	if counts[0] < 800 || counts[1] < 800 {
		t.Errorf("coin looks biased: %v", counts)
	}
}

func TestCryptoRandomString(t *testing.T) {
	const alphabet = "ABC"
	s := New().String(12, alphabet)
	if len(s) != 12 {
		t.Fatalf("Expected length 12, got %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("Unexpected character %q", c)
		}
	}
}

func TestSequenceReplaysQueue(t *testing.T) {
	s := &Sequence{Ints: []int{1, 0}, Strings: []string{"ABC123"}}
	if got := s.Intn(2); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}
	if got := s.Intn(2); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if got := s.Intn(2); got != 0 {
		t.Errorf("Expected fallback 0, got %d", got)
	}
	if got := s.String(6, "X"); got != "ABC123" {
		t.Errorf("Expected ABC123, got %s", got)
	}
	if got := s.String(3, "X"); got != "XXX" {
		t.Errorf("Expected fallback XXX, got %s", got)
	}
}
