// Package words holds the in-memory word bank used for artist suggestions.
package words

import (
	"bufio"
	_ "embed"
	"errors"
	"math/rand/v2"
	"strings"
)

//go:embed words.txt
var defaultList string

var ErrEmptyBank = errors.New("empty-word-bank")

// Bank is immutable once built, so Generate is safe for concurrent rooms.
type Bank struct {
	words []string
	pick  func(n int) int
}

// Parse reads one word per line. Blank lines and lines starting with # are
// skipped, words are trimmed and lowercased, duplicates are dropped.
func Parse(raw string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		w := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func NewBank(words []string) (*Bank, error) {
	clean := Parse(strings.Join(words, "\n"))
	if len(clean) == 0 {
		return nil, ErrEmptyBank
	}
	return &Bank{words: clean, pick: rand.IntN}, nil
}

// Default is the bank built from the embedded list.
func Default() *Bank {
	b, err := NewBank(Parse(defaultList))
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Bank) Words() []string {
	return append([]string(nil), b.words...)
}

func (b *Bank) Len() int {
	return len(b.words)
}

// Generate returns count distinct random words, or every word when the bank
// is smaller than count.
func (b *Bank) Generate(count int) []string {
	if count <= 0 {
		return []string{}
	}
	if count >= len(b.words) {
		out := append([]string(nil), b.words...)
		b.shuffle(out)
		return out
	}
	picked := make(map[int]struct{}, count)
	out := make([]string, 0, count)
	for len(out) < count {
		i := b.pick(len(b.words))
		if _, dup := picked[i]; dup {
			continue
		}
		picked[i] = struct{}{}
		out = append(out, b.words[i])
	}
	return out
}

func (b *Bank) shuffle(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := b.pick(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
