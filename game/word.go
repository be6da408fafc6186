package game

import "fmt"

// Word is the secret of a turn together with the letters disclosed so far.
type Word struct {
	secret   string
	letters  []rune
	revealed []bool
}

func NewWord(secret string) (*Word, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidWord)
	}
	letters := []rune(secret)
	return &Word{
		secret:   secret,
		letters:  letters,
		revealed: make([]bool, len(letters)),
	}, nil
}

// Reveal discloses up to count hidden letters, lowest index first, and
// returns how many were newly disclosed.
func (w *Word) Reveal(count int) int {
	disclosed := 0
	for i := range w.revealed {
		if disclosed >= count {
			break
		}
		if w.revealed[i] {
			continue
		}
		w.revealed[i] = true
		disclosed++
	}
	return disclosed
}

func (w *Word) Matches(candidate string) bool {
	return candidate == w.secret
}

// Letters returns the reveal mask: the letter at disclosed positions, nil elsewhere.
func (w *Word) Letters() []*rune {
	out := make([]*rune, len(w.letters))
	for i, r := range w.letters {
		if w.revealed[i] {
			out[i] = &r
		}
	}
	return out
}

func (w *Word) Len() int {
	return len(w.letters)
}

func (w *Word) RevealedCount() int {
	n := 0
	for _, ok := range w.revealed {
		if ok {
			n++
		}
	}
	return n
}

// Secret must never leave the process except through the turn archive.
func (w *Word) Secret() string {
	return w.secret
}
