package game

const (
	TurnSeconds = 180
	// HintEvery is the number of elapsed seconds between two revealed letters.
	HintEvery = 30
)

type TickResult int

const (
	Continuing TickResult = iota
	Expired
)

type Guess struct {
	Text    string
	Correct bool
	Author  ParticipantID
}

type Turn struct {
	Artist      ParticipantID
	Word        *Word
	SecondsLeft int
	Strokes     []byte
	Guesses     []Guess
}

func StartTurn(secret string, artist ParticipantID) (*Turn, error) {
	word, err := NewWord(secret)
	if err != nil {
		return nil, err
	}
	return &Turn{
		Artist:      artist,
		Word:        word,
		SecondsLeft: TurnSeconds,
		Strokes:     []byte{},
		Guesses:     []Guess{},
	}, nil
}

func (t *Turn) Tick() TickResult {
	if t.SecondsLeft <= 0 {
		return Expired
	}
	t.SecondsLeft--
	return Continuing
}

// HintDue reports whether the countdown just crossed a hint boundary and the
// word still has letters left under its hint cap. Half of the letters, rounded
// down, can be revealed at most.
func (t *Turn) HintDue() bool {
	elapsed := TurnSeconds - t.SecondsLeft
	if t.SecondsLeft == 0 || elapsed == 0 || elapsed%HintEvery != 0 {
		return false
	}
	return t.Word.RevealedCount() < t.Word.Len()/2
}

func (t *Turn) AddStrokes(data []byte) {
	t.Strokes = append(t.Strokes, data...)
}

// AddGuess records the guess and its correctness. Points are not awarded here.
func (t *Turn) AddGuess(text string, author ParticipantID) Guess {
	g := Guess{Text: text, Correct: t.Word.Matches(text), Author: author}
	t.Guesses = append(t.Guesses, g)
	return g
}

func (t *Turn) correctGuessers() []ParticipantID {
	seen := make(map[ParticipantID]struct{})
	out := []ParticipantID{}
	for _, g := range t.Guesses {
		if !g.Correct {
			continue
		}
		if _, ok := seen[g.Author]; ok {
			continue
		}
		seen[g.Author] = struct{}{}
		out = append(out, g.Author)
	}
	return out
}
