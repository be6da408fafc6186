package game

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength    = 32
	MaxGuessLength   = 100
	SuggestionsCount = 3
)

type ParticipantID string

type Participant struct {
	Name   string
	Points int
}

type TurnEndReason string

const (
	TurnExpired TurnEndReason = "expired"
	ArtistLeft  TurnEndReason = "artist-left"
)

// TurnRecord summarizes a finished turn. Strokes and guess texts are not
// kept: they are discarded together with the Turn.
type TurnRecord struct {
	Artist          ParticipantID
	ArtistName      string
	Word            string
	Guesses         int
	CorrectGuessers []string
	Reason          TurnEndReason
}

// Session is the state of one game room. It is not safe for concurrent use:
// only the owning Coordinator calls into it.
type Session struct {
	participants map[ParticipantID]*Participant
	order        []ParticipantID
	cursor       int
	phase        Phase
	suggestions  []string
	words        WordsGenerator
	onTurnEnd    func(TurnRecord)
}

func NewSession(words WordsGenerator) *Session {
	return &Session{
		participants: make(map[ParticipantID]*Participant),
		order:        make([]ParticipantID, 0, 8),
		cursor:       -1,
		phase:        Joining{},
		words:        words,
	}
}

// OnTurnEnd registers a hook called synchronously whenever a Drawing phase
// ends. The hook must not block.
func (s *Session) OnTurnEnd(fn func(TurnRecord)) {
	s.onTurnEnd = fn
}

func (s *Session) Phase() Phase {
	return s.phase
}

func (s *Session) Len() int {
	return len(s.order)
}

func (s *Session) Participant(id ParticipantID) (Participant, bool) {
	p, ok := s.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Order returns participant ids in join order.
func (s *Session) Order() []ParticipantID {
	return append([]ParticipantID(nil), s.order...)
}

// Suggestions are the words offered to the artist while selecting.
func (s *Session) Suggestions() []string {
	return append([]string(nil), s.suggestions...)
}

// Apply runs one event through the phase machine. A nil error means the
// session changed. Any error leaves the session untouched.
func (s *Session) Apply(from ParticipantID, ev Event) error {
	switch ev := ev.(type) {
	case GotJoin:
		return s.join(from)
	case GotLeave:
		return s.leave(from)
	case SetName:
		return s.setName(from, ev)
	case WordSelected:
		return s.selectWord(from, ev.Word)
	case GotCanvasFrames:
		return s.addFrames(from, ev.Frames)
	case GotGuess:
		return s.guess(from, ev.Guess)
	case Tick:
		return s.tick()
	default:
		return fmt.Errorf("%w: unsupported event %T", ErrIllegalTransition, ev)
	}
}

func (s *Session) join(id ParticipantID) error {
	if _, ok := s.participants[id]; ok {
		return fmt.Errorf("%w: %s already joined", ErrIllegalTransition, id)
	}
	s.participants[id] = &Participant{}
	s.order = append(s.order, id)
	return nil
}

func (s *Session) leave(id ParticipantID) error {
	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}
	idx := s.indexOf(id)
	delete(s.participants, id)
	s.order = append(s.order[:idx], s.order[idx+1:]...)

	switch {
	case idx < s.cursor:
		s.cursor--
	case idx == s.cursor:
		s.cursor = idx - 1
	}

	artist, hasArtist := artistOf(s.phase)
	if !hasArtist || artist != id {
		return nil
	}
	if d, drawing := s.phase.(Drawing); drawing {
		s.endTurn(d.Turn, p.Name, ArtistLeft)
	}
	s.rotate()
	return nil
}

func (s *Session) setName(from ParticipantID, ev SetName) error {
	p, ok := s.participants[ev.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, ev.ID)
	}
	if ev.ID != from {
		return fmt.Errorf("%w: %s cannot rename %s", ErrIllegalTransition, from, ev.ID)
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: invalid name", ErrIllegalTransition)
	}
	p.Name = name

	if _, joining := s.phase.(Joining); joining {
		s.beginSelecting(s.indexOf(ev.ID))
	}
	return nil
}

func (s *Session) selectWord(from ParticipantID, word string) error {
	sel, ok := s.phase.(SelectingWord)
	if !ok || sel.Artist != from {
		return fmt.Errorf("%w: %s cannot select a word now", ErrIllegalTransition, from)
	}
	turn, err := StartTurn(strings.TrimSpace(word), from)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIllegalTransition, err)
	}
	s.phase = Drawing{Turn: turn}
	s.suggestions = nil
	return nil
}

func (s *Session) addFrames(from ParticipantID, frames []byte) error {
	d, ok := s.phase.(Drawing)
	if !ok || d.Turn.Artist != from {
		return fmt.Errorf("%w: %s is not drawing", ErrIllegalTransition, from)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w: empty frames", ErrIllegalTransition)
	}
	d.Turn.AddStrokes(frames)
	return nil
}

func (s *Session) guess(from ParticipantID, text string) error {
	d, ok := s.phase.(Drawing)
	if !ok {
		return fmt.Errorf("%w: no turn in progress", ErrIllegalTransition)
	}
	if _, present := s.participants[from]; !present {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, from)
	}
	if d.Turn.Artist == from {
		return fmt.Errorf("%w: the artist cannot guess", ErrIllegalTransition)
	}
	if text == "" || utf8.RuneCountInString(text) > MaxGuessLength {
		return fmt.Errorf("%w: invalid guess", ErrIllegalTransition)
	}
	d.Turn.AddGuess(text, from)
	return nil
}

func (s *Session) tick() error {
	d, ok := s.phase.(Drawing)
	if !ok {
		return fmt.Errorf("%w: tick outside of a turn", ErrIllegalTransition)
	}
	if d.Turn.Tick() == Continuing {
		if d.Turn.HintDue() {
			d.Turn.Word.Reveal(1)
		}
		return nil
	}
	artistName := ""
	if p, ok := s.participants[d.Turn.Artist]; ok {
		artistName = p.Name
	}
	s.endTurn(d.Turn, artistName, TurnExpired)
	s.rotate()
	return nil
}

// rotate hands the turn to the next named participant after the cursor in
// join order, wrapping around. Without one the room goes back to Joining.
func (s *Session) rotate() {
	n := len(s.order)
	for step := 1; step <= n; step++ {
		i := (s.cursor + step) % n
		if s.participants[s.order[i]].Name != "" {
			s.beginSelecting(i)
			return
		}
	}
	s.phase = Joining{}
	s.suggestions = nil
}

func (s *Session) beginSelecting(idx int) {
	s.cursor = idx
	s.phase = SelectingWord{Artist: s.order[idx]}
	s.suggestions = nil
	if s.words != nil {
		s.suggestions = s.words.Generate(SuggestionsCount)
	}
}

func (s *Session) endTurn(t *Turn, artistName string, reason TurnEndReason) {
	if s.onTurnEnd == nil {
		return
	}
	correct := []string{}
	for _, id := range t.correctGuessers() {
		if p, ok := s.participants[id]; ok && p.Name != "" {
			correct = append(correct, p.Name)
			continue
		}
		correct = append(correct, string(id))
	}
	s.onTurnEnd(TurnRecord{
		Artist:          t.Artist,
		ArtistName:      artistName,
		Word:            t.Word.Secret(),
		Guesses:         len(t.Guesses),
		CorrectGuessers: correct,
		Reason:          reason,
	})
}

func (s *Session) indexOf(id ParticipantID) int {
	for i, other := range s.order {
		if other == id {
			return i
		}
	}
	return -1
}
