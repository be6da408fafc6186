package game

type SnapshotParticipant struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Points int           `json:"points"`
}

type SnapshotGuess struct {
	Text    string        `json:"text"`
	Correct bool          `json:"correct"`
	Author  ParticipantID `json:"author"`
}

type SnapshotPhase struct {
	Type        PhaseKind       `json:"type"`
	Artist      ParticipantID   `json:"artist,omitempty"`
	Revealed    []*string       `json:"revealed,omitempty"`
	SecondsLeft *int            `json:"secondsLeft,omitempty"`
	Strokes     []byte          `json:"strokes,omitempty"`
	Guesses     []SnapshotGuess `json:"guesses,omitempty"`
}

// Snapshot is what a participant sees of a Session. The secret word is never
// part of it.
type Snapshot struct {
	Room         string                `json:"room"`
	Participants []SnapshotParticipant `json:"participants"`
	Phase        SnapshotPhase         `json:"phase"`
	Suggestions  []string              `json:"suggestions,omitempty"`
}

// Snapshot builds the view of viewer. Word suggestions are only included for
// the artist while a word is being selected.
func (s *Session) Snapshot(room string, viewer ParticipantID) Snapshot {
	snap := Snapshot{
		Room:         room,
		Participants: make([]SnapshotParticipant, 0, len(s.order)),
	}
	for _, id := range s.order {
		p := s.participants[id]
		snap.Participants = append(snap.Participants, SnapshotParticipant{ID: id, Name: p.Name, Points: p.Points})
	}

	switch p := s.phase.(type) {
	case Joining:
		snap.Phase = SnapshotPhase{Type: PhaseJoining}
	case SelectingWord:
		snap.Phase = SnapshotPhase{Type: PhaseSelectingWord, Artist: p.Artist}
		if viewer != "" && viewer == p.Artist && len(s.suggestions) > 0 {
			snap.Suggestions = append([]string(nil), s.suggestions...)
		}
	case Drawing:
		snap.Phase = drawingView(p.Turn)
	}
	return snap
}

func drawingView(t *Turn) SnapshotPhase {
	seconds := t.SecondsLeft
	view := SnapshotPhase{
		Type:        PhaseDrawing,
		Artist:      t.Artist,
		Revealed:    make([]*string, t.Word.Len()),
		SecondsLeft: &seconds,
		Strokes:     append([]byte(nil), t.Strokes...),
		Guesses:     make([]SnapshotGuess, 0, len(t.Guesses)),
	}
	for i, r := range t.Word.Letters() {
		if r == nil {
			continue
		}
		letter := string(*r)
		view.Revealed[i] = &letter
	}
	for _, g := range t.Guesses {
		text := g.Text
		if g.Correct {
			// a correct guess spells the secret
			text = ""
		}
		view.Guesses = append(view.Guesses, SnapshotGuess{Text: text, Correct: g.Correct, Author: g.Author})
	}
	return view
}
