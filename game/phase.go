package game

type PhaseKind string

const (
	PhaseJoining       PhaseKind = "Joining"
	PhaseSelectingWord PhaseKind = "SelectingWord"
	PhaseDrawing       PhaseKind = "Drawing"
)

// Phase is one of Joining, SelectingWord or Drawing. Each case carries only
// the data valid while it is active.
type Phase interface {
	Kind() PhaseKind
	isPhase()
}

type Joining struct{}

type SelectingWord struct {
	Artist ParticipantID
}

type Drawing struct {
	Turn *Turn
}

func (Joining) Kind() PhaseKind       { return PhaseJoining }
func (SelectingWord) Kind() PhaseKind { return PhaseSelectingWord }
func (Drawing) Kind() PhaseKind       { return PhaseDrawing }

func (Joining) isPhase()       {}
func (SelectingWord) isPhase() {}
func (Drawing) isPhase()       {}

// artistOf returns the artist of the active phase, if any.
func artistOf(p Phase) (ParticipantID, bool) {
	switch p := p.(type) {
	case SelectingWord:
		return p.Artist, true
	case Drawing:
		return p.Turn.Artist, true
	default:
		return "", false
	}
}
