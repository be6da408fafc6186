package game

type EventType string

const (
	TypeGotJoin         EventType = "GotJoin"
	TypeGotLeave        EventType = "GotLeave"
	TypeSetName         EventType = "SetName"
	TypeWordSelected    EventType = "WordSelected"
	TypeGotCanvasFrames EventType = "GotCanvasFrames"
	TypeGotGuess        EventType = "GotGuess"
	TypeTick            EventType = "Tick"
)

// Event is one inbound message applied to a Session.
type Event interface {
	Type() EventType
}

type GotJoin struct{}

type GotLeave struct{}

type SetName struct {
	ID   ParticipantID
	Name string
}

type WordSelected struct {
	Word string
}

type GotCanvasFrames struct {
	Frames []byte
}

type GotGuess struct {
	Guess string
}

type Tick struct{}

func (GotJoin) Type() EventType         { return TypeGotJoin }
func (GotLeave) Type() EventType        { return TypeGotLeave }
func (SetName) Type() EventType         { return TypeSetName }
func (WordSelected) Type() EventType    { return TypeWordSelected }
func (GotCanvasFrames) Type() EventType { return TypeGotCanvasFrames }
func (GotGuess) Type() EventType        { return TypeGotGuess }
func (Tick) Type() EventType            { return TypeTick }

// fromClient reports whether a connection may send this event itself.
// Joins, leaves and ticks are produced by the server only.
func fromClient(e Event) bool {
	switch e.(type) {
	case SetName, WordSelected, GotCanvasFrames, GotGuess:
		return true
	default:
		return false
	}
}

// rateLimited reports whether the event counts against a connection's
// message budget. Drawing data is never throttled.
func rateLimited(e Event) bool {
	_, isFrames := e.(GotCanvasFrames)
	return !isFrames
}
