package game

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the binary client packet.
const (
	fieldCanvasFrames protowire.Number = 1
	fieldGuess        protowire.Number = 2
	fieldWordSelected protowire.Number = 3
	fieldName         protowire.Number = 4
)

type wireEvent struct {
	Type   EventType     `json:"type"`
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	Word   string        `json:"word"`
	Frames []byte        `json:"frames"`
	Guess  string        `json:"guess"`
}

// DecodeEvent turns one inbound frame into an Event. JSON objects are read as
// tagged events; anything else is read as a binary client packet.
func DecodeEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	if trimmed[0] == '{' {
		return decodeJSON(trimmed)
	}
	return decodeBinary(data)
}

func decodeJSON(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	switch w.Type {
	case TypeGotJoin:
		return GotJoin{}, nil
	case TypeGotLeave:
		return GotLeave{}, nil
	case TypeSetName:
		return SetName{ID: w.ID, Name: w.Name}, nil
	case TypeWordSelected:
		return WordSelected{Word: w.Word}, nil
	case TypeGotCanvasFrames:
		return GotCanvasFrames{Frames: w.Frames}, nil
	case TypeGotGuess:
		return GotGuess{Guess: w.Guess}, nil
	case TypeTick:
		return Tick{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrDecode, w.Type)
	}
}

// decodeBinary reads the first known field of a protobuf-encoded client
// packet. Unknown fields are skipped.
func decodeBinary(data []byte) (Event, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		value, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldCanvasFrames:
			return GotCanvasFrames{Frames: append([]byte(nil), value...)}, nil
		case fieldGuess:
			return GotGuess{Guess: string(value)}, nil
		case fieldWordSelected:
			return WordSelected{Word: string(value)}, nil
		case fieldName:
			return SetName{Name: string(value)}, nil
		}
	}
	return nil, fmt.Errorf("%w: no known field", ErrDecode)
}

// AppendCanvasFrames encodes drawing data as a binary client packet.
func AppendCanvasFrames(b []byte, frames []byte) []byte {
	b = protowire.AppendTag(b, fieldCanvasFrames, protowire.BytesType)
	return protowire.AppendBytes(b, frames)
}

func AppendGuess(b []byte, guess string) []byte {
	b = protowire.AppendTag(b, fieldGuess, protowire.BytesType)
	return protowire.AppendString(b, guess)
}

func AppendWordSelected(b []byte, word string) []byte {
	b = protowire.AppendTag(b, fieldWordSelected, protowire.BytesType)
	return protowire.AppendString(b, word)
}

func AppendName(b []byte, name string) []byte {
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	return protowire.AppendString(b, name)
}

type outbound struct {
	Me      ParticipantID   `json:"me"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeFor wraps an already marshaled snapshot for one recipient.
func EncodeFor(me ParticipantID, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(outbound{Me: me, Payload: payload})
}
