package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jason-s-yu/dotr/internal/wire"
)

// ErrMalformed is returned for payloads that are not a valid message. Its text is
// what servers send back to the offending client.
var ErrMalformed = errors.New("Invalid message format")

// UnknownTypeText prefixes the relay's reply to an unrecognized message type.
// Clients match on it to tell a version mismatch apart from a real failure.
const UnknownTypeText = "Unknown message type"

// UnknownTypeError builds the error reply for an unrecognized type tag.
func UnknownTypeError(typ string) Error {
	return Error{Message: fmt.Sprintf("%s: %s", UnknownTypeText, typ)}
}

// IsUnknownType reports whether an error message text is an unknown-type reply.
func IsUnknownType(message string) bool {
	return strings.Contains(message, UnknownTypeText)
}

// Encode serializes m with its type tag.
func Encode(m Message) ([]byte, error) {
	if u, ok := m.(Unknown); ok {
		return nil, fmt.Errorf("cannot encode unknown message type %q", u.Type)
	}
	return wire.MarshalTagged(m.MessageType(), m)
}

// MustEncode is Encode for messages built in code, which always encode.
func MustEncode(m Message) []byte {
	data, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses and validates one message. An unrecognized type tag is not an
// error: it decodes to Unknown so that callers decide how loudly to complain.
func Decode(data []byte) (Message, error) {
	typ, err := wire.PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	switch typ {
	case TypeJoin:
		m, err = decodeAs[Join](data)
	case TypeRejoin:
		m, err = decodeAs[Rejoin](data)
	case TypeJoined:
		m, err = decodeAs[Joined](data)
	case TypeGameStart:
		m, err = decodeAs[GameStart](data)
	case TypeAction:
		m, err = decodeAs[Action](data)
	case TypeStateUpdate:
		m, err = decodeAs[StateUpdate](data)
	case TypeOpponentDeckLeader:
		m, err = decodeAs[OpponentDeckLeader](data)
	case TypeError:
		m, err = decodeAs[Error](data)
	case TypeCreate:
		m, err = decodeAs[Create](data)
	case TypeCreated:
		m, err = decodeAs[Created](data)
	case TypeOffer:
		m, err = decodeAs[Offer](data)
	case TypeAnswer:
		m, err = decodeAs[Answer](data)
	case TypeIceCandidate:
		m, err = decodeAs[IceCandidate](data)
	case TypePing:
		m = Ping{}
	case TypePong:
		m = Pong{}
	default:
		return Unknown{Type: typ}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks the fields a message cannot do without. Fields whose presence
// depends on the server (a signaling join needs a room, a relay join does not) are
// left to the receiver.
func Validate(m Message) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %s", ErrMalformed, m.MessageType(), field)
	}

	switch v := m.(type) {
	case Rejoin:
		if v.RoomID == "" {
			return missing("roomId")
		}
		if v.PlayerID == "" {
			return missing("playerId")
		}
	case Joined:
		if v.RoomID == "" {
			return missing("roomId")
		}
	case Action:
		if len(v.Action) == 0 || string(v.Action) == "null" {
			return missing("action")
		}
		if _, err := wire.PeekType(v.Action); err != nil {
			return missing("action.type")
		}
	case Create:
		if v.RoomID == "" {
			return missing("roomId")
		}
	case Offer:
		if isEmptyRaw(v.Offer) {
			return missing("offer")
		}
	case Answer:
		if isEmptyRaw(v.Answer) {
			return missing("answer")
		}
	case IceCandidate:
		if isEmptyRaw(v.Candidate) {
			return missing("candidate")
		}
	}
	return nil
}

func isEmptyRaw(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
