// Package protocol defines the JSON messages exchanged by the relay server, the
// signaling server and their clients. Every message is an object discriminated by
// its "type" field; the same vocabulary travels over the relay websocket and over
// the peer data channel.
package protocol

import (
	"encoding/json"

	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
)

// Message type tags.
const (
	TypeJoin               = "join"
	TypeRejoin             = "rejoin"
	TypeJoined             = "joined"
	TypeGameStart          = "gameStart"
	TypeAction             = "action"
	TypeStateUpdate        = "stateUpdate"
	TypeOpponentDeckLeader = "opponentDeckLeader"
	TypeError              = "error"
	TypeCreate             = "create"
	TypeCreated            = "created"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeIceCandidate       = "ice-candidate"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Message is implemented by every wire message. The set is closed.
type Message interface {
	MessageType() string
	isMessage()
}

// Join asks the relay for a seat in the first open room. On the signaling server
// RoomID names the room to enter.
type Join struct {
	PlayerName string `json:"playerName,omitempty"`
	RoomID     string `json:"roomId,omitempty"`
}

// Rejoin re-attaches a stored participant identity to its room.
type Rejoin struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Token    string `json:"token,omitempty"`
}

// Joined confirms a join or rejoin. Token, when set, must be presented on the
// next rejoin.
type Joined struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
	IsHost   bool   `json:"isHost"`
	Token    string `json:"token,omitempty"`
}

// GameStart carries the initial snapshot. The signaling server sends it without a
// state to tell both peers the room is complete.
type GameStart struct {
	GameState *models.Snapshot `json:"gameState,omitempty"`
}

// Action wraps one game action. The payload is kept raw so that the relay can
// forward it without re-encoding.
type Action struct {
	RoomID   string          `json:"roomId,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	Action   json.RawMessage `json:"action"`
}

// StateUpdate carries a full snapshot to be reconciled by the receiver.
type StateUpdate struct {
	State models.Snapshot `json:"state"`
}

// OpponentDeckLeader tells a participant which leader the other side registered.
type OpponentDeckLeader struct {
	Leader       models.Card `json:"leader"`
	OpponentName string      `json:"opponentName,omitempty"`
}

// Error reports a failure to the receiving side only.
type Error struct {
	Message string `json:"message"`
}

// Create opens a signaling room under a caller-chosen identifier.
type Create struct {
	RoomID string `json:"roomId"`
}

// Created confirms a Create.
type Created struct {
	RoomID string `json:"roomId"`
}

// Offer is an opaque session description from the host.
type Offer struct {
	RoomID string          `json:"roomId,omitempty"`
	Offer  json.RawMessage `json:"offer"`
}

// Answer is an opaque session description from the joiner.
type Answer struct {
	RoomID string          `json:"roomId,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

// IceCandidate is an opaque connectivity candidate.
type IceCandidate struct {
	RoomID    string          `json:"roomId,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// Ping is a liveness probe on the peer data channel.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// Unknown is what Decode returns for a type tag this build does not know. It is
// never encoded.
type Unknown struct {
	Type string `json:"-"`
}

func (Join) MessageType() string               { return TypeJoin }
func (Rejoin) MessageType() string             { return TypeRejoin }
func (Joined) MessageType() string             { return TypeJoined }
func (GameStart) MessageType() string          { return TypeGameStart }
func (Action) MessageType() string             { return TypeAction }
func (StateUpdate) MessageType() string        { return TypeStateUpdate }
func (OpponentDeckLeader) MessageType() string { return TypeOpponentDeckLeader }
func (Error) MessageType() string              { return TypeError }
func (Create) MessageType() string             { return TypeCreate }
func (Created) MessageType() string            { return TypeCreated }
func (Offer) MessageType() string              { return TypeOffer }
func (Answer) MessageType() string             { return TypeAnswer }
func (IceCandidate) MessageType() string       { return TypeIceCandidate }
func (Ping) MessageType() string               { return TypePing }
func (Pong) MessageType() string               { return TypePong }
func (u Unknown) MessageType() string          { return u.Type }

func (Join) isMessage()               {}
func (Rejoin) isMessage()             {}
func (Joined) isMessage()             {}
func (GameStart) isMessage()          {}
func (Action) isMessage()             {}
func (StateUpdate) isMessage()        {}
func (OpponentDeckLeader) isMessage() {}
func (Error) isMessage()              {}
func (Create) isMessage()             {}
func (Created) isMessage()            {}
func (Offer) isMessage()              {}
func (Answer) isMessage()             {}
func (IceCandidate) isMessage()       {}
func (Ping) isMessage()               {}
func (Pong) isMessage()               {}
func (Unknown) isMessage()            {}

// NewAction encodes act into an action message.
func NewAction(roomID, playerID string, act game.Action) (Action, error) {
	payload, err := game.EncodeAction(act)
	if err != nil {
		return Action{}, err
	}
	return Action{RoomID: roomID, PlayerID: playerID, Action: payload}, nil
}

// Decode parses the embedded game action.
func (a Action) Decode() (game.Action, error) {
	return game.DecodeAction(a.Action)
}

// ActionType returns the embedded action's type tag without decoding it.
func (a Action) ActionType() string {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(a.Action, &head)
	return head.Type
}
