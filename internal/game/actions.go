// internal/game/actions.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/wire"
)

// Action type tags as they appear in the "type" field of an action payload.
const (
	ActionSummon             = "summon"
	ActionMove               = "move"
	ActionAttack             = "attack"
	ActionFlip               = "flip"
	ActionTogglePosition     = "togglePosition"
	ActionAttackDeckLeader   = "attackDeckLeader"
	ActionSpecialSummon      = "specialSummon"
	ActionEndTurn            = "endTurn"
	ActionRegisterDeckLeader = "registerDeckLeader"
)

// KnownAction reports whether typ is an action type this build can decode.
func KnownAction(typ string) bool {
	switch typ {
	case ActionSummon, ActionMove, ActionAttack, ActionFlip, ActionTogglePosition,
		ActionAttackDeckLeader, ActionSpecialSummon, ActionEndTurn, ActionRegisterDeckLeader:
		return true
	}
	return false
}

// ErrUnknownAction is returned for an action type this build does not know.
var ErrUnknownAction = errors.New("unknown action type")

// Action is one atomic game-state mutation. The set of implementations is closed;
// Apply switches over all of them.
type Action interface {
	ActionType() string
	isAction()
}

// Summon places a new unit on the board.
type Summon struct {
	Card         models.Card     `json:"card"`
	Owner        models.Side     `json:"owner"`
	X            int             `json:"x"`
	Y            int             `json:"y"`
	Position     models.Position `json:"position"`
	FaceUp       bool            `json:"faceUp"`
	UnitID       string          `json:"unitId,omitempty"`
	IsDeckLeader bool            `json:"isDeckLeader,omitempty"`
	XYZMaterials []models.Card   `json:"xyzMaterials,omitempty"`
}

// Move relocates a unit and optionally changes its battle position.
type Move struct {
	UnitID         string          `json:"unitId"`
	X              int             `json:"x"`
	Y              int             `json:"y"`
	PositionChange bool            `json:"positionChange,omitempty"`
	NewPosition    models.Position `json:"newPosition,omitempty"`
}

// Attack carries the outcome of a battle already resolved by the attacking client.
type Attack struct {
	AttackerID         string `json:"attackerId"`
	DefenderID         string `json:"defenderId"`
	DefenderWasFlipped bool   `json:"defenderWasFlipped,omitempty"`
	DefenderDestroyed  bool   `json:"defenderDestroyed,omitempty"`
	AttackerDestroyed  bool   `json:"attackerDestroyed,omitempty"`
	AttackerMoved      bool   `json:"attackerMoved,omitempty"`
	AttackerX          *int   `json:"attackerX,omitempty"`
	AttackerY          *int   `json:"attackerY,omitempty"`
}

// Flip turns a face-down unit face up.
type Flip struct {
	UnitID string `json:"unitId"`
}

// TogglePosition switches a unit between attack and defense.
type TogglePosition struct {
	UnitID      string          `json:"unitId"`
	NewPosition models.Position `json:"newPosition"`
}

// AttackDeckLeader sets the attacked leader's life points to NewLP.
type AttackDeckLeader struct {
	AttackerID  string      `json:"attackerId"`
	LeaderOwner models.Side `json:"leaderOwner"`
	NewLP       int         `json:"newLP"`
	GameOver    bool        `json:"gameOver,omitempty"`
}

// MaterialCard names the owner of a material sent to the graveyard.
type MaterialCard struct {
	Owner models.Side `json:"owner"`
	Card  models.Card `json:"card"`
}

// SpecialSummon consumes material units. The summoned unit itself arrives as a
// separate Summon.
type SpecialSummon struct {
	SummonType    string         `json:"summonType"`
	Card          models.Card    `json:"card"`
	MaterialIDs   []string       `json:"materialIds,omitempty"`
	MaterialCards []MaterialCard `json:"materialCards,omitempty"`
	XYZMaterials  []models.Card  `json:"xyzMaterials,omitempty"`
}

// EndTurn passes the turn to the other side.
type EndTurn struct{}

// RegisterDeckLeader announces a participant's chosen leader card. The relay server
// intercepts it; it never changes a client's board.
type RegisterDeckLeader struct {
	Leader models.Card `json:"leader"`
}

func (Summon) ActionType() string             { return ActionSummon }
func (Move) ActionType() string               { return ActionMove }
func (Attack) ActionType() string             { return ActionAttack }
func (Flip) ActionType() string               { return ActionFlip }
func (TogglePosition) ActionType() string     { return ActionTogglePosition }
func (AttackDeckLeader) ActionType() string   { return ActionAttackDeckLeader }
func (SpecialSummon) ActionType() string      { return ActionSpecialSummon }
func (EndTurn) ActionType() string            { return ActionEndTurn }
func (RegisterDeckLeader) ActionType() string { return ActionRegisterDeckLeader }

func (Summon) isAction()             {}
func (Move) isAction()               {}
func (Attack) isAction()             {}
func (Flip) isAction()               {}
func (TogglePosition) isAction()     {}
func (AttackDeckLeader) isAction()   {}
func (SpecialSummon) isAction()      {}
func (EndTurn) isAction()            {}
func (RegisterDeckLeader) isAction() {}

// DecodeAction parses a type-tagged action payload. An unrecognized tag yields an
// error wrapping ErrUnknownAction.
func DecodeAction(data []byte) (Action, error) {
	typ, err := wire.PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	var act Action
	switch typ {
	case ActionSummon:
		act, err = decodeInto[Summon](data)
	case ActionMove:
		act, err = decodeInto[Move](data)
	case ActionAttack:
		act, err = decodeInto[Attack](data)
	case ActionFlip:
		act, err = decodeInto[Flip](data)
	case ActionTogglePosition:
		act, err = decodeInto[TogglePosition](data)
	case ActionAttackDeckLeader:
		act, err = decodeInto[AttackDeckLeader](data)
	case ActionSpecialSummon:
		act, err = decodeInto[SpecialSummon](data)
	case ActionEndTurn:
		act = EndTurn{}
	case ActionRegisterDeckLeader:
		act, err = decodeInto[RegisterDeckLeader](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s action: %w", typ, err)
	}
	return act, nil
}

func decodeInto[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeAction serializes act with its "type" tag.
func EncodeAction(act Action) ([]byte, error) {
	return wire.MarshalTagged(act.ActionType(), act)
}
