// internal/game/apply.go
package game

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/dotr/internal/models"
)

// SummonTypeXYZ is the special summon variant whose materials stay attached to the
// summoned unit instead of going to the graveyard.
const SummonTypeXYZ = "XYZ"

// Apply performs act on st. actor is the side that took the action: the opponent
// for an inbound action, the local side for a locally performed one.
//
// Actions referencing units that are not on the board are applied as far as
// possible and never fail; the only error is ErrUnknownAction.
func Apply(st *State, act Action, actor models.Side) error {
	switch a := act.(type) {
	case Summon:
		applySummon(st, a)
	case Move:
		if u := st.FindUnit(a.UnitID); u != nil {
			u.X, u.Y = a.X, a.Y
			u.HasMoved = true
			if a.PositionChange && a.NewPosition != "" {
				u.Position = a.NewPosition
			}
		}
	case Attack:
		applyAttack(st, a)
	case Flip:
		if u := st.FindUnit(a.UnitID); u != nil {
			u.FaceUp = true
			u.HasActed = true
		}
	case TogglePosition:
		if u := st.FindUnit(a.UnitID); u != nil && a.NewPosition != "" {
			u.Position = a.NewPosition
		}
	case AttackDeckLeader:
		leader := st.DeckLeaders.For(a.LeaderOwner)
		leader.LP = max(a.NewLP, 0)
		if u := st.FindUnit(a.AttackerID); u != nil {
			u.HasMoved = true
			u.HasActed = true
		}
		if a.GameOver {
			st.GameOver = true
		}
	case SpecialSummon:
		applySpecialSummon(st, a, actor)
	case EndTurn:
		st.PassTurn()
		for _, u := range st.Units {
			if u.Owner == st.ActivePlayer {
				u.ResetTurnFlags()
			}
		}
		st.HasSummoned = SummonFlags{}
	case RegisterDeckLeader:
		// handled by the transport
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, act)
	}
	return nil
}

func applySummon(st *State, a Summon) {
	uid := a.UnitID
	if uid == "" {
		uid = NewUnitID()
	}
	if st.FindUnit(uid) != nil || st.Destroyed(uid) {
		return
	}

	position := a.Position
	if position == "" {
		position = models.PositionAttack
	}
	u := &models.Unit{
		UID:          uid,
		Card:         a.Card,
		Owner:        a.Owner,
		X:            a.X,
		Y:            a.Y,
		Position:     position,
		FaceUp:       a.FaceUp,
		IsDeckLeader: a.IsDeckLeader,
	}
	if len(a.XYZMaterials) > 0 {
		u.XYZMaterials = append([]models.Card(nil), a.XYZMaterials...)
	}
	st.Units = append(st.Units, u)

	if !a.IsDeckLeader {
		if a.Owner == models.SidePlayer {
			st.HasSummoned.Player = true
		} else {
			st.HasSummoned.Enemy = true
		}
	}
}

// applyAttack removes destroyed units before repositioning the attacker so that
// lookups by UID stay consistent.
func applyAttack(st *State, a Attack) {
	defender := st.FindUnit(a.DefenderID)
	if defender != nil && a.DefenderWasFlipped {
		defender.FaceUp = true
	}
	if a.DefenderDestroyed {
		if defender != nil {
			st.bury(defender, defender.Owner, defender.Card)
		}
		st.markDestroyed(a.DefenderID)
	}

	if a.AttackerDestroyed {
		if attacker := st.FindUnit(a.AttackerID); attacker != nil {
			st.bury(attacker, attacker.Owner, attacker.Card)
		}
		st.markDestroyed(a.AttackerID)
		return
	}

	attacker := st.FindUnit(a.AttackerID)
	if attacker == nil {
		return
	}
	if a.AttackerMoved && a.AttackerX != nil && a.AttackerY != nil {
		attacker.X, attacker.Y = *a.AttackerX, *a.AttackerY
	}
	attacker.HasMoved = true
	attacker.HasActed = true
}

func applySpecialSummon(st *State, a SpecialSummon, actor models.Side) {
	retain := strings.EqualFold(a.SummonType, SummonTypeXYZ)
	for i, uid := range a.MaterialIDs {
		u := st.FindUnit(uid)
		switch {
		case u == nil:
			st.markDestroyed(uid)
		case retain:
			st.removeUnit(uid)
		case i < len(a.MaterialCards):
			st.bury(u, a.MaterialCards[i].Owner, a.MaterialCards[i].Card)
		default:
			st.bury(u, u.Owner, u.Card)
		}
	}

	pool := st.ExtraDecks.For(actor)
	for i, c := range *pool {
		if c.ID == a.Card.ID {
			*pool = append((*pool)[:i], (*pool)[i+1:]...)
			break
		}
	}
}
