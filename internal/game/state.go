// internal/game/state.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dotr/internal/models"
)

// StartingLP is the life point total each deck leader begins with.
const StartingLP = 8000

// Starting deck leader squares on the 7x7 board.
var (
	PlayerLeaderStart = models.DeckLeader{X: 3, Y: 6, LP: StartingLP}
	EnemyLeaderStart  = models.DeckLeader{X: 3, Y: 0, LP: StartingLP}
)

// Piles holds one ordered card sequence per side.
type Piles struct {
	Player []models.Card `json:"player"`
	Enemy  []models.Card `json:"enemy"`
}

// For returns a pointer to the pile of the given side.
func (p *Piles) For(side models.Side) *[]models.Card {
	if side == models.SidePlayer {
		return &p.Player
	}
	return &p.Enemy
}

// SummonFlags records whether each side has normal summoned this turn.
type SummonFlags struct {
	Player bool `json:"player"`
	Enemy  bool `json:"enemy"`
}

// State is the shared game state mirror a client holds. The relay server keeps one
// too, but only ever flips its ActivePlayer.
//
// State is not safe for concurrent use; client.Mirror owns it behind a mutex, and
// Apply and Reconcile are the only functions that mutate it after setup.
type State struct {
	ActivePlayer models.Side
	Units        []*models.Unit
	DeckLeaders  models.DeckLeaders
	GameOver     bool
	TerrainMap   json.RawMessage
	Graveyards   Piles
	ExtraDecks   Piles
	HasSummoned  SummonFlags

	// destroyed remembers the UIDs of units removed by actions so a stale snapshot
	// cannot bring them back.
	destroyed map[string]struct{}
}

// NewState returns the state both sides start a duel with: side 1 to move, both
// leaders on their starting squares at full life, and an empty board.
func NewState() *State {
	return &State{
		ActivePlayer: models.SidePlayer,
		Units:        []*models.Unit{},
		DeckLeaders: models.DeckLeaders{
			Player: PlayerLeaderStart,
			Enemy:  EnemyLeaderStart,
		},
		destroyed: make(map[string]struct{}),
	}
}

// NewUnitID returns a fresh identifier for a unit.
func NewUnitID() string {
	return uuid.NewString()
}

// FindUnit returns the unit with the given UID, or nil.
func (s *State) FindUnit(uid string) *models.Unit {
	if uid == "" {
		return nil
	}
	for _, u := range s.Units {
		if u.UID == uid {
			return u
		}
	}
	return nil
}

// UnitsOf returns the units owned by side, in board order.
func (s *State) UnitsOf(side models.Side) []*models.Unit {
	var out []*models.Unit
	for _, u := range s.Units {
		if u.Owner == side {
			out = append(out, u)
		}
	}
	return out
}

// Destroyed reports whether an action has removed the unit with the given UID.
func (s *State) Destroyed(uid string) bool {
	_, ok := s.destroyed[uid]
	return ok
}

// PassTurn hands the turn to the other side.
func (s *State) PassTurn() {
	s.ActivePlayer = s.ActivePlayer.Opponent()
}

// removeUnit takes the unit out of play and records its UID so snapshots cannot
// restore it.
func (s *State) removeUnit(uid string) *models.Unit {
	for i, u := range s.Units {
		if u.UID == uid {
			s.Units = append(s.Units[:i], s.Units[i+1:]...)
			s.markDestroyed(uid)
			return u
		}
	}
	return nil
}

// bury removes a unit from the field and puts card on owner's graveyard.
func (s *State) bury(u *models.Unit, owner models.Side, card models.Card) {
	pile := s.Graveyards.For(owner)
	*pile = append(*pile, card)
	s.removeUnit(u.UID)
}

func (s *State) markDestroyed(uid string) {
	if uid == "" {
		return
	}
	if s.destroyed == nil {
		s.destroyed = make(map[string]struct{})
	}
	s.destroyed[uid] = struct{}{}
}

// Snapshot serializes the state for a stateUpdate message. Life points are included
// for display, but receivers never adopt them.
func (s *State) Snapshot() models.Snapshot {
	active := s.ActivePlayer
	gameOver := s.GameOver
	leaders := s.DeckLeaders
	units := make([]models.Unit, 0, len(s.Units))
	for _, u := range s.Units {
		units = append(units, *u.Clone())
	}
	return models.Snapshot{
		ActivePlayer: &active,
		Units:        units,
		DeckLeaders:  &leaders,
		GameOver:     &gameOver,
		TerrainMap:   s.TerrainMap,
	}
}

// Clone returns a deep copy of the state, tombstones included.
func (s *State) Clone() *State {
	c := *s
	c.Units = make([]*models.Unit, 0, len(s.Units))
	for _, u := range s.Units {
		c.Units = append(c.Units, u.Clone())
	}
	c.TerrainMap = append(json.RawMessage(nil), s.TerrainMap...)
	c.Graveyards = Piles{
		Player: append([]models.Card(nil), s.Graveyards.Player...),
		Enemy:  append([]models.Card(nil), s.Graveyards.Enemy...),
	}
	c.ExtraDecks = Piles{
		Player: append([]models.Card(nil), s.ExtraDecks.Player...),
		Enemy:  append([]models.Card(nil), s.ExtraDecks.Enemy...),
	}
	c.destroyed = make(map[string]struct{}, len(s.destroyed))
	for uid := range s.destroyed {
		c.destroyed[uid] = struct{}{}
	}
	return &c
}
