// internal/models/snapshot.go
package models

import "encoding/json"

// DeckLeader is the per-side leader record: board position and life points.
type DeckLeader struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	LP int `json:"lp"`
}

// DeckLeaders stores both leaders. Player always refers to side 1 and Enemy to side
// -1, regardless of which side the local client plays.
type DeckLeaders struct {
	Player DeckLeader `json:"player"`
	Enemy  DeckLeader `json:"enemy"`
}

// For returns the leader record of the given side.
func (d *DeckLeaders) For(side Side) *DeckLeader {
	if side == SidePlayer {
		return &d.Player
	}
	return &d.Enemy
}

// Snapshot is a full-state message body as sent in gameStart and stateUpdate.
//
// Presence matters when decoding: a nil ActivePlayer or GameOver means the field was
// absent. Units follows encoding/json slice semantics: a missing or null "units" key
// decodes to a nil slice (no information), while "units": [] decodes to an empty,
// non-nil slice (reported, but empty).
type Snapshot struct {
	ActivePlayer *Side           `json:"activePlayer,omitempty"`
	Units        []Unit          `json:"units"`
	DeckLeaders  *DeckLeaders    `json:"deckLeaders,omitempty"`
	GameOver     *bool           `json:"gameOver,omitempty"`
	TerrainMap   json.RawMessage `json:"terrainMap"`
}

// HasUnits reports whether the snapshot carried a units list at all.
func (s *Snapshot) HasUnits() bool {
	return s.Units != nil
}
