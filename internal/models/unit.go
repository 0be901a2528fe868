// internal/models/unit.go
package models

// Unit is a card placed on the board. UID is assigned when the unit is created and
// stays stable across the network; it is the key used to correlate actions and
// snapshots.
type Unit struct {
	UID          string   `json:"uid,omitempty"`
	Card         Card     `json:"card"`
	Owner        Side     `json:"owner"`
	X            int      `json:"x"`
	Y            int      `json:"y"`
	Position     Position `json:"position"`
	FaceUp       bool     `json:"faceUp"`
	HasMoved     bool     `json:"hasMoved"`
	HasActed     bool     `json:"hasActed"`
	IsDeckLeader bool     `json:"isDeckLeader"`

	// XYZMaterials holds cards attached to the unit by a material-retaining summon.
	XYZMaterials []Card `json:"xyzMaterials,omitempty"`
}

// Clone returns a deep copy of u.
func (u *Unit) Clone() *Unit {
	c := *u
	if u.XYZMaterials != nil {
		c.XYZMaterials = append([]Card(nil), u.XYZMaterials...)
	}
	return &c
}

// ResetTurnFlags clears the per-turn movement and action flags.
func (u *Unit) ResetTurnFlags() {
	u.HasMoved = false
	u.HasActed = false
}
