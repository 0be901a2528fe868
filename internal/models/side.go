// internal/models/side.go
package models

// Side identifies one of the two participants of a duel. The host plays SidePlayer
// (1) and moves first; the other participant plays SideEnemy (-1).
type Side int

const (
	SidePlayer Side = 1
	SideEnemy  Side = -1
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

// Valid reports whether s is one of the two playable sides.
func (s Side) Valid() bool {
	return s == SidePlayer || s == SideEnemy
}

// SideForHost maps the explicit host flag to a side. It is the only way the core
// decides which side the local client plays.
func SideForHost(isHost bool) Side {
	if isHost {
		return SidePlayer
	}
	return SideEnemy
}

func (s Side) String() string {
	switch s {
	case SidePlayer:
		return "player"
	case SideEnemy:
		return "enemy"
	default:
		return "unknown"
	}
}

// Position is a unit's battle position.
type Position string

const (
	PositionAttack  Position = "attack"
	PositionDefense Position = "defense"
)
