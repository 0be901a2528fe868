// internal/game/reconcile.go
package game

import "github.com/jason-s-yu/dotr/internal/models"

// Reconcile merges a remote snapshot into st for a client playing local.
//
// The merge is additive: snapshots refresh and add opponent units but never remove
// a unit, never touch units owned by local, and never change life points or the
// terrain map. Removals and life point changes arrive only as actions, because
// an action and a stateUpdate can be delivered in either order.
func Reconcile(st *State, snap models.Snapshot, local models.Side) {
	if len(snap.Units) > 0 {
		mergeUnits(st, snap.Units, local)
	}
	if snap.ActivePlayer != nil {
		st.ActivePlayer = *snap.ActivePlayer
	}
	if snap.GameOver != nil {
		st.GameOver = *snap.GameOver
	}
}

func mergeUnits(st *State, incoming []models.Unit, local models.Side) {
	remote := local.Opponent()

	merged := make([]*models.Unit, 0, len(st.Units)+len(incoming))
	var existing []*models.Unit
	for _, u := range st.Units {
		if u.Owner == remote {
			existing = append(existing, u)
			continue
		}
		merged = append(merged, u)
	}

	matched := make(map[*models.Unit]bool, len(existing))
	added := make(map[string]bool)
	for i := range incoming {
		e := &incoming[i]
		if e.Owner != remote {
			continue
		}
		if e.UID != "" && (st.Destroyed(e.UID) || added[e.UID]) {
			continue
		}

		u := findMatch(existing, matched, e)
		if u != nil {
			matched[u] = true
			refreshUnit(u, e)
		} else {
			u = e.Clone()
		}
		merged = append(merged, u)
		if u.UID != "" {
			added[u.UID] = true
		}
	}

	// Units the snapshot did not mention may have been created by an action the
	// sender had not seen yet.
	for _, u := range existing {
		if !matched[u] {
			merged = append(merged, u)
		}
	}
	st.Units = merged
}

// findMatch correlates a snapshot entry with an unmatched local opponent unit: by
// UID first, then by square for deck leaders and for entries that carry no UID.
func findMatch(existing []*models.Unit, matched map[*models.Unit]bool, e *models.Unit) *models.Unit {
	if e.UID != "" {
		for _, u := range existing {
			if !matched[u] && u.UID == e.UID {
				return u
			}
		}
	}
	for _, u := range existing {
		if matched[u] || u.X != e.X || u.Y != e.Y {
			continue
		}
		if u.IsDeckLeader && e.IsDeckLeader {
			return u
		}
		if e.UID == "" && u.Card.ID == e.Card.ID {
			return u
		}
	}
	return nil
}

func refreshUnit(u *models.Unit, e *models.Unit) {
	u.Card = e.Card
	u.X, u.Y = e.X, e.Y
	u.Position = e.Position
	u.FaceUp = e.FaceUp
	u.HasMoved = e.HasMoved
	u.HasActed = e.HasActed
	u.IsDeckLeader = e.IsDeckLeader
	if e.UID != "" {
		u.UID = e.UID
	}
	if e.XYZMaterials != nil {
		u.XYZMaterials = append([]models.Card(nil), e.XYZMaterials...)
	}
}
