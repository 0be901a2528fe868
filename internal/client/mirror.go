package client

import (
	"encoding/json"
	"sync"

	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/sirupsen/logrus"
)

// Mirror owns a client's copy of the shared game state. Every mutation goes through
// Perform, ApplyRemote, Reconcile or Adopt, each of which runs to completion under the
// mirror's lock.
type Mirror struct {
	mu     sync.Mutex
	state  *game.State
	local  models.Side
	logger *logrus.Entry
}

// NewMirror returns a mirror holding the opening state. The local side defaults to
// the host's and is corrected by SetHost once the joined reply arrives.
func NewMirror(logger *logrus.Logger) *Mirror {
	return &Mirror{
		state:  game.NewState(),
		local:  models.SidePlayer,
		logger: logger.WithField("component", "mirror"),
	}
}

// SetHost fixes which side this client plays. The host flag is the only input to
// that decision.
func (m *Mirror) SetHost(isHost bool) {
	m.mu.Lock()
	m.local = models.SideForHost(isHost)
	m.mu.Unlock()
}

// Local returns the side this client plays.
func (m *Mirror) Local() models.Side {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Perform applies a locally originated action and returns it ready to transmit.
// Summons without a unit id get one here so both mirrors agree on it.
func (m *Mirror) Perform(act game.Action) (game.Action, error) {
	if s, ok := act.(game.Summon); ok && s.UnitID == "" {
		s.UnitID = game.NewUnitID()
		act = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := game.Apply(m.state, act, m.local); err != nil {
		return nil, err
	}
	return act, nil
}

// ApplyRemote applies an action received from the opponent.
func (m *Mirror) ApplyRemote(act game.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return game.Apply(m.state, act, m.local.Opponent())
}

// Reconcile merges a stateUpdate snapshot.
func (m *Mirror) Reconcile(snap models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	game.Reconcile(m.state, snap, m.local)
}

// Adopt merges the gameStart snapshot, but only while the board is still empty. A
// late gameStart must not disturb a client that has already placed units.
func (m *Mirror) Adopt(snap models.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.state.Units) > 0 {
		m.logger.Debugf("skipping gameStart state, %d units already on board", len(m.state.Units))
		return false
	}
	game.Reconcile(m.state, snap, m.local)
	return true
}

// SetTerrain installs the locally generated terrain map.
func (m *Mirror) SetTerrain(terrain json.RawMessage) {
	m.mu.Lock()
	m.state.TerrainMap = append(json.RawMessage(nil), terrain...)
	m.mu.Unlock()
}

// SetExtraDeck records the extra-deck pool tracked for side.
func (m *Mirror) SetExtraDeck(side models.Side, cards []models.Card) {
	m.mu.Lock()
	*m.state.ExtraDecks.For(side) = append([]models.Card(nil), cards...)
	m.mu.Unlock()
}

// Snapshot serializes the current state.
func (m *Mirror) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Snapshot()
}

// State returns a deep copy of the current state.
func (m *Mirror) State() *game.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
