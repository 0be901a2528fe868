package client

import (
	"io"
	"testing"

	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func card(id int, name string) models.Card {
	return models.Card{ID: id, Name: name, Atk: 2500, Def: 2100, Level: 7, Attribute: "DARK", Race: "Spellcaster", Type: "Monster"}
}

func TestMirrorPerformAssignsUnitID(t *testing.T) {
	m := NewMirror(quietLogger())
	m.SetHost(false)

	act, err := m.Perform(game.Summon{Card: card(1, "Dark Magician"), Owner: models.SideEnemy, X: 3, Y: 1})
	require.NoError(t, err)

	s := act.(game.Summon)
	require.NotEmpty(t, s.UnitID)
	st := m.State()
	require.Len(t, st.Units, 1)
	assert.Equal(t, s.UnitID, st.Units[0].UID)
	assert.True(t, st.HasSummoned.Enemy)
}

func TestMirrorRemoteActionUsesOpponentSide(t *testing.T) {
	m := NewMirror(quietLogger())
	m.SetHost(true)
	assert.Equal(t, models.SidePlayer, m.Local())

	require.NoError(t, m.ApplyRemote(game.Summon{Card: card(2, "Blue-Eyes"), Owner: models.SideEnemy, UnitID: "b1"}))
	assert.True(t, m.State().HasSummoned.Enemy)

	require.NoError(t, m.ApplyRemote(game.EndTurn{}))
	assert.Equal(t, models.SideEnemy, m.State().ActivePlayer)
}

func TestMirrorAdoptOnlyOnEmptyBoard(t *testing.T) {
	m := NewMirror(quietLogger())
	m.SetHost(true)

	active := models.SideEnemy
	snap := models.Snapshot{ActivePlayer: &active, Units: []models.Unit{}}
	assert.True(t, m.Adopt(snap))
	assert.Equal(t, models.SideEnemy, m.State().ActivePlayer)

	_, err := m.Perform(game.Summon{Card: card(3, "Leader"), Owner: models.SidePlayer, X: 3, Y: 6, IsDeckLeader: true})
	require.NoError(t, err)

	player := models.SidePlayer
	assert.False(t, m.Adopt(models.Snapshot{ActivePlayer: &player}))
	assert.Equal(t, models.SideEnemy, m.State().ActivePlayer)
	assert.Len(t, m.State().Units, 1)
}

func TestMirrorReconcileKeepsLocalUnits(t *testing.T) {
	m := NewMirror(quietLogger())
	m.SetHost(false)
	_, err := m.Perform(game.Summon{Card: card(4, "Mine"), Owner: models.SideEnemy, UnitID: "mine"})
	require.NoError(t, err)

	m.Reconcile(models.Snapshot{Units: []models.Unit{
		{UID: "theirs", Card: card(5, "Theirs"), Owner: models.SidePlayer, X: 1, Y: 5},
	}})

	st := m.State()
	require.Len(t, st.Units, 2)
	assert.Equal(t, "mine", st.Units[0].UID)
	assert.Equal(t, "theirs", st.Units[1].UID)
}

func TestMirrorSnapshotCarriesTerrain(t *testing.T) {
	m := NewMirror(quietLogger())
	m.SetTerrain([]byte(`[["normal"]]`))
	m.SetExtraDeck(models.SidePlayer, []models.Card{card(9, "Fusion")})

	snap := m.Snapshot()
	assert.JSONEq(t, `[["normal"]]`, string(snap.TerrainMap))
	require.NotNil(t, snap.Units)
	assert.Len(t, m.State().ExtraDecks.Player, 1)
}
