// internal/game/apply_test.go
package game

import (
	"errors"
	"testing"

	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCard(id int, name string) models.Card {
	return models.Card{ID: id, Name: name, Atk: 1500, Def: 1200, Level: 4, Attribute: "DARK", Race: "Warrior", Type: "Monster"}
}

func addUnit(st *State, uid string, owner models.Side, x, y int) *models.Unit {
	u := &models.Unit{UID: uid, Card: testCard(len(st.Units)+1, uid), Owner: owner, X: x, Y: y, Position: models.PositionAttack}
	st.Units = append(st.Units, u)
	return u
}

func intPtr(v int) *int { return &v }

func TestApplySummon(t *testing.T) {
	st := NewState()
	err := Apply(st, Summon{
		Card:         testCard(10, "Dark Magician"),
		Owner:        models.SideEnemy,
		X:            2,
		Y:            1,
		Position:     models.PositionDefense,
		FaceUp:       false,
		UnitID:       "u-1",
		XYZMaterials: []models.Card{testCard(11, "Mat")},
	}, models.SideEnemy)
	require.NoError(t, err)

	u := st.FindUnit("u-1")
	require.NotNil(t, u)
	assert.Equal(t, models.SideEnemy, u.Owner)
	assert.Equal(t, 2, u.X)
	assert.Equal(t, 1, u.Y)
	assert.Equal(t, models.PositionDefense, u.Position)
	assert.False(t, u.FaceUp)
	assert.Len(t, u.XYZMaterials, 1)
	assert.True(t, st.HasSummoned.Enemy)
	assert.False(t, st.HasSummoned.Player)

	// Duplicate delivery does not create a second unit.
	require.NoError(t, Apply(st, Summon{Card: testCard(10, "Dark Magician"), Owner: models.SideEnemy, UnitID: "u-1"}, models.SideEnemy))
	assert.Len(t, st.Units, 1)
}

func TestApplySummonAssignsID(t *testing.T) {
	st := NewState()
	require.NoError(t, Apply(st, Summon{Card: testCard(1, "A"), Owner: models.SidePlayer}, models.SidePlayer))
	require.Len(t, st.Units, 1)
	assert.NotEmpty(t, st.Units[0].UID)
	assert.Equal(t, models.PositionAttack, st.Units[0].Position)
}

func TestApplyMove(t *testing.T) {
	st := NewState()
	addUnit(st, "a", models.SideEnemy, 1, 1)

	require.NoError(t, Apply(st, Move{UnitID: "a", X: 1, Y: 2}, models.SideEnemy))
	u := st.FindUnit("a")
	assert.Equal(t, 2, u.Y)
	assert.True(t, u.HasMoved)
	assert.Equal(t, models.PositionAttack, u.Position)

	require.NoError(t, Apply(st, Move{UnitID: "a", X: 1, Y: 3, PositionChange: true, NewPosition: models.PositionDefense}, models.SideEnemy))
	assert.Equal(t, models.PositionDefense, u.Position)

	// Unknown unit is a no-op.
	require.NoError(t, Apply(st, Move{UnitID: "missing", X: 0, Y: 0}, models.SideEnemy))
}

func TestApplyAttackDestroysDefender(t *testing.T) {
	st := NewState()
	addUnit(st, "att", models.SideEnemy, 3, 2)
	def := addUnit(st, "def", models.SidePlayer, 3, 3)
	def.FaceUp = false

	err := Apply(st, Attack{
		AttackerID:         "att",
		DefenderID:         "def",
		DefenderWasFlipped: true,
		DefenderDestroyed:  true,
		AttackerMoved:      true,
		AttackerX:          intPtr(3),
		AttackerY:          intPtr(3),
	}, models.SideEnemy)
	require.NoError(t, err)

	assert.Nil(t, st.FindUnit("def"))
	assert.True(t, st.Destroyed("def"))
	require.Len(t, st.Graveyards.Player, 1)
	assert.Equal(t, "def", st.Graveyards.Player[0].Name)
	assert.Empty(t, st.Graveyards.Enemy)

	att := st.FindUnit("att")
	require.NotNil(t, att)
	assert.Equal(t, 3, att.X)
	assert.Equal(t, 3, att.Y)
	assert.True(t, att.HasMoved)
	assert.True(t, att.HasActed)
}

func TestApplyAttackDestroysAttacker(t *testing.T) {
	st := NewState()
	addUnit(st, "att", models.SideEnemy, 3, 2)
	def := addUnit(st, "def", models.SidePlayer, 3, 3)

	err := Apply(st, Attack{
		AttackerID:         "att",
		DefenderID:         "def",
		DefenderWasFlipped: true,
		AttackerDestroyed:  true,
		AttackerMoved:      true,
		AttackerX:          intPtr(3),
		AttackerY:          intPtr(3),
	}, models.SideEnemy)
	require.NoError(t, err)

	assert.Nil(t, st.FindUnit("att"))
	assert.True(t, def.FaceUp)
	require.Len(t, st.Graveyards.Enemy, 1)
	assert.Empty(t, st.Graveyards.Player)
}

func TestApplyAttackWithoutCoordinatesDoesNotMove(t *testing.T) {
	st := NewState()
	att := addUnit(st, "att", models.SideEnemy, 3, 2)
	addUnit(st, "def", models.SidePlayer, 3, 3)

	require.NoError(t, Apply(st, Attack{AttackerID: "att", DefenderID: "def", AttackerMoved: true}, models.SideEnemy))
	assert.Equal(t, 3, att.X)
	assert.Equal(t, 2, att.Y)
	assert.True(t, att.HasActed)
}

func TestApplyFlipAndToggle(t *testing.T) {
	st := NewState()
	u := addUnit(st, "a", models.SideEnemy, 0, 0)

	require.NoError(t, Apply(st, Flip{UnitID: "a"}, models.SideEnemy))
	assert.True(t, u.FaceUp)
	assert.True(t, u.HasActed)

	require.NoError(t, Apply(st, TogglePosition{UnitID: "a", NewPosition: models.PositionDefense}, models.SideEnemy))
	assert.Equal(t, models.PositionDefense, u.Position)

	require.NoError(t, Apply(st, TogglePosition{UnitID: "a"}, models.SideEnemy))
	assert.Equal(t, models.PositionDefense, u.Position, "empty position leaves the unit unchanged")
}

func TestApplyAttackDeckLeader(t *testing.T) {
	st := NewState()
	att := addUnit(st, "att", models.SideEnemy, 3, 5)

	require.NoError(t, Apply(st, AttackDeckLeader{AttackerID: "att", LeaderOwner: models.SidePlayer, NewLP: 5300}, models.SideEnemy))
	assert.Equal(t, 5300, st.DeckLeaders.Player.LP)
	assert.Equal(t, StartingLP, st.DeckLeaders.Enemy.LP)
	assert.True(t, att.HasMoved)
	assert.True(t, att.HasActed)
	assert.False(t, st.GameOver)

	require.NoError(t, Apply(st, AttackDeckLeader{AttackerID: "att", LeaderOwner: models.SidePlayer, NewLP: -200, GameOver: true}, models.SideEnemy))
	assert.Equal(t, 0, st.DeckLeaders.Player.LP)
	assert.True(t, st.GameOver)
}

func TestApplySpecialSummonGraveyardsMaterials(t *testing.T) {
	st := NewState()
	addUnit(st, "m1", models.SideEnemy, 0, 0)
	addUnit(st, "m2", models.SideEnemy, 1, 0)
	st.ExtraDecks.Enemy = []models.Card{testCard(99, "Fusion"), testCard(98, "Other")}

	err := Apply(st, SpecialSummon{
		SummonType:  "Fusion",
		Card:        testCard(99, "Fusion"),
		MaterialIDs: []string{"m1", "m2"},
		MaterialCards: []MaterialCard{
			{Owner: models.SideEnemy, Card: testCard(1, "Mat One")},
		},
	}, models.SideEnemy)
	require.NoError(t, err)

	assert.Empty(t, st.Units)
	require.Len(t, st.Graveyards.Enemy, 2)
	assert.Equal(t, "Mat One", st.Graveyards.Enemy[0].Name)
	assert.Equal(t, "m2", st.Graveyards.Enemy[1].Name)
	require.Len(t, st.ExtraDecks.Enemy, 1)
	assert.Equal(t, 98, st.ExtraDecks.Enemy[0].ID)
}

func TestApplySpecialSummonXYZRetainsMaterials(t *testing.T) {
	st := NewState()
	addUnit(st, "m1", models.SidePlayer, 0, 6)
	addUnit(st, "m2", models.SidePlayer, 1, 6)
	st.ExtraDecks.Player = []models.Card{testCard(50, "Xyz")}

	err := Apply(st, SpecialSummon{
		SummonType:   "xyz",
		Card:         testCard(50, "Xyz"),
		MaterialIDs:  []string{"m1", "m2"},
		XYZMaterials: []models.Card{testCard(1, "m1"), testCard(2, "m2")},
	}, models.SidePlayer)
	require.NoError(t, err)

	assert.Empty(t, st.Units)
	assert.Empty(t, st.Graveyards.Player)
	assert.Empty(t, st.ExtraDecks.Player)
	assert.True(t, st.Destroyed("m1"))
	assert.True(t, st.Destroyed("m2"))
}

func TestApplyEndTurnResetsOnlyNewActiveSide(t *testing.T) {
	st := NewState()
	mine := addUnit(st, "p", models.SidePlayer, 0, 0)
	theirs := addUnit(st, "e", models.SideEnemy, 0, 1)
	for _, u := range st.Units {
		u.HasMoved, u.HasActed = true, true
	}
	st.HasSummoned = SummonFlags{Player: true, Enemy: true}

	require.NoError(t, Apply(st, EndTurn{}, models.SidePlayer))
	assert.Equal(t, models.SideEnemy, st.ActivePlayer)
	assert.False(t, theirs.HasMoved)
	assert.False(t, theirs.HasActed)
	assert.True(t, mine.HasMoved, "outgoing side keeps its flags")
	assert.True(t, mine.HasActed)
	assert.Equal(t, SummonFlags{}, st.HasSummoned)

	require.NoError(t, Apply(st, EndTurn{}, models.SideEnemy))
	assert.Equal(t, models.SidePlayer, st.ActivePlayer)
	assert.False(t, mine.HasMoved)
}

func TestApplyRegisterDeckLeaderIsNoop(t *testing.T) {
	st := NewState()
	before := st.Clone()
	require.NoError(t, Apply(st, RegisterDeckLeader{Leader: testCard(1, "Leader")}, models.SidePlayer))
	assert.Equal(t, before, st)
}

func TestApplyNilAction(t *testing.T) {
	err := Apply(NewState(), nil, models.SidePlayer)
	assert.True(t, errors.Is(err, ErrUnknownAction))
}
