package peer

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/handlers"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/jason-s-yu/dotr/internal/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// wire captures what a peer writes to its data channel.
type wire struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (w *wire) send(data []byte) error {
	m, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sent = append(w.sent, m)
	w.mu.Unlock()
	return nil
}

func testPeer(host bool) (*Peer, *wire) {
	p := newPeer(Options{RoomID: "DUEL01", Host: host, PlayerName: "Yugi", Logger: quietLogger()})
	p.mirror.SetHost(host)
	w := &wire{}
	p.sendData = w.send
	return p, w
}

func leaderCard(name string) models.Card {
	return models.Card{ID: 7, Name: name, Atk: 3000, Def: 2500, Level: 8, Attribute: "LIGHT", Race: "Dragon", Type: "Monster"}
}

func TestCandidateQueueBuffersUntilFlush(t *testing.T) {
	var q candidateQueue
	var applied []string
	apply := func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	}

	require.NoError(t, q.add(webrtc.ICECandidateInit{Candidate: "a"}, apply))
	require.NoError(t, q.add(webrtc.ICECandidateInit{Candidate: "b"}, apply))
	assert.Empty(t, applied)
	assert.Equal(t, 2, q.len())

	require.NoError(t, q.flush(apply))
	assert.Equal(t, []string{"a", "b"}, applied)
	assert.Equal(t, 0, q.len())

	require.NoError(t, q.add(webrtc.ICECandidateInit{Candidate: "c"}, apply))
	assert.Equal(t, []string{"a", "b", "c"}, applied)
}

func TestCandidateQueueFlushReportsFirstError(t *testing.T) {
	var q candidateQueue
	_ = q.add(webrtc.ICECandidateInit{Candidate: "bad"}, nil)
	_ = q.add(webrtc.ICECandidateInit{Candidate: "good"}, nil)

	var applied []string
	err := q.flush(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		if c.Candidate == "bad" {
			return errors.New("rejected")
		}
		return nil
	})
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, []string{"bad", "good"}, applied)
}

func TestHandleDataAnswersPing(t *testing.T) {
	p, w := testPeer(true)
	p.handleData(protocol.MustEncode(protocol.Ping{}))

	require.Len(t, w.sent, 1)
	assert.IsType(t, protocol.Pong{}, w.sent[0])
}

func TestHandleDataAppliesOpponentAction(t *testing.T) {
	p, _ := testPeer(false)
	var got []game.Action
	p.OnAction(func(a game.Action) { got = append(got, a) })

	msg, err := protocol.NewAction("DUEL01", "", game.Summon{
		Card: leaderCard("Blue-Eyes"), Owner: models.SidePlayer, X: 3, Y: 6, UnitID: "host-leader", IsDeckLeader: true,
	})
	require.NoError(t, err)
	p.handleData(protocol.MustEncode(msg))

	require.Len(t, got, 1)
	st := p.Mirror().State()
	require.Len(t, st.Units, 1)
	assert.Equal(t, "host-leader", st.Units[0].UID)
}

func TestHandleDataBuffersOpponentLeader(t *testing.T) {
	p, _ := testPeer(false)
	p.handleData(protocol.MustEncode(protocol.OpponentDeckLeader{Leader: leaderCard("Blue-Eyes"), OpponentName: "Kaiba"}))

	var name string
	p.OnOpponentDeckLeader(func(l models.Card, n string) { name = n })
	assert.Equal(t, "Kaiba", name)
}

func TestHandleDataIgnoresUnknownAndInvalid(t *testing.T) {
	p, w := testPeer(true)
	p.handleData([]byte(`{"type":"teleport"}`))
	p.handleData([]byte(`not json`))
	assert.Empty(t, w.sent)
	assert.Empty(t, p.Mirror().State().Units)
}

func TestPerformSendsAction(t *testing.T) {
	p, w := testPeer(true)
	require.NoError(t, p.Perform(game.Summon{Card: leaderCard("Dark Magician"), Owner: models.SidePlayer, X: 1, Y: 5}))

	require.Len(t, w.sent, 1)
	act, ok := w.sent[0].(protocol.Action)
	require.True(t, ok)
	decoded, err := act.Decode()
	require.NoError(t, err)
	s := decoded.(game.Summon)
	assert.Equal(t, p.Mirror().State().Units[0].UID, s.UnitID)

	require.NoError(t, p.SendDeckLeader(leaderCard("Dark Magician")))
	require.Len(t, w.sent, 2)
	assert.Equal(t, "Yugi", w.sent[1].(protocol.OpponentDeckLeader).OpponentName)
}

func TestSendBeforeOpen(t *testing.T) {
	p := newPeer(Options{RoomID: "X", Logger: quietLogger()})
	assert.ErrorIs(t, p.Ping(), ErrNotOpen)
}

// TestPeersConnectOverLoopback runs a real WebRTC handshake through the signaling
// server. It needs working UDP on loopback, so it only runs when DOTR_PEER_E2E is set.
func TestPeersConnectOverLoopback(t *testing.T) {
	if os.Getenv("DOTR_PEER_E2E") == "" {
		t.Skip("set DOTR_PEER_E2E=1 to run the WebRTC loopback test")
	}

	logger := quietLogger()
	s := handlers.NewSignalingServer(logger, signaling.NewRegistry(logger), time.Second)
	ts := httptest.NewServer(handlers.SetupSignalingRoutes(s, nil))
	defer ts.Close()
	defer s.Shutdown()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type result struct {
		p   *Peer
		err error
	}
	hostCh := make(chan result, 1)
	go func() {
		p, err := Connect(ctx, Options{SignalingURL: url, RoomID: "LOOP01", Host: true, ICEServers: []webrtc.ICEServer{}, Logger: logger})
		hostCh <- result{p, err}
	}()

	// the guest must not join before the room exists
	require.Eventually(t, func() bool { return s.Registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	guest, err := Connect(ctx, Options{SignalingURL: url, RoomID: "LOOP01", ICEServers: []webrtc.ICEServer{}, Logger: logger})
	require.NoError(t, err)
	defer guest.Close()

	res := <-hostCh
	require.NoError(t, res.err)
	host := res.p
	defer host.Close()

	applied := make(chan game.Action, 1)
	guest.OnAction(func(a game.Action) { applied <- a })
	require.NoError(t, host.Perform(game.Summon{Card: leaderCard("Blue-Eyes"), Owner: models.SidePlayer, X: 3, Y: 6}))

	select {
	case a := <-applied:
		assert.Equal(t, game.ActionSummon, a.ActionType())
	case <-ctx.Done():
		t.Fatal("action never arrived over the data channel")
	}
	assert.Len(t, guest.Mirror().State().Units, 1)
}
