package signaling

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeConn) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
}

func (c *fakeConn) messages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Message
	for _, data := range c.sent {
		m, err := protocol.Decode(data)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) raw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func newTestRegistry() *Registry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewRegistry(l)
}

func paired(t *testing.T) (*Registry, *fakeConn, *fakeConn) {
	t.Helper()
	reg := newTestRegistry()
	host, peer := &fakeConn{}, &fakeConn{}
	require.NoError(t, reg.Create(host, "duel-1"))
	require.NoError(t, reg.Join(peer, "duel-1"))
	host.clear()
	peer.clear()
	return reg, host, peer
}

func TestCreateAndJoin(t *testing.T) {
	reg := newTestRegistry()
	host, peer := &fakeConn{}, &fakeConn{}

	require.NoError(t, reg.Create(host, "duel-1"))
	assert.Equal(t, []protocol.Message{protocol.Created{RoomID: "duel-1"}}, host.messages(t))
	assert.Equal(t, ErrRoomExists, reg.Create(&fakeConn{}, "duel-1"))

	require.NoError(t, reg.Join(peer, "duel-1"))
	want := []protocol.Message{protocol.Joined{RoomID: "duel-1"}, protocol.GameStart{}}
	assert.Equal(t, want, host.messages(t)[1:])
	assert.Equal(t, want, peer.messages(t))

	assert.Equal(t, ErrRoomFull, reg.Join(&fakeConn{}, "duel-1"))
	assert.Equal(t, ErrRoomNotFound, reg.Join(&fakeConn{}, "missing"))
	assert.Equal(t, 1, reg.Len())
}

func TestForwardStripsRoomID(t *testing.T) {
	reg, host, peer := paired(t)

	offer := protocol.Offer{RoomID: "duel-1", Offer: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)}
	reg.Forward(host, offer)

	assert.Empty(t, host.messages(t))
	raw := peer.raw()
	require.Len(t, raw, 1)
	assert.NotContains(t, string(raw[0]), "roomId")
	got := peer.messages(t)[0].(protocol.Offer)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(got.Offer))

	reg.Forward(peer, protocol.Answer{RoomID: "duel-1", Answer: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)})
	reg.Forward(peer, protocol.IceCandidate{Candidate: json.RawMessage(`{"candidate":"c1"}`)})
	msgs := host.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.TypeAnswer, msgs[0].MessageType())
	assert.Equal(t, protocol.TypeIceCandidate, msgs[1].MessageType(), "falls back to the sender's room")
}

func TestForwardDropsStrangers(t *testing.T) {
	reg, host, peer := paired(t)

	reg.Forward(&fakeConn{}, protocol.IceCandidate{RoomID: "duel-1", Candidate: json.RawMessage(`{}`)})
	reg.Forward(host, protocol.IceCandidate{RoomID: "other", Candidate: json.RawMessage(`{}`)})
	reg.Forward(host, protocol.Ping{})

	assert.Empty(t, host.messages(t))
	assert.Empty(t, peer.messages(t))
}

func TestPeerLeaveReopensSeat(t *testing.T) {
	reg, host, peer := paired(t)

	reg.Leave(peer)
	assert.Equal(t, []protocol.Message{protocol.Error{Message: PeerDisconnected}}, host.messages(t))

	require.NoError(t, reg.Join(&fakeConn{}, "duel-1"))
}

func TestHostLeaveClosesRoom(t *testing.T) {
	reg, host, peer := paired(t)

	reg.Leave(host)
	assert.Equal(t, []protocol.Message{protocol.Error{Message: HostDisconnected}}, peer.messages(t))
	assert.Equal(t, 0, reg.Len())

	reg.Leave(peer)
	assert.Len(t, peer.messages(t), 1)
}

func TestClose(t *testing.T) {
	reg, host, peer := paired(t)
	reg.Close()
	assert.Equal(t, []protocol.Message{protocol.Error{Message: ShuttingDown}}, host.messages(t))
	assert.Equal(t, []protocol.Message{protocol.Error{Message: ShuttingDown}}, peer.messages(t))
	assert.Equal(t, 0, reg.Len())
}
