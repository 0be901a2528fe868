package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/dotr/internal/client"
	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// ChannelLabel names the data channel game messages travel on.
const ChannelLabel = "game"

// DefaultConnectTimeout bounds how long Connect waits for the data channel.
const DefaultConnectTimeout = 30 * time.Second

var (
	// ErrConnectTimeout is returned when the data channel does not open in time.
	ErrConnectTimeout = errors.New("peer connection timeout")
	// ErrNotOpen is returned when sending before the data channel is open.
	ErrNotOpen = errors.New("data channel not open")
	// ErrConnectionLost is reported when the peer connection fails.
	ErrConnectionLost = errors.New("P2P connection lost")
)

// DefaultICEServers are the public STUN servers used when Options leaves them empty.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// Options configures a peer client.
type Options struct {
	SignalingURL string
	RoomID       string
	// Host creates the signaling room and sends the offer; otherwise the client
	// joins RoomID and answers.
	Host       bool
	PlayerName string

	// ICEServers replaces DefaultICEServers. Set it to an empty non-nil slice to
	// use host candidates only.
	ICEServers     []webrtc.ICEServer
	ConnectTimeout time.Duration
	Logger         *logrus.Logger
}

// Peer is a direct WebRTC connection to the opponent. Signaling runs over a
// websocket until the data channel opens; game messages then flow peer to peer on
// an ordered channel and are handled one at a time on the peer's event goroutine.
type Peer struct {
	opts   Options
	logger *logrus.Entry
	sig    *websocket.Conn
	pc     *webrtc.PeerConnection
	mirror *client.Mirror
	leader client.LeaderSlot
	cands  candidateQueue

	mu            sync.Mutex
	dc            *webrtc.DataChannel
	onStateUpdate func(models.Snapshot)
	onAction      func(game.Action)
	onError       func(string)
	sendData      func([]byte) error

	open    chan struct{}
	openOne sync.Once
	inbox   chan []byte
	closed  atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// Connect performs the signaling handshake and returns once the data channel is
// open.
func Connect(ctx context.Context, opts Options) (*Peer, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ICEServers == nil {
		opts.ICEServers = DefaultICEServers
	}

	p := newPeer(opts)
	p.mirror.SetHost(opts.Host)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p.pc = pc
	p.wirePeerConnection()

	sig, _, err := websocket.Dial(ctx, opts.SignalingURL, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("dial signaling %s: %w", opts.SignalingURL, err)
	}
	p.sig = sig

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.signalLoop(loopCtx)
	go p.eventLoop(loopCtx)

	var hello protocol.Message = protocol.Join{RoomID: opts.RoomID, PlayerName: opts.PlayerName}
	if opts.Host {
		hello = protocol.Create{RoomID: opts.RoomID}
	}
	if err := p.signal(ctx, hello); err != nil {
		p.Close()
		return nil, err
	}

	timer := time.NewTimer(opts.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-p.open:
		return p, nil
	case <-timer.C:
		p.Close()
		return nil, ErrConnectTimeout
	case <-ctx.Done():
		p.Close()
		return nil, ctx.Err()
	}
}

func newPeer(opts Options) *Peer {
	role := "guest"
	if opts.Host {
		role = "host"
	}
	return &Peer{
		opts:   opts,
		logger: opts.Logger.WithFields(logrus.Fields{"component": "peer", "room": opts.RoomID, "role": role}),
		mirror: client.NewMirror(opts.Logger),
		open:   make(chan struct{}),
		inbox:  make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

func (p *Peer) wirePeerConnection() {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.logger.WithError(err).Warn("failed to encode ICE candidate")
			return
		}
		if err := p.signal(context.Background(), protocol.IceCandidate{RoomID: p.opts.RoomID, Candidate: payload}); err != nil {
			p.logger.WithError(err).Debug("failed to send ICE candidate")
		}
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Debugf("connection state %s", s)
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			p.reportError(ErrConnectionLost.Error())
		}
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			p.logger.Warnf("ignoring data channel %q", dc.Label())
			return
		}
		p.attach(dc)
	})
}

// attach wires dc as the game channel.
func (p *Peer) attach(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.sendData = func(data []byte) error { return dc.SendText(string(data)) }
		p.mu.Unlock()
		p.logger.Info("data channel open")
		p.openOne.Do(func() { close(p.open) })
	})
	dc.OnClose(func() {
		p.mu.Lock()
		p.sendData = nil
		p.mu.Unlock()
		p.logger.Info("data channel closed")
	})
	dc.OnError(func(err error) {
		p.logger.WithError(err).Warn("data channel error")
		p.reportError("Data channel error")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.closed.Load() {
			return
		}
		select {
		case p.inbox <- msg.Data:
		case <-p.done:
		}
	})
}

// startOffer opens the game channel and sends the offer. Host only.
func (p *Peer) startOffer(ctx context.Context) error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return p.signal(ctx, protocol.Offer{RoomID: p.opts.RoomID, Offer: payload})
}

func (p *Peer) acceptOffer(ctx context.Context, raw json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	if err := p.setRemote(offer); err != nil {
		return err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	payload, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return p.signal(ctx, protocol.Answer{RoomID: p.opts.RoomID, Answer: payload})
}

func (p *Peer) acceptAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	return p.setRemote(answer)
}

// setRemote sets the remote description and releases buffered candidates.
func (p *Peer) setRemote(sd webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return p.cands.flush(p.pc.AddICECandidate)
}

func (p *Peer) addCandidate(raw json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return p.cands.add(c, p.pc.AddICECandidate)
}

// signalLoop handles signaling server messages until the socket closes.
func (p *Peer) signalLoop(ctx context.Context) {
	for {
		typ, data, err := p.sig.Read(ctx)
		if err != nil {
			if !p.closed.Load() {
				p.logger.WithError(err).Debug("signaling connection closed")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		m, err := protocol.Decode(data)
		if err != nil {
			p.logger.Warnf("ignoring invalid signaling message: %v", err)
			continue
		}
		if err := p.handleSignal(ctx, m); err != nil {
			p.logger.WithError(err).Warnf("failed to handle %s", m.MessageType())
			p.reportError(err.Error())
		}
	}
}

func (p *Peer) handleSignal(ctx context.Context, m protocol.Message) error {
	switch v := m.(type) {
	case protocol.Created:
		p.logger.Info("signaling room created, waiting for opponent")
	case protocol.Joined:
		p.logger.Info("opponent present in signaling room")
		if p.opts.Host {
			return p.startOffer(ctx)
		}
	case protocol.GameStart:
		p.logger.Debug("signaling reports game start")
	case protocol.Offer:
		return p.acceptOffer(ctx, v.Offer)
	case protocol.Answer:
		return p.acceptAnswer(v.Answer)
	case protocol.IceCandidate:
		return p.addCandidate(v.Candidate)
	case protocol.Error:
		p.reportError(v.Message)
	default:
		p.logger.Debugf("ignoring %s on signaling", m.MessageType())
	}
	return nil
}

// eventLoop handles data channel messages one at a time, in arrival order.
func (p *Peer) eventLoop(ctx context.Context) {
	for {
		select {
		case data := <-p.inbox:
			p.handleData(data)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Peer) handleData(data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		p.logger.Warnf("ignoring invalid game message: %v", err)
		return
	}

	switch v := m.(type) {
	case protocol.Action:
		act, err := v.Decode()
		if err != nil {
			p.logger.Infof("ignoring opponent action: %v", err)
			return
		}
		if err := p.mirror.ApplyRemote(act); err != nil {
			p.logger.WithError(err).Warn("failed to apply opponent action")
			return
		}
		p.mu.Lock()
		fn := p.onAction
		p.mu.Unlock()
		if fn != nil {
			fn(act)
		}
		p.stateChanged()
	case protocol.StateUpdate:
		p.mirror.Reconcile(v.State)
		p.stateChanged()
	case protocol.OpponentDeckLeader:
		p.leader.Deliver(v.Leader, v.OpponentName)
	case protocol.Ping:
		if err := p.Send(protocol.Pong{}); err != nil {
			p.logger.WithError(err).Debug("failed to answer ping")
		}
	case protocol.Pong:
		p.logger.Debug("pong")
	default:
		p.logger.Infof("unknown game message type %q", m.MessageType())
	}
}

// Mirror returns the peer's game state mirror.
func (p *Peer) Mirror() *client.Mirror { return p.mirror }

// IsHost reports whether this peer created the room.
func (p *Peer) IsHost() bool { return p.opts.Host }

// OnStateUpdate sets the callback run after the mirror changes because of an
// inbound message.
func (p *Peer) OnStateUpdate(fn func(models.Snapshot)) {
	p.mu.Lock()
	p.onStateUpdate = fn
	p.mu.Unlock()
}

// OnAction sets the callback run after an opponent action is applied.
func (p *Peer) OnAction(fn func(game.Action)) {
	p.mu.Lock()
	p.onAction = fn
	p.mu.Unlock()
}

// OnError sets the callback for signaling errors and transport failures.
func (p *Peer) OnError(fn func(string)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// OnOpponentDeckLeader installs the opponent leader handler, delivering a leader
// that already arrived before returning.
func (p *Peer) OnOpponentDeckLeader(fn client.LeaderHandler) {
	p.leader.Install(fn)
}

// Send writes m to the data channel.
func (p *Peer) Send(m protocol.Message) error {
	p.mu.Lock()
	send := p.sendData
	p.mu.Unlock()
	if send == nil {
		return ErrNotOpen
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return send(data)
}

// Perform applies act locally and sends it to the opponent.
func (p *Peer) Perform(act game.Action) error {
	act, err := p.mirror.Perform(act)
	if err != nil {
		return err
	}
	return p.SendAction(act)
}

// SendAction sends act without applying it locally.
func (p *Peer) SendAction(act game.Action) error {
	msg, err := protocol.NewAction(p.opts.RoomID, "", act)
	if err != nil {
		return err
	}
	return p.Send(msg)
}

// SendState sends the mirror's current snapshot.
func (p *Peer) SendState() error {
	return p.Send(protocol.StateUpdate{State: p.mirror.Snapshot()})
}

// SendDeckLeader tells the opponent which leader this side plays. There is no
// server on this path, so the leader goes straight to the opponent.
func (p *Peer) SendDeckLeader(leader models.Card) error {
	return p.Send(protocol.OpponentDeckLeader{Leader: leader, OpponentName: p.opts.PlayerName})
}

// Ping sends a ping over the data channel.
func (p *Peer) Ping() error {
	return p.Send(protocol.Ping{})
}

// Close tears down the data channel, the peer connection and the signaling socket.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	dc := p.dc
	p.sendData = nil
	p.mu.Unlock()

	var errs []error
	if dc != nil {
		errs = append(errs, dc.Close())
	}
	if p.pc != nil {
		errs = append(errs, p.pc.Close())
	}
	if p.sig != nil {
		errs = append(errs, p.sig.Close(websocket.StatusNormalClosure, ""))
	}
	return errors.Join(errs...)
}

func (p *Peer) stateChanged() {
	p.mu.Lock()
	fn := p.onStateUpdate
	p.mu.Unlock()
	if fn != nil {
		fn(p.mirror.Snapshot())
	}
}

func (p *Peer) reportError(msg string) {
	if p.closed.Load() {
		return
	}
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(msg)
	} else {
		p.logger.Errorf("peer error: %s", msg)
	}
}

func (p *Peer) signal(ctx context.Context, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.sig.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("signal %s: %w", m.MessageType(), err)
	}
	return nil
}
