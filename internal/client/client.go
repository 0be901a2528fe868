package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultJoinTimeout bounds how long Connect waits for the joined reply.
const DefaultJoinTimeout = 10 * time.Second

var (
	// ErrJoinTimeout is returned by Connect when no joined reply arrives in time.
	ErrJoinTimeout = errors.New("connection timeout: no joined response")
	// ErrRejected is returned by Connect when the server answers the join or rejoin
	// with an error.
	ErrRejected = errors.New("join rejected")
	// ErrNotConnected is returned when sending on a closed client.
	ErrNotConnected = errors.New("not connected to server")
)

// Options configures a relay client.
type Options struct {
	URL        string
	PlayerName string

	// Resume, when set, makes Connect send rejoin for this seat instead of join.
	Resume *Session
	// Sessions, when set, is updated after every joined reply.
	Sessions *SessionStore

	JoinTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *logrus.Logger
}

// Client is a connection to the relay server plus the local game state mirror.
// Inbound messages are handled one at a time, in order, on the client's read
// goroutine; the On* callbacks run there too.
type Client struct {
	opts   Options
	logger *logrus.Entry
	conn   *websocket.Conn
	mirror *Mirror
	leader LeaderSlot

	mu       sync.Mutex
	roomID   string
	playerID string
	token    string
	isHost   bool

	onGameStart   func(protocol.GameStart)
	onStateUpdate func(models.Snapshot)
	onAction      func(game.Action)
	onError       func(string)

	connected atomic.Bool
	closing   atomic.Bool
	joined    chan protocol.Joined
	rejected  chan string
	done      chan struct{}
}

// Connect dials the relay, sends join (or rejoin when opts.Resume is set) and
// waits for the joined reply. It fails with ErrJoinTimeout after the join timeout,
// with ErrRejected when the server answers with an error, or when ctx ends.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.JoinTimeout == 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	c := &Client{
		opts:     opts,
		logger:   opts.Logger.WithField("component", "relay-client"),
		conn:     conn,
		mirror:   NewMirror(opts.Logger),
		joined:   make(chan protocol.Joined, 1),
		rejected: make(chan string, 1),
		done:     make(chan struct{}),
	}
	c.connected.Store(true)
	go c.readLoop()

	var hello protocol.Message = protocol.Join{PlayerName: opts.PlayerName}
	if r := opts.Resume; r != nil {
		hello = protocol.Rejoin{RoomID: r.RoomID, PlayerID: r.PlayerID, Token: r.Token}
		c.token = r.Token
	}
	if err := c.send(ctx, hello); err != nil {
		c.Disconnect()
		return nil, err
	}

	timer := time.NewTimer(opts.JoinTimeout)
	defer timer.Stop()

	select {
	case <-c.joined:
		return c, nil
	case msg := <-c.rejected:
		c.Disconnect()
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	case <-timer.C:
		c.Disconnect()
		return nil, ErrJoinTimeout
	case <-c.done:
		return nil, fmt.Errorf("connection closed before joined")
	case <-ctx.Done():
		c.Disconnect()
		return nil, ctx.Err()
	}
}

// ConnectStored rejoins the seat saved in store when there is one and falls back
// to a fresh join when the rejoin is rejected. The store is kept up to date.
func ConnectStored(ctx context.Context, opts Options, store *SessionStore) (*Client, error) {
	opts.Sessions = store
	sess, ok, err := store.Load()
	if err != nil {
		opts.Logger.WithError(err).Warn("ignoring unreadable session file")
	}
	if ok {
		opts.Resume = &sess
		c, err := Connect(ctx, opts)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrRejected) {
			return nil, err
		}
		opts.Logger.WithError(err).Info("rejoin failed, joining a new room")
		_ = store.Clear()
		opts.Resume = nil
	}
	return Connect(ctx, opts)
}

// Mirror returns the client's game state mirror.
func (c *Client) Mirror() *Mirror { return c.mirror }

// RoomID returns the room this client is seated in.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// PlayerID returns this client's participant id.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// IsHost reports whether this client is the room's host.
func (c *Client) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHost
}

// Connected reports whether the socket is still open.
func (c *Client) Connected() bool { return c.connected.Load() }

// OnGameStart sets the gameStart callback.
func (c *Client) OnGameStart(fn func(protocol.GameStart)) {
	c.mu.Lock()
	c.onGameStart = fn
	c.mu.Unlock()
}

// OnStateUpdate sets the callback run after the mirror changes because of an
// inbound action or stateUpdate.
func (c *Client) OnStateUpdate(fn func(models.Snapshot)) {
	c.mu.Lock()
	c.onStateUpdate = fn
	c.mu.Unlock()
}

// OnAction sets the callback run after an opponent action is applied.
func (c *Client) OnAction(fn func(game.Action)) {
	c.mu.Lock()
	c.onAction = fn
	c.mu.Unlock()
}

// OnError sets the callback for server errors and transport failures. Replies about
// unrecognized message types are not passed to it.
func (c *Client) OnError(fn func(string)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// OnOpponentDeckLeader installs the opponent leader handler. If the leader already
// arrived, fn is called before this returns.
func (c *Client) OnOpponentDeckLeader(fn LeaderHandler) {
	c.leader.Install(fn)
}

// Perform applies act locally and sends it to the opponent.
func (c *Client) Perform(ctx context.Context, act game.Action) error {
	act, err := c.mirror.Perform(act)
	if err != nil {
		return err
	}
	return c.SendAction(ctx, act)
}

// SendAction sends act without applying it locally.
func (c *Client) SendAction(ctx context.Context, act game.Action) error {
	msg, err := protocol.NewAction(c.RoomID(), c.PlayerID(), act)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

// RegisterDeckLeader tells the server which leader this client plays.
func (c *Client) RegisterDeckLeader(ctx context.Context, leader models.Card) error {
	return c.SendAction(ctx, game.RegisterDeckLeader{Leader: leader})
}

// SendState sends the mirror's current snapshot as a stateUpdate.
func (c *Client) SendState(ctx context.Context) error {
	return c.send(ctx, protocol.StateUpdate{State: c.mirror.Snapshot()})
}

// Ping asks the server for a pong.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, protocol.Ping{})
}

// Disconnect closes the socket and waits for the read goroutine to finish.
// Messages still in flight are not delivered.
func (c *Client) Disconnect() error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

func (c *Client) send(ctx context.Context, m protocol.Message) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", m.MessageType(), err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.connected.Store(false)

	for {
		typ, data, err := c.conn.Read(context.Background())
		if err != nil {
			if !c.closing.Load() {
				c.logger.WithError(err).Warn("disconnected from server")
				c.reportError("Disconnected from server")
			}
			c.conn.CloseNow()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.handleMessage(data)
	}
}

// handleMessage processes one inbound frame to completion.
func (c *Client) handleMessage(data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warnf("ignoring invalid message: %v", err)
		return
	}

	switch v := m.(type) {
	case protocol.Joined:
		c.handleJoined(v)
	case protocol.GameStart:
		if v.GameState != nil {
			c.mirror.Adopt(*v.GameState)
		}
		c.mu.Lock()
		fn := c.onGameStart
		c.mu.Unlock()
		if fn != nil {
			fn(v)
		}
	case protocol.StateUpdate:
		c.mirror.Reconcile(v.State)
		c.stateChanged()
	case protocol.Action:
		act, err := v.Decode()
		if err != nil {
			c.logger.Infof("ignoring opponent action: %v", err)
			return
		}
		if err := c.mirror.ApplyRemote(act); err != nil {
			c.logger.WithError(err).Warn("failed to apply opponent action")
			return
		}
		c.mu.Lock()
		fn := c.onAction
		c.mu.Unlock()
		if fn != nil {
			fn(act)
		}
		c.stateChanged()
	case protocol.OpponentDeckLeader:
		c.leader.Deliver(v.Leader, v.OpponentName)
	case protocol.Error:
		if protocol.IsUnknownType(v.Message) {
			c.logger.Infof("server ignored a message: %s", v.Message)
			return
		}
		select {
		case c.rejected <- v.Message:
		default:
		}
		c.reportError(v.Message)
	case protocol.Pong:
		c.logger.Debug("pong")
	default:
		c.logger.Debugf("ignoring %s message", m.MessageType())
	}
}

func (c *Client) handleJoined(j protocol.Joined) {
	c.mu.Lock()
	c.roomID = j.RoomID
	c.playerID = j.PlayerID
	c.isHost = j.IsHost
	if j.Token != "" {
		c.token = j.Token
	}
	token := c.token
	c.mu.Unlock()

	c.mirror.SetHost(j.IsHost)
	c.logger.WithFields(logrus.Fields{"room": j.RoomID, "player": j.PlayerID, "host": j.IsHost}).Info("joined room")

	if store := c.opts.Sessions; store != nil {
		if err := store.Save(Session{RoomID: j.RoomID, PlayerID: j.PlayerID, Token: token}); err != nil {
			c.logger.WithError(err).Warn("failed to save session")
		}
	}

	select {
	case c.joined <- j:
	default:
	}
}

func (c *Client) stateChanged() {
	c.mu.Lock()
	fn := c.onStateUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(c.mirror.Snapshot())
	}
}

func (c *Client) reportError(msg string) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	} else {
		c.logger.Errorf("server error: %s", msg)
	}
}
