// Package room implements the relay server's session registry: it seats
// participants in two-player rooms, relays actions and snapshots between them and
// keeps the little state the server owns (whose turn it is).
package room

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/sirupsen/logrus"
)

// MaxParticipants is the seat count of a room.
const MaxParticipants = 2

// Errors returned to clients. The text of each is the error message sent back.
var (
	ErrRoomNotFound       = errors.New("Room not found")
	ErrRoomFull           = errors.New("Room is full")
	ErrNotInRoom          = errors.New("Not in a room")
	ErrWaitingForOpponent = errors.New("Waiting for opponent")
	ErrInvalidToken       = errors.New("Invalid resume token")
)

// Notices pushed to participants as error messages.
const (
	OpponentDisconnected = "Opponent disconnected"
	ShuttingDown         = "Server shutting down"
)

// Sender is the outbound half of a participant's connection. Send must not block:
// the registry calls it while holding its lock.
type Sender interface {
	Send(data []byte)
}

// TokenIssuer signs and checks resume tokens.
type TokenIssuer interface {
	Issue(roomID, playerID string) (string, error)
	Verify(token, roomID, playerID string) error
}

// Options configures a Registry.
type Options struct {
	Variant Variant

	// ReconnectWindow bounds how long a departed participant's seat (host flag,
	// leader) is remembered for a rejoin.
	ReconnectWindow time.Duration

	// Tokens, when set, issues a resume token with every joined reply.
	Tokens TokenIssuer
	// RequireToken rejects rejoins that do not present a valid token.
	RequireToken bool

	// OnAction is called after an action has been relayed, outside the lock.
	OnAction func(roomID, playerID string, action json.RawMessage)

	// OnRoomDeleted is called with the lock held when an emptied room is
	// deleted. It must not block.
	OnRoomDeleted func(roomID string)
}

// Participant is one seat in a room.
type Participant struct {
	ID     string
	Name   string
	IsHost bool
	Leader *models.Card
	RoomID string

	conn Sender
}

func (p *Participant) send(m protocol.Message) {
	p.conn.Send(protocol.MustEncode(m))
}

type departure struct {
	name   string
	isHost bool
	leader *models.Card
	at     time.Time
}

// Room holds at most two participants and, once both have arrived, the server's
// copy of the game state.
type Room struct {
	ID           string
	Participants []*Participant
	State        *game.State
	CreatedAt    time.Time

	leadersSent bool
	departed    map[string]departure
}

func (r *Room) find(playerID string) *Participant {
	for _, p := range r.Participants {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) other(p *Participant) *Participant {
	for _, o := range r.Participants {
		if o != p {
			return o
		}
	}
	return nil
}

func (r *Room) hasHost() bool {
	for _, p := range r.Participants {
		if p.IsHost {
			return true
		}
	}
	return false
}

func (r *Room) broadcast(m protocol.Message) {
	data := protocol.MustEncode(m)
	for _, p := range r.Participants {
		p.conn.Send(data)
	}
}

// Info is the public summary of a room.
type Info struct {
	ID           string    `json:"id"`
	Participants int       `json:"participants"`
	Started      bool      `json:"started"`
	ActivePlayer int       `json:"activePlayer,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Registry maps room identifiers to rooms and connections to the participant they
// speak for. All methods are safe for concurrent use; each one runs atomically
// with respect to room state.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	order    []string
	bindings map[Sender]*Participant

	opts   Options
	logger *logrus.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger, opts Options) *Registry {
	if opts.Variant == "" {
		opts.Variant = VariantPublic
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		bindings: make(map[Sender]*Participant),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Variant returns the relay flavour the registry was built for.
func (reg *Registry) Variant() Variant {
	return reg.opts.Variant
}

// Join seats conn in the first room waiting for a second participant, creating a
// room when there is none. The joined reply is sent before the gameStart that
// follows when the join fills the room.
func (reg *Registry) Join(conn Sender, name string) (protocol.Joined, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.leaveLocked(conn)

	room, err := reg.openRoomLocked()
	if err != nil {
		return protocol.Joined{}, err
	}
	playerID, err := NewPlayerID()
	if err != nil {
		return protocol.Joined{}, err
	}
	if name == "" {
		name = reg.opts.Variant.DefaultName(len(room.Participants) + 1)
	}

	p := &Participant{
		ID:     playerID,
		Name:   name,
		IsHost: !room.hasHost(),
		RoomID: room.ID,
		conn:   conn,
	}
	joined, err := reg.joinedLocked(p)
	if err != nil {
		return protocol.Joined{}, err
	}
	room.Participants = append(room.Participants, p)
	reg.bindings[conn] = p
	p.send(joined)

	reg.logger.WithFields(logrus.Fields{
		"room":   room.ID,
		"player": p.ID,
		"host":   p.IsHost,
		"seats":  len(room.Participants),
	}).Info("participant joined")

	if len(room.Participants) == MaxParticipants && room.State == nil {
		reg.startLocked(room)
	}
	return joined, nil
}

// Rejoin re-attaches conn to a seat it held before. If the game has started the
// rejoining participant gets the current state as a gameStart.
func (reg *Registry) Rejoin(conn Sender, req protocol.Rejoin) (protocol.Joined, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[req.RoomID]
	if !ok {
		return protocol.Joined{}, ErrRoomNotFound
	}
	if reg.opts.Tokens != nil && (reg.opts.RequireToken || req.Token != "") {
		if err := reg.opts.Tokens.Verify(req.Token, req.RoomID, req.PlayerID); err != nil {
			reg.logger.WithError(err).WithField("room", req.RoomID).Warn("rejoin token rejected")
			return protocol.Joined{}, ErrInvalidToken
		}
	}

	p := room.find(req.PlayerID)
	if p != nil {
		if p.conn != conn {
			delete(reg.bindings, p.conn)
			reg.leaveLocked(conn)
			p.conn = conn
		}
	} else {
		if len(room.Participants) >= MaxParticipants {
			return protocol.Joined{}, ErrRoomFull
		}
		reg.leaveLocked(conn)
		// conn may have been the room's last participant under another identifier.
		if reg.rooms[room.ID] != room {
			return protocol.Joined{}, ErrRoomNotFound
		}
		reg.pruneDepartedLocked(room)

		p = &Participant{ID: req.PlayerID, RoomID: room.ID, conn: conn}
		d, known := room.departed[req.PlayerID]
		if known {
			p.Name = d.name
			p.Leader = d.leader
			delete(room.departed, req.PlayerID)
		} else {
			p.Name = reg.opts.Variant.DefaultName(len(room.Participants) + 1)
		}
		p.IsHost = (!known || d.isHost) && !room.hasHost()
		room.Participants = append(room.Participants, p)
	}
	reg.bindings[conn] = p

	joined, err := reg.joinedLocked(p)
	if err != nil {
		return protocol.Joined{}, err
	}
	p.send(joined)

	reg.logger.WithFields(logrus.Fields{
		"room":   room.ID,
		"player": p.ID,
		"host":   p.IsHost,
	}).Info("participant rejoined")

	switch {
	case room.State != nil:
		snap := room.State.Snapshot()
		p.send(protocol.GameStart{GameState: &snap})
	case len(room.Participants) == MaxParticipants:
		reg.startLocked(room)
	}

	if o := room.other(p); o != nil && room.leadersSent && o.Leader != nil {
		p.send(protocol.OpponentDeckLeader{Leader: *o.Leader, OpponentName: o.Name})
	}
	return joined, nil
}

// RelayAction forwards an action from conn to the other participant. A
// registerDeckLeader action is consumed here instead. An endTurn additionally
// flips the server's active player and broadcasts the resulting state.
func (reg *Registry) RelayAction(conn Sender, msg protocol.Action) error {
	roomID, playerID, err := reg.relayActionLocked(conn, msg)
	if err != nil {
		return err
	}
	if roomID != "" && reg.opts.OnAction != nil {
		reg.opts.OnAction(roomID, playerID, msg.Action)
	}
	return nil
}

func (reg *Registry) relayActionLocked(conn Sender, msg protocol.Action) (string, string, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, room, err := reg.seatLocked(conn)
	if err != nil {
		return "", "", err
	}

	typ := msg.ActionType()
	if typ == game.ActionRegisterDeckLeader {
		act, err := msg.Decode()
		if err != nil {
			return "", "", protocol.ErrMalformed
		}
		reg.registerLeaderLocked(room, p, act.(game.RegisterDeckLeader).Leader)
		return "", "", nil
	}

	other := room.other(p)
	if other == nil {
		return "", "", ErrWaitingForOpponent
	}
	other.send(protocol.Action{Action: msg.Action})
	label := typ
	if !game.KnownAction(typ) {
		label = "unknown"
	}
	metrics.ActionsRelayed.WithLabelValues(label).Inc()

	if typ == game.ActionEndTurn && room.State != nil {
		room.State.PassTurn()
		room.broadcast(protocol.StateUpdate{State: room.State.Snapshot()})
		reg.logger.WithFields(logrus.Fields{
			"room":   room.ID,
			"active": room.State.ActivePlayer,
		}).Debug("turn passed")
	}
	return room.ID, p.ID, nil
}

// RelayState forwards a client's stateUpdate, byte for byte, to the other
// participant. The server never merges it into its own state.
func (reg *Registry) RelayState(conn Sender, data []byte) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, room, err := reg.seatLocked(conn)
	if err != nil {
		return err
	}
	other := room.other(p)
	if other == nil {
		return ErrWaitingForOpponent
	}
	other.conn.Send(data)
	return nil
}

// RegisterDeckLeader records conn's leader card. Once both participants have one,
// each is sent the other's.
func (reg *Registry) RegisterDeckLeader(conn Sender, leader models.Card) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p, room, err := reg.seatLocked(conn)
	if err != nil {
		return err
	}
	reg.registerLeaderLocked(room, p, leader)
	return nil
}

func (reg *Registry) registerLeaderLocked(room *Room, p *Participant, leader models.Card) {
	p.Leader = &leader
	reg.logger.WithFields(logrus.Fields{
		"room":   room.ID,
		"player": p.ID,
		"leader": leader.Name,
	}).Info("deck leader registered")

	if room.leadersSent || len(room.Participants) < MaxParticipants {
		return
	}
	for _, q := range room.Participants {
		if q.Leader == nil {
			return
		}
	}
	for _, q := range room.Participants {
		o := room.other(q)
		q.send(protocol.OpponentDeckLeader{Leader: *o.Leader, OpponentName: o.Name})
	}
	room.leadersSent = true
}

// Leave removes conn's participant from its room. An empty room is deleted; a
// remaining participant is told its opponent left. A connection that was
// replaced by a rejoin leaves nothing behind.
func (reg *Registry) Leave(conn Sender) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.leaveLocked(conn)
}

func (reg *Registry) leaveLocked(conn Sender) {
	p, ok := reg.bindings[conn]
	if !ok {
		return
	}
	delete(reg.bindings, conn)
	if p.conn != conn {
		return
	}
	room, ok := reg.rooms[p.RoomID]
	if !ok {
		return
	}

	for i, q := range room.Participants {
		if q == p {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			break
		}
	}
	room.departed[p.ID] = departure{name: p.Name, isHost: p.IsHost, leader: p.Leader, at: reg.now()}

	log := reg.logger.WithFields(logrus.Fields{"room": room.ID, "player": p.ID})
	if len(room.Participants) == 0 {
		reg.deleteRoomLocked(room.ID)
		log.Info("room deleted (empty)")
		return
	}
	log.Info("participant left")
	for _, q := range room.Participants {
		q.send(protocol.Error{Message: OpponentDisconnected})
	}
}

// Seat returns the room and participant identifiers bound to conn.
func (reg *Registry) Seat(conn Sender) (roomID, playerID string, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	p, ok := reg.bindings[conn]
	if !ok {
		return "", "", false
	}
	return p.RoomID, p.ID, true
}

// Rooms lists open rooms in creation order.
func (reg *Registry) Rooms() []Info {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]Info, 0, len(reg.order))
	for _, id := range reg.order {
		room := reg.rooms[id]
		info := Info{
			ID:           room.ID,
			Participants: len(room.Participants),
			Started:      room.State != nil,
			CreatedAt:    room.CreatedAt,
		}
		if room.State != nil {
			info.ActivePlayer = int(room.State.ActivePlayer)
		}
		out = append(out, info)
	}
	return out
}

// Room returns a copy of the summary of one room.
func (reg *Registry) Room(id string) (Info, bool) {
	for _, info := range reg.Rooms() {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}

// Close notifies every connected participant that the server is going away and
// forgets all rooms.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	data := protocol.MustEncode(protocol.Error{Message: ShuttingDown})
	conns := make([]Sender, 0, len(reg.bindings))
	for conn := range reg.bindings {
		conns = append(conns, conn)
	}
	// Stable order keeps shutdown logs readable.
	sort.Slice(conns, func(i, j int) bool {
		return reg.bindings[conns[i]].ID < reg.bindings[conns[j]].ID
	})
	for _, conn := range conns {
		conn.Send(data)
	}

	reg.rooms = make(map[string]*Room)
	reg.order = nil
	reg.bindings = make(map[Sender]*Participant)
	metrics.RoomsActive.WithLabelValues(metrics.Relay).Set(0)
	reg.logger.Infof("registry closed, %d participants notified", len(conns))
}

func (reg *Registry) seatLocked(conn Sender) (*Participant, *Room, error) {
	p, ok := reg.bindings[conn]
	if !ok {
		return nil, nil, ErrNotInRoom
	}
	room, ok := reg.rooms[p.RoomID]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	return p, room, nil
}

// openRoomLocked returns the oldest room still waiting for its second participant.
// Rooms whose game has started keep their empty seat for a rejoin.
func (reg *Registry) openRoomLocked() (*Room, error) {
	for _, id := range reg.order {
		room := reg.rooms[id]
		if len(room.Participants) < MaxParticipants && room.State == nil {
			return room, nil
		}
	}

	var id string
	for {
		candidate, err := reg.opts.Variant.NewRoomID()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.rooms[candidate]; !taken {
			id = candidate
			break
		}
		reg.logger.Debugf("collision on room id %s, regenerating", candidate)
	}

	room := &Room{
		ID:        id,
		CreatedAt: reg.now(),
		departed:  make(map[string]departure),
	}
	reg.rooms[id] = room
	reg.order = append(reg.order, id)
	metrics.RoomsActive.WithLabelValues(metrics.Relay).Set(float64(len(reg.rooms)))
	reg.logger.WithField("room", id).Info("room created")
	return room, nil
}

func (reg *Registry) deleteRoomLocked(id string) {
	delete(reg.rooms, id)
	for i, rid := range reg.order {
		if rid == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	metrics.RoomsActive.WithLabelValues(metrics.Relay).Set(float64(len(reg.rooms)))
	if reg.opts.OnRoomDeleted != nil {
		reg.opts.OnRoomDeleted(id)
	}
}

func (reg *Registry) pruneDepartedLocked(room *Room) {
	if reg.opts.ReconnectWindow <= 0 {
		return
	}
	cutoff := reg.now().Add(-reg.opts.ReconnectWindow)
	for id, d := range room.departed {
		if d.at.Before(cutoff) {
			delete(room.departed, id)
		}
	}
}

func (reg *Registry) startLocked(room *Room) {
	room.State = game.NewState()
	snap := room.State.Snapshot()
	room.broadcast(protocol.GameStart{GameState: &snap})
	reg.logger.WithField("room", room.ID).Info("game started")
}

func (reg *Registry) joinedLocked(p *Participant) (protocol.Joined, error) {
	joined := protocol.Joined{RoomID: p.RoomID, PlayerID: p.ID, IsHost: p.IsHost}
	if reg.opts.Tokens != nil {
		token, err := reg.opts.Tokens.Issue(p.RoomID, p.ID)
		if err != nil {
			return protocol.Joined{}, err
		}
		joined.Token = token
	}
	return joined, nil
}
