// Package signaling pairs two peers under a caller-chosen room identifier and
// passes their connection handshake (offer, answer, candidates) between them. It
// carries no game data and validates nothing about the game.
package signaling

import (
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Errors returned to clients; the text is the error message sent back.
var (
	ErrRoomExists   = errors.New("Room already exists")
	ErrRoomNotFound = errors.New("Room not found")
	ErrRoomFull     = errors.New("Room is full")
)

// Notices pushed when the other side goes away.
const (
	HostDisconnected = "Host disconnected"
	PeerDisconnected = "Peer disconnected"
	ShuttingDown     = "Server shutting down"
)

// Sender is the outbound half of a connection. Send must not block.
type Sender interface {
	Send(data []byte)
}

// Room pairs the creating host with at most one peer.
type Room struct {
	ID        string
	Host      Sender
	Peer      Sender
	CreatedAt time.Time
}

func (r *Room) counterpart(conn Sender) Sender {
	switch conn {
	case r.Host:
		return r.Peer
	case r.Peer:
		return r.Host
	}
	return nil
}

// Registry holds signaling rooms. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	bindings map[Sender]string
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		bindings: make(map[Sender]string),
		logger:   logger,
	}
}

func send(conn Sender, m protocol.Message) {
	if conn != nil {
		conn.Send(protocol.MustEncode(m))
	}
}

// Create opens roomID with conn as host.
func (reg *Registry) Create(conn Sender, roomID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.rooms[roomID]; ok {
		return ErrRoomExists
	}
	reg.leaveLocked(conn)

	reg.rooms[roomID] = &Room{ID: roomID, Host: conn, CreatedAt: time.Now()}
	reg.bindings[conn] = roomID
	metrics.RoomsActive.WithLabelValues(metrics.Signaling).Set(float64(len(reg.rooms)))
	reg.logger.WithField("room", roomID).Info("signaling room created")

	send(conn, protocol.Created{RoomID: roomID})
	return nil
}

// Join seats conn as the peer of roomID. Both sides are then told they are joined
// and that the game can start; the host answers by sending its offer.
func (reg *Registry) Join(conn Sender, roomID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Peer != nil || room.Host == conn {
		return ErrRoomFull
	}
	reg.leaveLocked(conn)

	room.Peer = conn
	reg.bindings[conn] = roomID
	reg.logger.WithField("room", roomID).Info("peer joined signaling room")

	joined := protocol.Joined{RoomID: roomID}
	send(room.Host, joined)
	send(room.Peer, joined)
	send(room.Host, protocol.GameStart{})
	send(room.Peer, protocol.GameStart{})
	return nil
}

// Forward passes a handshake message to whichever side of its room did not send
// it, with the room identifier stripped. Messages for unknown rooms or from
// connections outside the room are dropped.
func (reg *Registry) Forward(conn Sender, m protocol.Message) {
	var roomID string
	switch v := m.(type) {
	case protocol.Offer:
		roomID = v.RoomID
		v.RoomID = ""
		m = v
	case protocol.Answer:
		roomID = v.RoomID
		v.RoomID = ""
		m = v
	case protocol.IceCandidate:
		roomID = v.RoomID
		v.RoomID = ""
		m = v
	default:
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if roomID == "" {
		roomID = reg.bindings[conn]
	}
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.logger.WithField("room", roomID).Debugf("dropping %s for unknown room", m.MessageType())
		return
	}
	send(room.counterpart(conn), m)
}

// Leave detaches conn. A departing host closes the room and tells the peer; a
// departing peer frees the seat and tells the host.
func (reg *Registry) Leave(conn Sender) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.leaveLocked(conn)
}

func (reg *Registry) leaveLocked(conn Sender) {
	roomID, ok := reg.bindings[conn]
	if !ok {
		return
	}
	delete(reg.bindings, conn)
	room, ok := reg.rooms[roomID]
	if !ok {
		return
	}

	switch conn {
	case room.Host:
		if room.Peer != nil {
			send(room.Peer, protocol.Error{Message: HostDisconnected})
			delete(reg.bindings, room.Peer)
		}
		delete(reg.rooms, roomID)
		metrics.RoomsActive.WithLabelValues(metrics.Signaling).Set(float64(len(reg.rooms)))
		reg.logger.WithField("room", roomID).Info("host left, signaling room closed")
	case room.Peer:
		room.Peer = nil
		send(room.Host, protocol.Error{Message: PeerDisconnected})
		reg.logger.WithField("room", roomID).Info("peer left signaling room")
	}
}

// Len returns the number of open rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Close tells every connection the server is going away and drops all rooms.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for conn := range reg.bindings {
		send(conn, protocol.Error{Message: ShuttingDown})
	}
	reg.rooms = make(map[string]*Room)
	reg.bindings = make(map[Sender]string)
	metrics.RoomsActive.WithLabelValues(metrics.Signaling).Set(0)
}
