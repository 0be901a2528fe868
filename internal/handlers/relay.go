package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/dotr/internal/cache"
	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/jason-s-yu/dotr/internal/room"
	"github.com/sirupsen/logrus"
)

// RelayServer serves the relay websocket and its JSON endpoints.
type RelayServer struct {
	wsServer

	Registry *room.Registry
	// Actions is the optional per-room action log; nil disables /rooms/{id}/actions.
	Actions *cache.ActionLog
}

// NewRelayServer wires a registry (and optionally an action log) to HTTP.
func NewRelayServer(logger *logrus.Logger, reg *room.Registry, actions *cache.ActionLog, writeTimeout time.Duration) *RelayServer {
	return &RelayServer{
		wsServer: newWSServer(metrics.Relay, logger, writeTimeout),
		Registry: reg,
		Actions:  actions,
	}
}

// RecordActions returns a room.Options.OnAction hook appending to log.
func RecordActions(log *cache.ActionLog, logger *logrus.Logger) func(roomID, playerID string, action json.RawMessage) {
	return func(roomID, playerID string, action json.RawMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := log.Append(ctx, roomID, playerID, action); err != nil {
			logger.WithError(err).WithField("room", roomID).Warn("failed to record action")
		}
	}
}

// ForgetActions returns a room.Options.OnRoomDeleted hook dropping the room's
// log. The delete runs in the background since the hook is called under the
// registry lock.
func ForgetActions(log *cache.ActionLog, logger *logrus.Logger) func(roomID string) {
	return func(roomID string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := log.Delete(ctx, roomID); err != nil {
				logger.WithError(err).WithField("room", roomID).Warn("failed to delete action log")
			}
		}()
	}
}

// HandleWS accepts a relay connection.
func (s *RelayServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, s.handleMessage, func(conn *Conn) {
		s.Registry.Leave(conn)
	})
}

// handleMessage processes one inbound frame to completion.
func (s *RelayServer) handleMessage(conn *Conn, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		conn.logger.Warnf("invalid message: %v", err)
		conn.SendError(protocol.ErrMalformed.Error())
		return
	}
	metrics.MessagesReceived.WithLabelValues(s.name, metricType(m)).Inc()
	conn.logger.Debugf("received %s", m.MessageType())

	switch v := m.(type) {
	case protocol.Join:
		_, err = s.Registry.Join(conn, v.PlayerName)
	case protocol.Rejoin:
		_, err = s.Registry.Rejoin(conn, v)
	case protocol.Action:
		err = s.Registry.RelayAction(conn, v)
	case protocol.StateUpdate:
		err = s.Registry.RelayState(conn, data)
	case protocol.Ping:
		conn.SendMessage(protocol.Pong{})
	default:
		s.unknownType(conn, m.MessageType())
	}

	if err != nil {
		if !isClientError(err) {
			conn.logger.WithError(err).Error("failed to handle message")
		}
		conn.SendError(err.Error())
	}
}

func (s *RelayServer) unknownType(conn *Conn, typ string) {
	conn.logger.Warnf("unknown message type %q", typ)
	if s.Registry.Variant().RepliesToUnknownTypes() {
		conn.SendMessage(protocol.UnknownTypeError(typ))
	}
}

// metricType labels m for metrics, folding client-chosen unknown tags into one
// value.
func metricType(m protocol.Message) string {
	if _, ok := m.(protocol.Unknown); ok {
		return "unknown"
	}
	return m.MessageType()
}

func isClientError(err error) bool {
	for _, target := range []error{
		room.ErrRoomNotFound, room.ErrRoomFull, room.ErrNotInRoom,
		room.ErrWaitingForOpponent, room.ErrInvalidToken, protocol.ErrMalformed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ListRooms handles GET /rooms.
func (s *RelayServer) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Rooms())
}

// GetRoom handles GET /rooms/{roomID}.
func (s *RelayServer) GetRoom(w http.ResponseWriter, r *http.Request) {
	info, ok := s.Registry.Room(chi.URLParam(r, "roomID"))
	if !ok {
		http.Error(w, room.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListActions handles GET /rooms/{roomID}/actions.
func (s *RelayServer) ListActions(w http.ResponseWriter, r *http.Request) {
	if s.Actions == nil {
		http.Error(w, "action log disabled", http.StatusServiceUnavailable)
		return
	}
	recs, err := s.Actions.List(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.logger.WithError(err).Warn("failed to read action log")
		http.Error(w, "failed to read action log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Shutdown notifies participants and closes every relay connection.
func (s *RelayServer) Shutdown() {
	s.Registry.Close()
	s.shutdown()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
