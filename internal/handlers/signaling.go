package handlers

import (
	"net/http"
	"time"

	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/jason-s-yu/dotr/internal/signaling"
	"github.com/sirupsen/logrus"
)

// SignalingServer serves the signaling websocket.
type SignalingServer struct {
	wsServer

	Registry *signaling.Registry
}

// NewSignalingServer wires a signaling registry to HTTP.
func NewSignalingServer(logger *logrus.Logger, reg *signaling.Registry, writeTimeout time.Duration) *SignalingServer {
	return &SignalingServer{
		wsServer: newWSServer(metrics.Signaling, logger, writeTimeout),
		Registry: reg,
	}
}

// HandleWS accepts a signaling connection.
func (s *SignalingServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, s.handleMessage, func(conn *Conn) {
		s.Registry.Leave(conn)
	})
}

func (s *SignalingServer) handleMessage(conn *Conn, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		conn.logger.Warnf("invalid message: %v", err)
		conn.SendError(protocol.ErrMalformed.Error())
		return
	}
	metrics.MessagesReceived.WithLabelValues(s.name, metricType(m)).Inc()

	switch v := m.(type) {
	case protocol.Create:
		err = s.Registry.Create(conn, v.RoomID)
	case protocol.Join:
		err = s.Registry.Join(conn, v.RoomID)
	case protocol.Offer, protocol.Answer, protocol.IceCandidate:
		s.Registry.Forward(conn, m)
	case protocol.Ping:
		conn.SendMessage(protocol.Pong{})
	default:
		conn.logger.Debugf("ignoring %s on signaling server", m.MessageType())
	}

	if err != nil {
		conn.SendError(err.Error())
	}
}

// Shutdown notifies peers and closes every signaling connection.
func (s *SignalingServer) Shutdown() {
	s.Registry.Close()
	s.shutdown()
}
