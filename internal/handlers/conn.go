package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/dotr/internal/metrics"
	"github.com/jason-s-yu/dotr/internal/middleware"
	"github.com/jason-s-yu/dotr/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	outQueueSize = 32
	pingInterval = 30 * time.Second
)

// Conn is one accepted websocket. Registries hold it as their Sender; writes are
// queued on OutChan and flushed by the connection's write pump.
type Conn struct {
	ID         string
	RemoteAddr string
	OutChan    chan []byte

	logger     *logrus.Entry
	overflow   context.CancelFunc
	overflowed atomic.Bool
	once       sync.Once
}

func newConn(remoteAddr string, logger *logrus.Logger, server string, overflow context.CancelFunc) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:         id,
		RemoteAddr: remoteAddr,
		OutChan:    make(chan []byte, outQueueSize),
		logger:     logger.WithFields(logrus.Fields{"server": server, "conn": id}),
		overflow:   overflow,
	}
}

// Send queues data without blocking. A client that lets its queue fill up is
// disconnected rather than allowed to stall the registry.
func (c *Conn) Send(data []byte) {
	select {
	case c.OutChan <- data:
	default:
		c.once.Do(func() {
			c.logger.Warn("outbound queue full, dropping connection")
			c.overflowed.Store(true)
			if c.overflow != nil {
				c.overflow()
			}
		})
	}
}

// SendMessage encodes and queues m.
func (c *Conn) SendMessage(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		c.logger.WithError(err).Errorf("failed to encode %s", m.MessageType())
		return
	}
	c.Send(data)
}

// SendError queues an error message.
func (c *Conn) SendError(message string) {
	c.SendMessage(protocol.Error{Message: message})
}

// wsServer holds what the relay and signaling handlers share: accepting, the pumps
// and shutdown.
type wsServer struct {
	name         string
	logger       *logrus.Logger
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func newWSServer(name string, logger *logrus.Logger, writeTimeout time.Duration) wsServer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return wsServer{name: name, logger: logger, writeTimeout: writeTimeout, ctx: ctx, cancel: cancel}
}

// serve upgrades the request and runs the read loop until the client goes away or
// the server shuts down. onMessage is called for every text frame, in order;
// onClose runs once after the loop ends.
//
// Only the write pump closes the socket, so a notice queued just before shutdown
// is flushed ahead of the close frame.
func (s *wsServer) serve(w http.ResponseWriter, r *http.Request, onMessage func(*Conn, []byte), onClose func(*Conn)) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Browsers load the game from file:// and arbitrary hosts.
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}

	// ctx governs the write pump: cancelled on server shutdown, on queue overflow,
	// or once the read loop ends.
	ctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	conn := newConn(r.RemoteAddr, s.logger, s.name, cancel)
	middleware.LogWebSocketConnect(s.logger, s.name, conn.ID, conn.RemoteAddr)
	metrics.Connections.WithLabelValues(s.name).Inc()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx, c, conn)
	}()

	readErr := s.readPump(r.Context(), c, conn, onMessage)
	onClose(conn)
	cancel()
	<-done

	metrics.Connections.WithLabelValues(s.name).Dec()
	middleware.LogWebSocketDisconnect(s.logger, s.name, conn.ID, conn.RemoteAddr, readErr)
}

// readPump reads text frames until the socket closes. It returns nil for a close
// initiated by either side with one of the expected codes.
func (s *wsServer) readPump(ctx context.Context, c *websocket.Conn, conn *Conn, onMessage func(*Conn, []byte)) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, ServerShutdownClose, SlowConsumerClose:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			conn.logger.Warnf("received non-text message type %d, ignoring", typ)
			continue
		}
		onMessage(conn, data)
	}
}

// writePump flushes OutChan and pings the client periodically. When ctx ends it
// drains whatever is still queued and closes the socket with a code saying why.
func (s *wsServer) writePump(ctx context.Context, c *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(data []byte) error {
		writeCtx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		return c.Write(writeCtx, websocket.MessageText, data)
	}

	for {
		select {
		case <-ctx.Done():
			if err := drain(conn, write); err != nil {
				c.CloseNow()
				return
			}
			switch {
			case s.ctx.Err() != nil:
				c.Close(ServerShutdownClose, "server shutting down")
			case conn.overflowed.Load():
				c.Close(SlowConsumerClose, "outbound queue overflow")
			default:
				c.Close(websocket.StatusNormalClosure, "")
			}
			return
		case data := <-conn.OutChan:
			if err := write(data); err != nil {
				conn.logger.Warnf("failed to write to websocket: %v", err)
				c.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.logger.Warnf("ping failed: %v", err)
				c.CloseNow()
				return
			}
		}
	}
}

func drain(conn *Conn, write func([]byte) error) error {
	for {
		select {
		case data := <-conn.OutChan:
			if err := write(data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// shutdown stops every connection served by s.
func (s *wsServer) shutdown() {
	s.cancel()
}
