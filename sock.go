package wsipc

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// Sock is one websocket connection accepted by a WebSocketServer
type Sock struct {
	// Associate some application-specific data with this socket
	UserData interface{}

	id  string
	srv *WebSocketServer

	wmu  sync.Mutex // guards writes on conn
	conn *websocket.Conn

	roomsMu sync.RWMutex
	rooms   roomSet

	closeOnce sync.Once
}

func newSock(srv *WebSocketServer, conn *websocket.Conn) *Sock {
	return &Sock{id: uuid.NewString(), srv: srv, conn: conn, rooms: make(roomSet)}
}

// ID is a random identifier assigned when the connection was accepted
func (s *Sock) ID() string { return s.id }

// Addr returns the remote address of the connection
func (s *Sock) Addr() string {
	if r := s.conn.Request(); r != nil {
		return r.RemoteAddr
	}
	return ""
}

func (s *Sock) InRoom(room string) bool {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

func (s *Sock) Rooms() []string {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return s.rooms.list()
}

// Join adds the connection to `room` on behalf of the host
func (s *Sock) Join(room string) {
	s.applyControl(&Envelope{Event: ChannelJoin, Room: room})
}

// Leave removes the connection from `room`
func (s *Sock) Leave(room string) {
	s.applyControl(&Envelope{Event: ChannelLeave, Room: room})
}

func (s *Sock) applyControl(e *Envelope) bool {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	return s.rooms.applyControl(e)
}

// Send writes `e` to this connection as a JSON text frame. A write blocked for longer than
// Limits.WriteTimeout fails; the server then closes the connection.
func (s *Sock) Send(e *Envelope) error {
	buf, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.srv.limits.writeTimeout())); err != nil {
		return err
	}
	if err := websocket.Message.Send(s.conn, string(buf)); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close closes the connection. The server's CloseHandler is called once.
func (s *Sock) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// read reads envelopes until the connection fails or is closed, passing each one to
// `handler`. Room membership messages are applied to the socket instead.
func (s *Sock) read(limits Limits, handler MessageHandler) error {
	if limits.MaxMessageSize > 0 {
		s.conn.MaxPayloadBytes = int(limits.MaxMessageSize)
	}
	log := Logger().With().Str("sock", s.id).Logger()
	for {
		if limits.ReadTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(limits.ReadTimeout)); err != nil {
				return err
			}
		}

		var msg []byte
		if err := websocket.Message.Receive(s.conn, &msg); err != nil {
			return err
		}

		e, err := DecodeEnvelope(msg)
		if err != nil {
			log.Warn().Err(err).Int("size", len(msg)).Msg("invalid message ignored")
			continue
		}
		if s.applyControl(e) {
			if e.Event != ChannelPing {
				log.Debug().Str("event", e.Event).Str("room", e.Room).Msg("room membership changed")
			}
			continue
		}
		if handler != nil {
			handler(s, e)
		}
	}
}
