package wsipc

import (
	"errors"
	"io"
	"net/http"

	"golang.org/x/net/websocket"
)

// websocketHandler returns the handler upgrading HTTP requests to websocket connections.
// Any origin is accepted.
func (s *WebSocketServer) websocketHandler() http.Handler {
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.accept,
	}
}

func (s *WebSocketServer) accept(ws *websocket.Conn) {
	ws.PayloadType = websocket.TextFrame
	sock := newSock(s, ws)
	if !s.addSock(sock) {
		ws.Close()
		return
	}
	defer s.removeSock(sock)
	defer sock.Close()

	log := Logger().With().Str("sock", sock.ID()).Str("remote", sock.Addr()).Logger()
	log.Info().Msg("peer connected")

	if s.AcceptHandler != nil {
		s.AcceptHandler(sock)
	}

	s.mu.Lock()
	handler := s.onMessage
	s.mu.Unlock()

	err := sock.read(s.limits, handler)
	if err == nil || errors.Is(err, io.EOF) {
		log.Info().Msg("peer disconnected")
	} else {
		log.Info().Err(err).Msg("peer disconnected")
	}
}
