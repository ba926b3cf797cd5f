package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
)

// maxMessageSize bounds a single inbound message
const maxMessageSize = 10 << 20

// Transport names
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// ServeStream serves one session over newline-delimited JSON until r is
// exhausted or ctx is done. Messages are processed strictly in order.
func (s *Server) ServeStream(ctx context.Context, r io.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	sess := s.openSession(TransportStdio, encoder.Encode, nil)
	defer s.closeSession(sess)

	// the reader exits on any return, including a failed write
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read stream: %w", err)
					}
				default:
				}
				return nil
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if err := s.process(ctx, sess, line); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

// ServeHTTP upgrades the request to a websocket and serves one session on it
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sess := s.openSession(TransportWebSocket, conn.WriteJSON, conn.Close)
	defer func() {
		conn.Close()
		s.closeSession(sess)
	}()

	ctx := r.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("WebSocket error")
			}
			return
		}

		if err := s.process(ctx, sess, message); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to send response")
			return
		}
	}
}

// process handles one message and writes its response, if any
func (s *Server) process(ctx context.Context, sess *Session, message []byte) error {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	resp := s.HandleMessage(ctx, sess, message)
	if resp == nil {
		return nil
	}
	return sess.Send(resp)
}
