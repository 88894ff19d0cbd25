package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tmars/client/internal/obs"
	"tmars/client/internal/protocol"
)

var errSocketClosed = errors.New("socket: write on closed connection")

// socket is one live websocket. The reader goroutine owns inCh and closes
// it when the connection dies, which is how the manager learns about
// transport loss.
type socket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	inCh   chan protocol.Envelope
	closed bool
	logger *slog.Logger
}

func dialSocket(ctx context.Context, wsURL, token string, logger *slog.Logger) (*socket, error) {
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
		// also as a query param for proxies that strip headers
		if u, err := neturl.Parse(wsURL); err == nil {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
			wsURL = u.String()
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		Proxy: func(*http.Request) (*neturl.URL, error) {
			return nil, nil // disable proxies
		},
	}

	obs.DialsTotal.Inc()
	c, resp, err := dialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			logger.Warn("ws dial failed", "status", resp.Status, "body", string(body))
		} else {
			logger.Warn("ws dial failed", "err", err)
		}
		return nil, err
	}

	s := &socket{conn: c, inCh: make(chan protocol.Envelope, 128), logger: logger}
	go s.reader()
	return s, nil
}

func (s *socket) reader() {
	conn := s.conn
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.conn = nil
			s.mu.Unlock()
			close(s.inCh)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug("dropping malformed frame", "err", err)
			continue
		}
		obs.MessagesInTotal.Inc()
		s.inCh <- env
	}
}

// send marshals and writes one frame. The mutex is held across the
// write; the websocket allows only one concurrent writer.
func (s *socket) send(env protocol.Envelope) error {
	b, err := json.Marshal(&env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return errSocketClosed
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	obs.MessagesOutTotal.Inc()
	return nil
}

func (s *socket) close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	var err error
	if c != nil {
		err = c.Close()
	}
	return err
}
