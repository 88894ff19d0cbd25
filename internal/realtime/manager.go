// Package realtime owns the one persistent connection to the game server.
// It registers the player's identity over that connection, persists the
// confirmed session, and fans typed events out to every subscribed view.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tmars/client/internal/events"
	"tmars/client/internal/netcfg"
	"tmars/client/internal/obs"
	"tmars/client/internal/protocol"
	"tmars/client/internal/session"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("realtime: manager closed")

// ServerError is an application-level rejection from the server (game
// full, game not found, invalid identity). The manager never retries
// these; the caller decides.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server: %s (%s)", e.Message, e.Code)
	}
	return "server: " + e.Message
}

// RetryPolicy shapes the transport redial backoff.
type RetryPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:   500 * time.Millisecond,
		Max:    15 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// IdentityResult is what a confirmed join or reconnect resolves to.
type IdentityResult struct {
	Game       protocol.Snapshot
	PlayerID   string
	PlayerName string
}

type identityKey struct {
	gameID   string
	identity string // playerID when known, playerName otherwise
}

type identityRequest struct {
	key  identityKey
	name string // playerName the frame was sent with
	env  protocol.Envelope
	done chan struct{}
	res  IdentityResult
	err  error
}

type Options struct {
	URL    string         // websocket endpoint; defaults to netcfg.ServerURL
	Token  string         // bearer token for the dial, if any
	Store  *session.Store // session persistence; defaults to the config-dir store
	Retry  RetryPolicy
	Logger *slog.Logger
}

// Manager is constructed once per process and injected into consumers.
type Manager struct {
	url      string
	token    string
	retry    RetryPolicy
	logger   *slog.Logger
	registry *events.Registry
	store    *session.Store
	done     chan struct{}

	resume singleflight.Group

	mu       sync.Mutex
	state    State
	sock     *socket
	dialWait []chan error
	pending  map[identityKey]*identityRequest
	order    []identityKey // pending keys in arrival order
	current  string        // playerID this client believes it is
	attempt  int           // successful dials so far
	closed   bool
}

func NewManager(opts Options) *Manager {
	if opts.URL == "" {
		opts.URL = netcfg.ServerURL
	}
	if opts.Store == nil {
		opts.Store = session.NewStore()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		url:      opts.URL,
		token:    opts.Token,
		retry:    opts.Retry,
		logger:   opts.Logger,
		registry: events.NewRegistry(opts.Logger),
		store:    opts.Store,
		done:     make(chan struct{}),
		pending:  make(map[identityKey]*identityRequest),
	}
}

func (m *Manager) On(kind events.Kind, l events.Listener)  { m.registry.On(kind, l) }
func (m *Manager) Off(kind events.Kind, l events.Listener) { m.registry.Off(kind, l) }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) CurrentPlayerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrentPlayerID overrides which identity this client represents.
// Narrow escape hatch for the window where a reconnect resolved but the
// next snapshot has not yet named the viewing player.
func (m *Manager) SetCurrentPlayerID(id string) {
	m.mu.Lock()
	m.current = id
	m.mu.Unlock()
}

func (m *Manager) Store() *session.Store { return m.store }

func (m *Manager) emit(e events.Event) {
	obs.EventsTotal.WithLabelValues(e.Kind().String()).Inc()
	m.registry.Emit(e)
}

// Initialize establishes the transport if it is not already up or being
// brought up. Concurrent callers during Connecting all wait for the same
// dial; no second socket is ever opened. Returns once Connected.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	m.dialWait = append(m.dialWait, ch)
	if m.state == StateDisconnected {
		m.state = StateConnecting
		go m.connectLoop()
	}
	m.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectLoop dials until it succeeds or the manager closes. Transport
// failures are never surfaced to identity callers; they wait through the
// backoff.
func (m *Manager) connectLoop() {
	for attempt := 1; ; attempt++ {
		select {
		case <-m.done:
			return
		default:
		}

		s, err := dialSocket(context.Background(), m.url, m.token, m.logger)
		if err == nil {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				_ = s.close()
				return
			}
			m.sock = s
			m.state = StateConnected
			m.attempt++
			up := m.attempt
			waiters := m.dialWait
			m.dialWait = nil
			resend := make([]protocol.Envelope, 0, len(m.pending))
			for _, key := range m.order {
				if req, ok := m.pending[key]; ok {
					resend = append(resend, req.env)
				}
			}
			m.mu.Unlock()

			obs.Connected.Set(1)
			for _, ch := range waiters {
				ch <- nil
			}
			// requests that were pending across the outage go out again,
			// one frame per pending key
			for _, env := range resend {
				if err := s.send(env); err != nil {
					break // loss picked up by readLoop
				}
			}
			m.logger.Info("connected", "url", m.url, "dial", up)
			m.emit(events.ConnectionUp{Attempt: up})
			go m.readLoop(s)
			return
		}

		d := m.retry.delay(attempt)
		m.logger.Warn("dial failed, backing off", "attempt", attempt, "backoff", d, "err", err)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-m.done:
			timer.Stop()
			return
		}
	}
}

func (m *Manager) readLoop(s *socket) {
	for env := range s.inCh {
		m.handle(env)
	}

	obs.Connected.Set(0)
	m.mu.Lock()
	if m.closed || m.sock != s {
		m.mu.Unlock()
		return
	}
	m.sock = nil
	m.state = StateConnecting
	m.mu.Unlock()

	obs.ReconnectsTotal.Inc()
	m.logger.Warn("transport lost, redialing")
	m.emit(events.ConnectionDown{})
	go m.connectLoop()
}

func (m *Manager) handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeGameUpdated:
		var p protocol.GameUpdatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			m.logger.Warn("bad game-updated payload", "err", err)
			return
		}
		m.emit(events.GameUpdated{GameID: env.GameID, Game: p.Game})

	case protocol.TypeFullState:
		var p protocol.FullStatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			m.logger.Warn("bad full-state payload", "err", err)
			return
		}
		if p.PlayerID != "" {
			m.SetCurrentPlayerID(p.PlayerID)
		}
		m.emit(events.GameUpdated{GameID: env.GameID, Game: p.Game})

	case protocol.TypePlayerConnected:
		var p protocol.PlayerConnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			m.logger.Warn("bad player-connected payload", "err", err)
			return
		}
		m.resolveIdentity(env.GameID, p.PlayerID, p.PlayerName, p.Game, false)

	case protocol.TypePlayerReconnected:
		var p protocol.PlayerReconnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			m.logger.Warn("bad player-reconnected payload", "err", err)
			return
		}
		m.resolveIdentity(env.GameID, p.PlayerID, p.PlayerName, p.Game, true)

	case protocol.TypePlayerDisconnected:
		var p protocol.PlayerDisconnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		m.emit(events.PlayerDisconnected{PlayerID: p.PlayerID, PlayerName: p.PlayerName})

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		m.rejectIdentity(env.GameID, &ServerError{Code: p.Code, Message: p.Message})

	default:
		m.logger.Debug("unhandled message", "type", string(env.Type))
	}
}

// resolveIdentity settles the pending request the confirmation belongs
// to. Confirmations about other players (broadcasts) just fan out.
func (m *Manager) resolveIdentity(gameID, playerID, playerName string, game protocol.Snapshot, reconnect bool) {
	m.mu.Lock()
	var req *identityRequest
	for i, key := range m.order {
		if gameID != "" && key.gameID != gameID {
			continue
		}
		r := m.pending[key]
		// a request keyed by playerID (reconnect with a saved id) is
		// answered with a frame that names the player, so match on the
		// sent name as well
		if key.identity == playerName || (playerID != "" && key.identity == playerID) || r.name == playerName {
			req = r
			delete(m.pending, key)
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if req != nil {
		m.current = playerID
	}
	m.mu.Unlock()

	if req == nil {
		// a different player joined or came back; informational
		if reconnect {
			m.emit(events.PlayerReconnected{PlayerID: playerID, PlayerName: playerName, Game: game})
		} else {
			m.emit(events.PlayerConnected{PlayerID: playerID, PlayerName: playerName, Game: game})
		}
		return
	}

	obs.PendingIdentity.Dec()

	// the session record reflects only server-confirmed identity
	if err := m.store.Save(session.Session{
		GameID:     req.key.gameID,
		PlayerID:   playerID,
		PlayerName: playerName,
	}); err != nil {
		m.logger.Warn("session save failed", "err", err)
	}

	req.res = IdentityResult{Game: game, PlayerID: playerID, PlayerName: playerName}
	close(req.done)

	if reconnect {
		m.emit(events.PlayerReconnected{PlayerID: playerID, PlayerName: playerName, Game: game})
	} else {
		m.emit(events.PlayerConnected{PlayerID: playerID, PlayerName: playerName, Game: game})
	}
}

// rejectIdentity fails the oldest pending request the error can belong
// to. Application errors are not retried here and never touch the saved
// session.
func (m *Manager) rejectIdentity(gameID string, serr error) {
	m.mu.Lock()
	var req *identityRequest
	for i, key := range m.order {
		if gameID != "" && key.gameID != gameID {
			continue
		}
		req = m.pending[key]
		delete(m.pending, key)
		m.order = append(m.order[:i], m.order[i+1:]...)
		break
	}
	m.mu.Unlock()

	if req == nil {
		m.logger.Warn("server error with no pending request", "err", serr)
		return
	}
	obs.PendingIdentity.Dec()
	req.err = serr
	close(req.done)
}

// PlayerConnect joins gameID as playerName. When playerID is non-empty a
// reconnect frame is sent instead and the server resumes that identity.
// The saved session is not touched until the server confirms.
func (m *Manager) PlayerConnect(ctx context.Context, playerName, gameID, playerID string) (IdentityResult, error) {
	if playerID != "" {
		return m.identityRequest(ctx, protocol.TypePlayerReconnect, playerName, gameID, playerID)
	}
	return m.identityRequest(ctx, protocol.TypePlayerConnect, playerName, gameID, "")
}

// PlayerReconnect is the explicit reconnect variant used when a previous
// session is known.
func (m *Manager) PlayerReconnect(ctx context.Context, playerName, gameID string) (IdentityResult, error) {
	return m.identityRequest(ctx, protocol.TypePlayerReconnect, playerName, gameID, "")
}

func (m *Manager) identityRequest(ctx context.Context, t protocol.MessageType, playerName, gameID, playerID string) (IdentityResult, error) {
	if gameID == "" || playerName == "" {
		return IdentityResult{}, errors.New("realtime: gameID and playerName are required")
	}
	if err := m.Initialize(ctx); err != nil {
		return IdentityResult{}, err
	}

	identity := playerName
	if playerID != "" {
		identity = playerID
	}
	key := identityKey{gameID: gameID, identity: identity}

	var payload any
	switch t {
	case protocol.TypePlayerReconnect:
		payload = protocol.PlayerReconnectPayload{PlayerName: playerName, GameID: gameID}
	default:
		payload = protocol.PlayerConnectPayload{PlayerName: playerName, GameID: gameID}
	}
	env, err := protocol.NewEnvelope(t, payload, gameID)
	if err != nil {
		return IdentityResult{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return IdentityResult{}, ErrClosed
	}
	if existing, ok := m.pending[key]; ok {
		// identical request already in flight; share it, send nothing
		m.mu.Unlock()
		m.logger.Debug("joining pending identity request", "game", gameID, "identity", identity)
		return m.await(ctx, existing)
	}
	req := &identityRequest{key: key, name: playerName, env: env, done: make(chan struct{})}
	m.pending[key] = req
	m.order = append(m.order, key)
	sock := m.sock
	m.mu.Unlock()
	obs.PendingIdentity.Inc()

	if sock != nil {
		if err := sock.send(env); err != nil {
			// transport just died; the redial loop re-sends pending frames
			m.logger.Warn("send failed, deferred to reconnect", "type", string(t), "err", err)
		}
	}
	return m.await(ctx, req)
}

func (m *Manager) await(ctx context.Context, req *identityRequest) (IdentityResult, error) {
	select {
	case <-req.done:
		return req.res, req.err
	case <-ctx.Done():
		// the wire request stays pending; a later identical call reuses it
		return IdentityResult{}, ctx.Err()
	}
}

// SendAction forwards an opaque action request to the server.
func (m *Manager) SendAction(ctx context.Context, gameID string, action json.RawMessage) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}
	env, err := protocol.NewEnvelope(protocol.TypePlayAction, protocol.PlayActionPayload{ActionRequest: action}, gameID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return errSocketClosed
	}
	return sock.send(env)
}

// Close tears the manager down. Pending identity requests fail with
// ErrClosed; no redial follows.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	sock := m.sock
	m.sock = nil
	m.state = StateDisconnected
	waiters := m.dialWait
	m.dialWait = nil
	reqs := make([]*identityRequest, 0, len(m.pending))
	for _, key := range m.order {
		if req, ok := m.pending[key]; ok {
			reqs = append(reqs, req)
		}
	}
	m.pending = make(map[identityKey]*identityRequest)
	m.order = nil
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- ErrClosed
	}
	for _, req := range reqs {
		obs.PendingIdentity.Dec()
		req.err = ErrClosed
		close(req.done)
	}
	obs.Connected.Set(0)
	if sock != nil {
		return sock.close()
	}
	return nil
}
