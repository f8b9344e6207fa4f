package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/audiolink/audiolink/lavalink"
)

// Resume probe tuning. For the first two retries of an outage on a
// resume-enabled session, the delay is half the resume window minus a small
// latency margin, so the probe lands well inside the window instead of
// burning the whole of it on backoff. Windows longer than the ceiling get a
// flat probe interval. After two probes, ordinary backoff takes over.
const (
	resumeProbeRetries = 2
	resumeProbeCeiling = 70 * time.Second
	resumeProbeFlat    = 30 * time.Second
	resumeProbeMargin  = 2 * time.Second
)

// Session manages the WebSocket connection to a single node. Create one with
// NewSession, start it with Connect, and consume inbound frames from Frames.
// A session reconnects on its own until Close is called; only an
// authorization failure stops it permanently.
type Session struct {
	cfg    Config
	logger *slog.Logger

	frames chan InboundFrame

	queue   *TimedQueue
	backoff *Backoff

	// Write serialization
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	canResume      bool
	sessionResumed bool
	sessionID      string
	closed         bool

	// Each successful connect bumps the generation; a listener whose
	// generation is stale stops processing, so at most one listener ever
	// acts on the session.
	listenerGen  atomic.Int64
	reconnecting atomic.Bool

	wg   sync.WaitGroup
	done chan struct{}
}

// NewSession creates a session for one node. When resume is enabled and no
// resume key is configured, a key is generated.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.applyDefaults()
	if cfg.resumeEnabled() && cfg.ResumeKey == "" {
		cfg.ResumeKey = uuid.NewString()
	}

	return &Session{
		cfg:     cfg,
		logger:  logger.With("node", cfg.Host),
		frames:  make(chan InboundFrame, cfg.FrameBufferSize),
		queue:   NewTimedQueue(cfg.PayloadTimeout),
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax),
		done:    make(chan struct{}),
	}
}

// Connect establishes the connection. Connecting while already connected or
// while a reconnect cycle is running is a logged no-op. An
// ErrAuthorizationFailed is returned to the caller and never retried; any
// other handshake failure schedules background reconnection and returns nil.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status == StatusConnected {
		s.mu.Unlock()
		s.logger.Info("already connected, disregarding connect")
		return nil
	}
	if s.reconnecting.Load() {
		// A reconnect cycle already owns the dial path; a second concurrent
		// connectOnce could install two connections.
		s.mu.Unlock()
		s.logger.Info("reconnect in progress, disregarding connect")
		return nil
	}
	s.status = StatusConnecting
	s.mu.Unlock()

	err := s.connectOnce(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuthorizationFailed):
		s.setStatus(StatusDisconnected)
		s.logger.Error("node rejected credentials, not retrying", "error", err)
		return err
	default:
		s.logger.Warn("connect failed, scheduling reconnect", "error", err)
		s.scheduleReconnect()
		return nil
	}
}

// connectOnce performs a single handshake attempt and, on success, installs
// the connection, starts the listener, replays buffered commands, and
// negotiates resume.
func (s *Session) connectOnce(ctx context.Context) error {
	s.mu.Lock()
	canResume := s.canResume
	key := s.cfg.ResumeKey
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", s.cfg.Password)
	header.Set("Num-Shards", strconv.Itoa(s.cfg.ShardCount))
	header.Set("User-Id", s.cfg.UserID)
	if canResume {
		header.Set("Resume-Key", key)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: handshake status %d", ErrAuthorizationFailed, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.cfg.URL(), err)
	}

	resumed := strings.EqualFold(resp.Header.Get("Session-Resumed"), "true")
	if resumed && !canResume {
		// The node restored session state this client never asked for.
		// Replaying the queue against unknown state is worse than losing it.
		cleared := s.queue.Len()
		conn.Close()
		s.queue.Clear()
		return fmt.Errorf("%w (cleared %d buffered commands)", ErrSessionClosed, cleared)
	}
	if canResume && !resumed {
		// The node let the server-side session lapse. Buffered commands
		// assume state the fresh session does not have, and resume must be
		// negotiated again before the session can buffer for the next outage.
		cleared := s.queue.Len()
		s.queue.Clear()
		s.mu.Lock()
		s.canResume = false
		s.mu.Unlock()
		canResume = false
		s.logger.Warn("session not resumed by node, starting fresh", "cleared", cleared)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.status = StatusConnected
	s.sessionResumed = resumed
	gen := s.listenerGen.Add(1)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.listen(conn, gen)

	if resumed {
		s.logger.Info("session resumed", "resume_key", key)
	}

	s.flushQueue()

	if s.cfg.resumeEnabled() && !canResume {
		cmd := lavalink.NewConfigureResuming(key, int(s.cfg.ResumeTimeout/time.Second))
		data, _ := json.Marshal(cmd)
		if err := s.transmit(data); err != nil {
			s.logger.Warn("failed to configure resuming", "error", err)
		} else {
			s.mu.Lock()
			s.canResume = true
			s.mu.Unlock()
		}
	}

	s.logger.Info("connected", "url", s.cfg.URL(), "resumed", resumed)
	return nil
}

// Send marshals payload and transmits it. While disconnected the payload is
// buffered when resume is enabled, and dropped otherwise; neither case is an
// error. Sending on a closed session returns ErrClosed.
func (s *Session) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	closed := s.closed
	status := s.status
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if status == StatusConnected {
		if err := s.transmit(data); err == nil {
			return nil
		}
		// Write failed; the listener will notice the closure. Fall through
		// to the disconnected path.
	}

	if s.cfg.resumeEnabled() {
		s.queue.Enqueue(data)
		s.logger.Debug("buffered command while disconnected", "queued", s.queue.Len())
		return nil
	}

	s.logger.Warn("dropping command: not connected and resume disabled")
	return nil
}

// transmit writes raw bytes on the single serialized write path.
func (s *Session) transmit(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// flushQueue replays buffered commands in FIFO order, skipping stale ones.
func (s *Session) flushQueue() {
	payloads := s.queue.DrainAll()
	for i, data := range payloads {
		if err := s.transmit(data); err != nil {
			s.logger.Warn("replay aborted, connection lost again",
				"replayed", i,
				"remaining", len(payloads)-i,
				"error", err,
			)
			return
		}
	}
	if len(payloads) > 0 {
		s.logger.Info("replayed buffered commands", "count", len(payloads))
	}
}

// listen reads frames until the connection drops. Exactly one closure is
// converted into one reconnect cycle; a superseded listener does nothing.
func (s *Session) listen(conn *websocket.Conn, gen int64) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			if s.listenerGen.Load() != gen {
				return
			}
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.status = StatusConnecting
			s.conn = nil
			s.mu.Unlock()

			s.logger.Warn("connection closed", "error", err)
			s.scheduleReconnect()
			return
		}

		if s.listenerGen.Load() != gen {
			return
		}

		select {
		case s.frames <- InboundFrame{Data: data, ReceivedAt: receivedAt}:
		case <-s.done:
			return
		default:
			s.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// scheduleReconnect starts at most one reconnect cycle per closure.
func (s *Session) scheduleReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go s.reconnectLoop()
}

// reconnectLoop retries until connected, closed, or rejected for bad
// credentials. There is no attempt ceiling: the audio session is long-lived
// and eventual recovery beats failing fast.
func (s *Session) reconnectLoop() {
	defer s.reconnecting.Store(false)

	for attempt := 0; ; attempt++ {
		delay := s.reconnectDelay(attempt)
		s.logger.Info("retrying connection", "attempt", attempt+1, "delay", delay)

		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.status = StatusConnecting
		s.mu.Unlock()

		err := s.connectOnce(context.Background())
		if err == nil {
			return
		}
		if errors.Is(err, ErrAuthorizationFailed) {
			s.setStatus(StatusDisconnected)
			s.logger.Error("node rejected credentials, giving up", "error", err)
			return
		}
		s.logger.Warn("reconnect failed", "attempt", attempt+1, "error", err)
	}
}

// reconnectDelay applies the resume probe heuristic for the first retries of
// an outage, then falls back to exponential backoff.
func (s *Session) reconnectDelay(attempt int) time.Duration {
	if s.cfg.resumeEnabled() && attempt < resumeProbeRetries {
		if s.cfg.ResumeTimeout > resumeProbeCeiling {
			return resumeProbeFlat
		}
		d := s.cfg.ResumeTimeout/2 - resumeProbeMargin
		if d < s.cfg.BackoffBase {
			d = s.cfg.BackoffBase
		}
		return d
	}
	return s.backoff.NextDelay()
}

// HandleReady records the node-assigned session id once the node confirms it
// is serving. Backoff resets here rather than after the handshake, so a node
// that accepts connections but drops them before serving keeps escalating
// delays.
func (s *Session) HandleReady(sessionID string, resumed bool) {
	s.mu.Lock()
	s.status = StatusConnected
	s.sessionID = sessionID
	s.mu.Unlock()

	s.backoff.Reset()
	s.logger.Info("node ready", "session_id", sessionID, "resumed", resumed)
}

// Close shuts the session down permanently. In-flight sends may be dropped;
// subsequent Send calls return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.status = StatusDisconnected
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	s.wg.Wait()
	close(s.frames)

	s.logger.Info("session closed")
	return nil
}

// Frames returns the inbound frame stream consumed by the events router. The
// channel closes when the session closes.
func (s *Session) Frames() <-chan InboundFrame {
	return s.frames
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SessionID returns the node-assigned session id, empty before ready.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// CanResume reports whether the node has acknowledged resume configuration.
func (s *Session) CanResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canResume
}

// Resumed reports whether the last connect resumed a prior session.
func (s *Session) Resumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionResumed
}

// ResumeKey returns the resume key in use, empty when resume is disabled.
func (s *Session) ResumeKey() string {
	if !s.cfg.resumeEnabled() {
		return ""
	}
	return s.cfg.ResumeKey
}

// QueueStats reports the buffered-command queue depth and drop count.
func (s *Session) QueueStats() (buffered int, dropped int64) {
	return s.queue.Len(), s.queue.Dropped()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
