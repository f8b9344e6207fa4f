package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockNode is a scriptable Lavalink-like WebSocket server.
type mockNode struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	authPassword string // when set, reject other Authorization values with 401
	failFirst    int    // respond 500 to the first n handshake attempts
	resumeAlways bool   // always claim Session-Resumed: true

	mu       sync.Mutex
	attempts int
	headers  []http.Header
	conns    []*websocket.Conn
	received [][]byte
}

func newMockNode(t *testing.T) *mockNode {
	n := &mockNode{
		t: t,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *mockNode) handle(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	n.attempts++
	attempt := n.attempts
	n.headers = append(n.headers, r.Header.Clone())
	n.mu.Unlock()

	if n.authPassword != "" && r.Header.Get("Authorization") != n.authPassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if attempt <= n.failFirst {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	respHeader := http.Header{}
	if n.resumeAlways {
		respHeader.Set("Session-Resumed", "true")
	}

	conn, err := n.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return
	}

	n.mu.Lock()
	n.conns = append(n.conns, conn)
	n.mu.Unlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		n.mu.Lock()
		n.received = append(n.received, msg)
		n.mu.Unlock()
	}
}

func (n *mockNode) config() Config {
	u, err := url.Parse(n.srv.URL)
	if err != nil {
		n.t.Fatalf("parse server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return Config{
		Host:        u.Hostname(),
		Port:        port,
		Password:    "secret",
		UserID:      "1234567890",
		ShardCount:  2,
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
	}
}

func (n *mockNode) attemptCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts
}

func (n *mockNode) receivedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.received)
}

func (n *mockNode) receivedAt(i int) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return string(n.received[i])
}

func (n *mockNode) receivedContaining(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, msg := range n.received {
		if strings.Contains(string(msg), substr) {
			count++
		}
	}
	return count
}

func (n *mockNode) conn(i int) *websocket.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[i]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSession_ConnectSendsAuthHeaders(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := s.Status(); got != StatusConnected {
		t.Errorf("Status = %v, want connected", got)
	}

	node.mu.Lock()
	h := node.headers[0]
	node.mu.Unlock()

	if got := h.Get("Authorization"); got != "secret" {
		t.Errorf("Authorization = %q, want secret", got)
	}
	if got := h.Get("Num-Shards"); got != "2" {
		t.Errorf("Num-Shards = %q, want 2", got)
	}
	if got := h.Get("User-Id"); got != "1234567890" {
		t.Errorf("User-Id = %q, want 1234567890", got)
	}
	if h.Get("Resume-Key") != "" {
		t.Error("Resume-Key sent before resume was negotiated")
	}
}

func TestSession_ConnectWhileConnectedIsNoOp(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if got := node.attemptCount(); got != 1 {
		t.Errorf("handshake attempts = %d, want 1", got)
	}
}

func TestSession_AuthorizationFailureNotRetried(t *testing.T) {
	node := newMockNode(t)
	node.authPassword = "other-password"

	s := NewSession(node.config(), nil)
	defer s.Close()

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrAuthorizationFailed) {
		t.Fatalf("Connect error = %v, want ErrAuthorizationFailed", err)
	}
	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("Status = %v, want disconnected", got)
	}

	// Long enough for several backoff periods; no retry may happen.
	time.Sleep(100 * time.Millisecond)
	if got := node.attemptCount(); got != 1 {
		t.Errorf("handshake attempts = %d, want 1 (auth failures never retry)", got)
	}
}

func TestSession_TransientFailureRetried(t *testing.T) {
	node := newMockNode(t)
	node.failFirst = 2

	s := NewSession(node.config(), nil)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error for transient failure: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.Status() == StatusConnected
	}, "session to connect after transient failures")

	if got := node.attemptCount(); got != 3 {
		t.Errorf("handshake attempts = %d, want 3", got)
	}
}

func TestSession_ReconnectOnServerClose(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	node.conn(0).Close()

	waitFor(t, 2*time.Second, func() bool {
		return node.attemptCount() == 2 && s.Status() == StatusConnected
	}, "session to reconnect after server close")

	// Exactly one reconnect cycle: attempts must stay at 2.
	time.Sleep(150 * time.Millisecond)
	if got := node.attemptCount(); got != 2 {
		t.Errorf("handshake attempts = %d, want 2 (one reconnect per closure)", got)
	}

	// Exactly one live listener: a frame from the new connection arrives once.
	if err := node.conn(1).WriteMessage(websocket.TextMessage, []byte(`{"op":"stats"}`)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	select {
	case frame := <-s.Frames():
		if !strings.Contains(string(frame.Data), "stats") {
			t.Errorf("frame = %q, want stats op", frame.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered after reconnect")
	}

	select {
	case frame := <-s.Frames():
		t.Fatalf("duplicate frame delivered: %q", frame.Data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_BufferedCommandsReplayedThenResumeConfigured(t *testing.T) {
	node := newMockNode(t)
	cfg := node.config()
	cfg.ResumeTimeout = 60 * time.Second
	cfg.PayloadTimeout = 10 * time.Second

	s := NewSession(cfg, nil)
	defer s.Close()

	// Disconnected with resume enabled: sends are buffered, not errors.
	if err := s.Send(map[string]string{"op": "pause", "guildId": "1"}); err != nil {
		t.Fatalf("Send while disconnected: %v", err)
	}
	if err := s.Send(map[string]string{"op": "stop", "guildId": "1"}); err != nil {
		t.Fatalf("Send while disconnected: %v", err)
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return node.receivedCount() >= 3
	}, "replayed commands plus configureResuming")

	if got := node.receivedAt(0); !strings.Contains(got, `"pause"`) {
		t.Errorf("first replayed = %s, want the pause command (FIFO order)", got)
	}
	if got := node.receivedAt(1); !strings.Contains(got, `"stop"`) {
		t.Errorf("second replayed = %s, want the stop command", got)
	}
	if got := node.receivedAt(2); !strings.Contains(got, "configureResuming") {
		t.Errorf("third payload = %s, want configureResuming", got)
	}

	waitFor(t, time.Second, s.CanResume, "CanResume after configure round trip")
	if s.ResumeKey() == "" {
		t.Error("ResumeKey empty with resume enabled, want generated key")
	}
}

func TestSession_UnexpectedResumeClearsQueue(t *testing.T) {
	node := newMockNode(t)
	node.resumeAlways = true

	cfg := node.config()
	cfg.ResumeTimeout = 100 * time.Millisecond

	s := NewSession(cfg, nil)
	defer s.Close()

	if err := s.Send(map[string]string{"op": "stop", "guildId": "1"}); err != nil {
		t.Fatalf("Send while disconnected: %v", err)
	}
	if buffered, _ := s.QueueStats(); buffered != 1 {
		t.Fatalf("buffered = %d before connect, want 1", buffered)
	}

	// The node claims a resumed session the client never requested. The
	// handshake is rejected and the buffered queue cleared.
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		buffered, dropped := s.QueueStats()
		return buffered == 0 && dropped >= 1
	}, "queue cleared on resume mismatch")

	if s.Status() == StatusConnected {
		t.Error("session connected despite resume mismatch")
	}
}

// failResumeSession negotiates resume, drops the connection, buffers one
// pause command, and reconnects against a node that never honors resume.
func failResumeSession(t *testing.T, node *mockNode) *Session {
	t.Helper()

	cfg := node.config()
	// Short enough that the probe delay clamps to the backoff base; the base
	// leaves room to buffer a command before the reconnect fires.
	cfg.ResumeTimeout = 100 * time.Millisecond
	cfg.BackoffBase = 50 * time.Millisecond
	cfg.BackoffMax = 100 * time.Millisecond

	s := NewSession(cfg, nil)
	t.Cleanup(func() { s.Close() })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, time.Second, s.CanResume, "resume negotiated on first connect")

	node.conn(0).Close()
	waitFor(t, time.Second, func() bool {
		return s.Status() != StatusConnected
	}, "closure noticed")

	if err := s.Send(map[string]string{"op": "pause", "guildId": "g1"}); err != nil {
		t.Fatalf("Send while disconnected: %v", err)
	}
	if buffered, _ := s.QueueStats(); buffered != 1 {
		t.Fatalf("buffered = %d before reconnect, want 1", buffered)
	}

	waitFor(t, 2*time.Second, func() bool {
		return node.attemptCount() == 2 && s.Status() == StatusConnected
	}, "reconnect after server close")

	return s
}

func TestSession_FailedResumeClearsQueue(t *testing.T) {
	node := newMockNode(t)
	s := failResumeSession(t, node)

	// The reconnect handshake carried the resume key, but the node let the
	// session lapse: the buffer targets state the fresh session lacks.
	node.mu.Lock()
	resumeKey := node.headers[1].Get("Resume-Key")
	node.mu.Unlock()
	if resumeKey == "" {
		t.Error("Resume-Key missing on reconnect handshake")
	}

	waitFor(t, time.Second, func() bool {
		buffered, dropped := s.QueueStats()
		return buffered == 0 && dropped >= 1
	}, "queue cleared after failed resume")

	time.Sleep(100 * time.Millisecond)
	if got := node.receivedContaining(`"pause"`); got != 0 {
		t.Errorf("buffered command replayed %d times against a fresh session, want 0", got)
	}
}

func TestSession_FailedResumeRenegotiates(t *testing.T) {
	node := newMockNode(t)
	s := failResumeSession(t, node)

	// The fresh server-side session has no resume key configured, so the
	// configure round trip must run again.
	waitFor(t, time.Second, func() bool {
		return node.receivedContaining("configureResuming") == 2
	}, "configureResuming re-sent after failed resume")

	waitFor(t, time.Second, s.CanResume, "resume renegotiated")
}

func TestSession_ConnectDuringReconnectIsNoOp(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)
	defer s.Close()

	s.reconnecting.Store(true)
	defer s.reconnecting.Store(false)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect during reconnect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := node.attemptCount(); got != 0 {
		t.Errorf("handshake attempts = %d, want 0 (reconnect cycle owns the dial path)", got)
	}
}

func TestSession_SendWithoutResumeDropsSilently(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)
	defer s.Close()

	if err := s.Send(map[string]string{"op": "stop"}); err != nil {
		t.Fatalf("Send while disconnected without resume: %v", err)
	}
	if buffered, _ := s.QueueStats(); buffered != 0 {
		t.Errorf("buffered = %d, want 0 (resume disabled drops payloads)", buffered)
	}
}

func TestSession_SendAfterClose(t *testing.T) {
	node := newMockNode(t)
	s := NewSession(node.config(), nil)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Send(map[string]string{"op": "stop"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}

func TestSession_ReconnectDelayHeuristic(t *testing.T) {
	cfg := Config{
		Host:        "localhost",
		Password:    "secret",
		UserID:      "1",
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	}

	t.Run("resume window under ceiling", func(t *testing.T) {
		c := cfg
		c.ResumeTimeout = 60 * time.Second
		s := NewSession(c, nil)
		// Half the window minus the latency margin for the first two tries.
		want := 28 * time.Second
		if d := s.reconnectDelay(0); d != want {
			t.Errorf("delay(0) = %v, want %v", d, want)
		}
		if d := s.reconnectDelay(1); d != want {
			t.Errorf("delay(1) = %v, want %v", d, want)
		}
		// Third retry falls back to backoff.
		if d := s.reconnectDelay(2); d != time.Second {
			t.Errorf("delay(2) = %v, want backoff base 1s", d)
		}
	})

	t.Run("resume window over ceiling uses flat probe", func(t *testing.T) {
		c := cfg
		c.ResumeTimeout = 120 * time.Second
		s := NewSession(c, nil)
		if d := s.reconnectDelay(0); d != 30*time.Second {
			t.Errorf("delay(0) = %v, want flat 30s", d)
		}
	})

	t.Run("no resume uses backoff immediately", func(t *testing.T) {
		s := NewSession(cfg, nil)
		if d := s.reconnectDelay(0); d != time.Second {
			t.Errorf("delay(0) = %v, want backoff base 1s", d)
		}
	})
}
