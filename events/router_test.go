package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/audiolink/audiolink/connection"
	"github.com/audiolink/audiolink/lavalink"
)

type fakeSession struct {
	mu        sync.Mutex
	readyID   string
	resumed   bool
	readyHits int
}

func (s *fakeSession) HandleReady(sessionID string, resumed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyID = sessionID
	s.resumed = resumed
	s.readyHits++
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []string
}

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePlayer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePlayer) HandlePlayerUpdate(state lavalink.PlayerState) {
	p.record(fmt.Sprintf("update:%d", state.Position))
}
func (p *fakePlayer) HandleTrackStart(ev lavalink.TrackStartPayload) { p.record("start:" + ev.Track) }
func (p *fakePlayer) HandleTrackEnd(ev lavalink.TrackEndPayload)    { p.record("end:" + ev.Reason) }
func (p *fakePlayer) HandleTrackException(ev lavalink.TrackExceptionPayload) {
	p.record("exception:" + ev.Exception.Message)
}
func (p *fakePlayer) HandleTrackStuck(ev lavalink.TrackStuckPayload) { p.record("stuck") }
func (p *fakePlayer) HandleVoiceSocketClosed(ev lavalink.WebSocketClosedPayload) {
	p.record(fmt.Sprintf("voiceclosed:%d", ev.Code))
}

type fakeProvider struct {
	mu      sync.Mutex
	players map[string]*fakePlayer
}

func newFakeProvider(guilds ...string) *fakeProvider {
	p := &fakeProvider{players: make(map[string]*fakePlayer)}
	for _, g := range guilds {
		p.players[g] = &fakePlayer{}
	}
	return p
}

func (f *fakeProvider) Player(guildID string) (Player, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[guildID]
	return p, ok
}

func frame(data string) connection.InboundFrame {
	return connection.InboundFrame{Data: []byte(data), ReceivedAt: time.Now()}
}

func startRouter(t *testing.T, session SessionControl, players PlayerProvider) *Router {
	t.Helper()
	input := make(chan connection.InboundFrame)
	r := NewRouter(input, session, players, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r
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

func TestRouter_Ready(t *testing.T) {
	session := &fakeSession{}
	r := startRouter(t, session, newFakeProvider())

	var mu sync.Mutex
	var ready ReadyEvent
	notified := false
	r.AddListener(Listener{OnNodeReady: func(ev ReadyEvent) {
		mu.Lock()
		ready = ev
		notified = true
		mu.Unlock()
	}})

	r.Dispatch(frame(`{"op":"ready","sessionId":"abc123","resumed":true}`))

	session.mu.Lock()
	if session.readyID != "abc123" || !session.resumed || session.readyHits != 1 {
		t.Errorf("session ready = (%q, %v, %d), want (abc123, true, 1)",
			session.readyID, session.resumed, session.readyHits)
	}
	session.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if !notified || ready.SessionID != "abc123" || !ready.Resumed {
		t.Errorf("listener ready = (%v, %+v), want notified with abc123/resumed", notified, ready)
	}
}

func TestRouter_Stats(t *testing.T) {
	r := startRouter(t, &fakeSession{}, newFakeProvider())

	var mu sync.Mutex
	var got lavalink.Stats
	r.AddListener(Listener{OnStatsUpdate: func(s lavalink.Stats) {
		mu.Lock()
		got = s
		mu.Unlock()
	}})

	r.Dispatch(frame(`{"op":"stats","players":4,"playingPlayers":2,"uptime":123456,` +
		`"memory":{"free":1,"used":2,"allocated":3,"reservable":4},` +
		`"cpu":{"cores":8,"systemLoad":0.25,"lavalinkLoad":0.1}}`))

	mu.Lock()
	defer mu.Unlock()
	if got.Players != 4 || got.PlayingPlayers != 2 || got.CPU.Cores != 8 {
		t.Errorf("stats = %+v, want players 4, playing 2, cores 8", got)
	}
}

func TestRouter_PlayerUpdate(t *testing.T) {
	provider := newFakeProvider("100")
	r := startRouter(t, &fakeSession{}, provider)

	r.Dispatch(frame(`{"op":"playerUpdate","guildId":"100","state":{"time":1,"position":5000,"connected":true,"ping":12}}`))

	player := provider.players["100"]
	waitFor(t, time.Second, func() bool { return player.callCount() == 1 }, "player update delivery")

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.calls[0] != "update:5000" {
		t.Errorf("call = %q, want update:5000", player.calls[0])
	}
}

func TestRouter_PlayerUpdateUnknownGuildDropped(t *testing.T) {
	r := startRouter(t, &fakeSession{}, newFakeProvider())

	r.Dispatch(frame(`{"op":"playerUpdate","guildId":"999","state":{"time":1,"position":1,"connected":true,"ping":1}}`))

	time.Sleep(50 * time.Millisecond)
	stats := r.Stats()
	if stats.DroppedNoPlayer != 1 {
		t.Errorf("DroppedNoPlayer = %d, want 1", stats.DroppedNoPlayer)
	}
	if stats.Routed != 0 {
		t.Errorf("Routed = %d, want 0", stats.Routed)
	}
}

func TestRouter_TrackEndNotifications(t *testing.T) {
	provider := newFakeProvider("100")
	r := startRouter(t, &fakeSession{}, provider)

	var mu sync.Mutex
	var generic []TrackEvent
	var ends []lavalink.TrackEndPayload
	r.AddListener(Listener{
		OnTrackEvent: func(ev TrackEvent) {
			mu.Lock()
			generic = append(generic, ev)
			mu.Unlock()
		},
		OnTrackEnd: func(ev lavalink.TrackEndPayload) {
			mu.Lock()
			ends = append(ends, ev)
			mu.Unlock()
		},
	})

	r.Dispatch(frame(`{"op":"event","type":"TrackEndEvent","guildId":"100","track":"enc","reason":"FINISHED"}`))

	player := provider.players["100"]
	waitFor(t, time.Second, func() bool { return player.callCount() == 1 }, "track end delivery")

	player.mu.Lock()
	if player.calls[0] != "end:FINISHED" {
		t.Errorf("player call = %q, want end:FINISHED", player.calls[0])
	}
	player.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if len(generic) != 1 || generic[0].Type != lavalink.EventTrackEnd || generic[0].GuildID != "100" {
		t.Errorf("generic notifications = %+v, want one TrackEndEvent for guild 100", generic)
	}
	if len(ends) != 1 || ends[0].Reason != "FINISHED" {
		t.Errorf("specific notifications = %+v, want one with reason FINISHED", ends)
	}
}

func TestRouter_BenignVoiceCloseSwallowed(t *testing.T) {
	provider := newFakeProvider("100")
	r := startRouter(t, &fakeSession{}, provider)

	notified := make(chan struct{}, 1)
	r.AddListener(Listener{
		OnVoiceSocketClosed: func(lavalink.WebSocketClosedPayload) { notified <- struct{}{} },
		OnTrackEvent:        func(TrackEvent) { notified <- struct{}{} },
	})

	r.Dispatch(frame(`{"op":"event","type":"WebSocketClosedEvent","guildId":"100","code":4006,"reason":"session invalid","byRemote":true}`))

	time.Sleep(50 * time.Millisecond)
	select {
	case <-notified:
		t.Error("benign close code 4006 produced a notification")
	default:
	}
	if provider.players["100"].callCount() != 0 {
		t.Error("benign close code 4006 reached the player")
	}
}

func TestRouter_VoiceCloseDelivered(t *testing.T) {
	provider := newFakeProvider("100")
	r := startRouter(t, &fakeSession{}, provider)

	r.Dispatch(frame(`{"op":"event","type":"WebSocketClosedEvent","guildId":"100","code":4015,"reason":"server crashed","byRemote":true}`))

	player := provider.players["100"]
	waitFor(t, time.Second, func() bool { return player.callCount() == 1 }, "voice close delivery")

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.calls[0] != "voiceclosed:4015" {
		t.Errorf("call = %q, want voiceclosed:4015", player.calls[0])
	}
}

func TestRouter_UnknownOpAndTypeDropped(t *testing.T) {
	r := startRouter(t, &fakeSession{}, newFakeProvider("100"))

	r.Dispatch(frame(`{"op":"mystery"}`))
	r.Dispatch(frame(`{"op":"event","type":"MysteryEvent","guildId":"100"}`))
	r.Dispatch(frame(`not json`))

	stats := r.Stats()
	if stats.UnknownOps != 1 {
		t.Errorf("UnknownOps = %d, want 1", stats.UnknownOps)
	}
	if stats.UnknownEvents != 1 {
		t.Errorf("UnknownEvents = %d, want 1", stats.UnknownEvents)
	}
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
}

func TestRouter_SameGuildOrderingPreserved(t *testing.T) {
	provider := newFakeProvider("100")
	r := startRouter(t, &fakeSession{}, provider)

	const n = 20
	for i := 0; i < n; i++ {
		r.Dispatch(frame(fmt.Sprintf(
			`{"op":"playerUpdate","guildId":"100","state":{"time":1,"position":%d,"connected":true,"ping":1}}`, i)))
	}

	player := provider.players["100"]
	waitFor(t, 2*time.Second, func() bool { return player.callCount() == n }, "all updates delivered")

	player.mu.Lock()
	defer player.mu.Unlock()
	for i, call := range player.calls {
		if want := fmt.Sprintf("update:%d", i); call != want {
			t.Fatalf("call[%d] = %q, want %q (per-guild order must hold)", i, call, want)
		}
	}
}
