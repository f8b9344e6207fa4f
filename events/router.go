package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/audiolink/audiolink/connection"
	"github.com/audiolink/audiolink/lavalink"
)

// guildQueueSize bounds the per-guild dispatch queue; a guild whose handler
// wedges drops its own events instead of stalling the router.
const guildQueueSize = 64

// Router consumes the raw frame stream of one session and dispatches typed
// events.
type Router struct {
	logger  *slog.Logger
	input   <-chan connection.InboundFrame
	session SessionControl
	players PlayerProvider

	listenerMu sync.RWMutex
	listeners  []Listener

	// Per-guild serial dispatch queues, created lazily.
	guildMu sync.Mutex
	guilds  map[string]chan func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   RouterStats
}

// NewRouter creates a router for one session's inbound stream.
func NewRouter(input <-chan connection.InboundFrame, session SessionControl, players PlayerProvider, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:  logger,
		input:   input,
		session: session,
		players: players,
		guilds:  make(map[string]chan func()),
	}
}

// AddListener registers process-wide notification callbacks.
func (r *Router) AddListener(l Listener) {
	r.listenerMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenerMu.Unlock()
}

// Start begins routing until the context is cancelled or the input closes.
// Start must be called before any frames are dispatched.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Debug("event router started")
	return nil
}

// Stop shuts the router down, waiting up to ctx for in-flight dispatch.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}
	return nil
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() RouterStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case frame, ok := <-r.input:
			if !ok {
				r.logger.Debug("frame stream closed")
				return
			}
			r.dispatch(frame)
		}
	}
}

// Dispatch parses one frame and routes it, bypassing the input channel.
func (r *Router) Dispatch(frame connection.InboundFrame) {
	r.dispatch(frame)
}

func (r *Router) dispatch(frame connection.InboundFrame) {
	r.count(func(s *RouterStats) { s.Received++ })

	f, err := lavalink.ParseFrame(frame.Data)
	if err != nil {
		r.logger.Warn("failed to parse frame", "error", err)
		r.count(func(s *RouterStats) { s.ParseErrors++ })
		return
	}

	switch f.Op {
	case lavalink.OpReady:
		r.session.HandleReady(f.SessionID, f.Resumed)
		ev := ReadyEvent{SessionID: f.SessionID, Resumed: f.Resumed}
		r.notify(func(l Listener) {
			if l.OnNodeReady != nil {
				l.OnNodeReady(ev)
			}
		})
		r.count(func(s *RouterStats) { s.Routed++ })

	case lavalink.OpStats:
		var stats lavalink.Stats
		if err := json.Unmarshal(f.Raw, &stats); err != nil {
			r.logger.Warn("failed to parse stats frame", "error", err)
			r.count(func(s *RouterStats) { s.ParseErrors++ })
			return
		}
		r.notify(func(l Listener) {
			if l.OnStatsUpdate != nil {
				l.OnStatsUpdate(stats)
			}
		})
		r.count(func(s *RouterStats) { s.Routed++ })

	case lavalink.OpPlayerUpdate:
		if f.State == nil {
			r.logger.Warn("playerUpdate frame without state", "guild_id", f.GuildID)
			r.count(func(s *RouterStats) { s.ParseErrors++ })
			return
		}
		player, ok := r.players.Player(f.GuildID)
		if !ok {
			// The player may have been torn down between event generation
			// and delivery.
			r.logger.Debug("playerUpdate for unknown guild, disregarding", "guild_id", f.GuildID)
			r.count(func(s *RouterStats) { s.DroppedNoPlayer++ })
			return
		}
		state := *f.State
		guildID := f.GuildID
		r.enqueueGuild(guildID, func() {
			player.HandlePlayerUpdate(state)
			r.notify(func(l Listener) {
				if l.OnPlayerUpdate != nil {
					l.OnPlayerUpdate(guildID, state)
				}
			})
		})
		r.count(func(s *RouterStats) { s.Routed++ })

	case lavalink.OpEvent:
		r.dispatchEvent(f)

	default:
		r.logger.Info("unknown op from node, disregarding", "op", string(f.Op))
		r.count(func(s *RouterStats) { s.UnknownOps++ })
	}
}

func (r *Router) dispatchEvent(f lavalink.Frame) {
	player, hasPlayer := r.players.Player(f.GuildID)
	if !hasPlayer {
		r.count(func(s *RouterStats) { s.DroppedNoPlayer++ })
	}

	generic := TrackEvent{Type: f.Type, GuildID: f.GuildID}

	switch f.Type {
	case lavalink.EventTrackStart:
		var p lavalink.TrackStartPayload
		if !r.unmarshalEvent(f, &p) {
			return
		}
		r.enqueueGuild(f.GuildID, func() {
			if hasPlayer {
				player.HandleTrackStart(p)
			}
			r.notifyTrackEvent(generic)
			r.notify(func(l Listener) {
				if l.OnTrackStart != nil {
					l.OnTrackStart(p)
				}
			})
		})

	case lavalink.EventTrackEnd:
		var p lavalink.TrackEndPayload
		if !r.unmarshalEvent(f, &p) {
			return
		}
		r.enqueueGuild(f.GuildID, func() {
			if hasPlayer {
				player.HandleTrackEnd(p)
			}
			r.notifyTrackEvent(generic)
			r.notify(func(l Listener) {
				if l.OnTrackEnd != nil {
					l.OnTrackEnd(p)
				}
			})
		})

	case lavalink.EventTrackException:
		var p lavalink.TrackExceptionPayload
		if !r.unmarshalEvent(f, &p) {
			return
		}
		r.enqueueGuild(f.GuildID, func() {
			if hasPlayer {
				player.HandleTrackException(p)
			}
			r.notifyTrackEvent(generic)
			r.notify(func(l Listener) {
				if l.OnTrackException != nil {
					l.OnTrackException(p)
				}
			})
		})

	case lavalink.EventTrackStuck:
		var p lavalink.TrackStuckPayload
		if !r.unmarshalEvent(f, &p) {
			return
		}
		r.enqueueGuild(f.GuildID, func() {
			if hasPlayer {
				player.HandleTrackStuck(p)
			}
			r.notifyTrackEvent(generic)
			r.notify(func(l Listener) {
				if l.OnTrackStuck != nil {
					l.OnTrackStuck(p)
				}
			})
		})

	case lavalink.EventWebSocketClosed:
		var p lavalink.WebSocketClosedPayload
		if !r.unmarshalEvent(f, &p) {
			return
		}
		if p.Code == lavalink.CloseCodeSessionInvalid {
			// Discord renegotiates the voice session server-side; the voice
			// gateway reconnects on its own. Nothing to tell anyone.
			r.logger.Debug("voice session renegotiated, disregarding", "guild_id", p.GuildID)
			r.count(func(s *RouterStats) { s.Routed++ })
			return
		}
		r.enqueueGuild(f.GuildID, func() {
			if hasPlayer {
				player.HandleVoiceSocketClosed(p)
			}
			r.notifyTrackEvent(generic)
			r.notify(func(l Listener) {
				if l.OnVoiceSocketClosed != nil {
					l.OnVoiceSocketClosed(p)
				}
			})
		})

	default:
		r.logger.Info("unknown event type from node, disregarding", "type", string(f.Type))
		r.count(func(s *RouterStats) { s.UnknownEvents++ })
		return
	}

	r.count(func(s *RouterStats) { s.Routed++ })
}

func (r *Router) unmarshalEvent(f lavalink.Frame, dst any) bool {
	if err := json.Unmarshal(f.Raw, dst); err != nil {
		r.logger.Warn("failed to parse event frame", "type", string(f.Type), "error", err)
		r.count(func(s *RouterStats) { s.ParseErrors++ })
		return false
	}
	return true
}

// enqueueGuild runs fn on the guild's serial dispatch queue so handlers for
// one guild never overlap.
func (r *Router) enqueueGuild(guildID string, fn func()) {
	r.guildMu.Lock()
	ch, ok := r.guilds[guildID]
	if !ok {
		ch = make(chan func(), guildQueueSize)
		r.guilds[guildID] = ch
		r.wg.Add(1)
		go r.guildWorker(ch)
	}
	r.guildMu.Unlock()

	select {
	case ch <- fn:
	default:
		r.logger.Warn("guild dispatch queue full, dropping event", "guild_id", guildID)
	}
}

func (r *Router) guildWorker(ch chan func()) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-ch:
			fn()
		}
	}
}

func (r *Router) notifyTrackEvent(ev TrackEvent) {
	r.notify(func(l Listener) {
		if l.OnTrackEvent != nil {
			l.OnTrackEvent(ev)
		}
	})
}

func (r *Router) notify(fn func(Listener)) {
	r.listenerMu.RLock()
	listeners := r.listeners
	r.listenerMu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

func (r *Router) count(fn func(*RouterStats)) {
	r.statsMu.Lock()
	fn(&r.stats)
	r.statsMu.Unlock()
}
