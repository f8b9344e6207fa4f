package events

import (
	"github.com/audiolink/audiolink/lavalink"
)

// SessionControl is the slice of the connection session the router drives.
type SessionControl interface {
	HandleReady(sessionID string, resumed bool)
}

// Player receives the events routed to a single guild. Handlers for one
// guild are never invoked concurrently.
type Player interface {
	HandlePlayerUpdate(state lavalink.PlayerState)
	HandleTrackStart(p lavalink.TrackStartPayload)
	HandleTrackEnd(p lavalink.TrackEndPayload)
	HandleTrackException(p lavalink.TrackExceptionPayload)
	HandleTrackStuck(p lavalink.TrackStuckPayload)
	HandleVoiceSocketClosed(p lavalink.WebSocketClosedPayload)
}

// PlayerProvider resolves the player for a guild. A player may legitimately
// be gone by the time an event for it arrives.
type PlayerProvider interface {
	Player(guildID string) (Player, bool)
}

// ReadyEvent notifies that a node confirmed it is serving this session.
type ReadyEvent struct {
	SessionID string
	Resumed   bool
}

// TrackEvent is the generic notification fired for every track-related event
// alongside its specific one.
type TrackEvent struct {
	Type    lavalink.EventType
	GuildID string
}

// Listener is a set of optional callbacks for process-wide notifications.
// Unset callbacks are skipped. Subscribing to an event kind that does not
// exist here does not compile.
type Listener struct {
	OnNodeReady         func(ReadyEvent)
	OnStatsUpdate       func(lavalink.Stats)
	OnPlayerUpdate      func(guildID string, state lavalink.PlayerState)
	OnTrackEvent        func(TrackEvent)
	OnTrackStart        func(lavalink.TrackStartPayload)
	OnTrackEnd          func(lavalink.TrackEndPayload)
	OnTrackException    func(lavalink.TrackExceptionPayload)
	OnTrackStuck        func(lavalink.TrackStuckPayload)
	OnVoiceSocketClosed func(lavalink.WebSocketClosedPayload)
}

// RouterStats counts routing outcomes.
type RouterStats struct {
	Received        int64
	Routed          int64
	ParseErrors     int64
	UnknownOps      int64
	UnknownEvents   int64
	DroppedNoPlayer int64
}
