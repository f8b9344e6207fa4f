package player

import (
	"log/slog"
	"sync"

	"github.com/audiolink/audiolink/events"
	"github.com/audiolink/audiolink/lavalink"
)

// Sender is the outbound command path of the owning session. Commands sent
// during an outage are buffered or dropped by the session, never surfaced as
// errors here.
type Sender interface {
	Send(payload any) error
}

// Player tracks playback state for one guild on one node. The events router
// invokes its handlers sequentially per guild, so handler bodies do not race
// each other; the mutex guards against concurrent command callers.
type Player struct {
	guildID string
	session Sender
	logger  *slog.Logger

	mu        sync.Mutex
	current   string // encoded track, empty when idle
	queue     []string
	autoPlay  bool
	paused    bool
	volume    int
	state     lavalink.PlayerState
	destroyed bool
}

var _ events.Player = (*Player)(nil)

// New creates a player for a guild. With autoPlay enabled the player starts
// the next queued track when the current one finishes.
func New(guildID string, session Sender, autoPlay bool, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		guildID:  guildID,
		session:  session,
		logger:   logger.With("guild_id", guildID),
		autoPlay: autoPlay,
		volume:   100,
	}
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string { return p.guildID }

// Play starts an encoded track immediately.
func (p *Player) Play(track string) error {
	p.mu.Lock()
	p.current = track
	p.mu.Unlock()
	return p.session.Send(lavalink.NewPlay(p.guildID, track))
}

// Enqueue appends a track; when idle with auto-play enabled it starts at
// once.
func (p *Player) Enqueue(track string) error {
	p.mu.Lock()
	if p.autoPlay && p.current == "" {
		p.current = track
		p.mu.Unlock()
		return p.session.Send(lavalink.NewPlay(p.guildID, track))
	}
	p.queue = append(p.queue, track)
	p.mu.Unlock()
	return nil
}

// Pause pauses or resumes playback.
func (p *Player) Pause(pause bool) error {
	p.mu.Lock()
	p.paused = pause
	p.mu.Unlock()
	return p.session.Send(lavalink.NewPause(p.guildID, pause))
}

// Stop stops the current track without touching the queue.
func (p *Player) Stop() error {
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
	return p.session.Send(lavalink.NewStop(p.guildID))
}

// Seek moves playback to a position in milliseconds.
func (p *Player) Seek(positionMs int64) error {
	return p.session.Send(lavalink.NewSeek(p.guildID, positionMs))
}

// SetVolume sets playback volume.
func (p *Player) SetVolume(volume int) error {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return p.session.Send(lavalink.NewVolume(p.guildID, volume))
}

// VoiceUpdate forwards voice server credentials from the voice gateway.
func (p *Player) VoiceUpdate(sessionID string, event map[string]any) error {
	return p.session.Send(lavalink.NewVoiceUpdate(p.guildID, sessionID, event))
}

// Destroy tears down the node-side player. The player accepts no further
// commands afterwards.
func (p *Player) Destroy() error {
	p.mu.Lock()
	p.destroyed = true
	p.current = ""
	p.queue = nil
	p.mu.Unlock()
	return p.session.Send(lavalink.NewDestroy(p.guildID))
}

// Current returns the encoded track being played, empty when idle.
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// QueueLen returns the number of queued tracks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// State returns the last state snapshot pushed by the node.
func (p *Player) State() lavalink.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// HandlePlayerUpdate records the periodic state snapshot.
func (p *Player) HandlePlayerUpdate(state lavalink.PlayerState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// HandleTrackStart records the now-playing track.
func (p *Player) HandleTrackStart(ev lavalink.TrackStartPayload) {
	p.mu.Lock()
	p.current = ev.Track
	p.mu.Unlock()
	p.logger.Debug("track started")
}

// HandleTrackEnd clears the current track and auto-advances. A REPLACED end
// means another play superseded this track; the new one is already playing
// and must not be clobbered.
func (p *Player) HandleTrackEnd(ev lavalink.TrackEndPayload) {
	if ev.Reason == lavalink.EndReasonReplaced {
		return
	}

	p.mu.Lock()
	p.current = ""
	if p.destroyed || !p.autoPlay || len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.current = next
	p.mu.Unlock()

	if err := p.session.Send(lavalink.NewPlay(p.guildID, next)); err != nil {
		p.logger.Warn("auto-advance failed", "error", err)
	}
}

// HandleTrackException logs the failure; the node already stopped the track.
func (p *Player) HandleTrackException(ev lavalink.TrackExceptionPayload) {
	p.logger.Warn("track raised an exception",
		"message", ev.Exception.Message,
		"severity", ev.Exception.Severity,
	)
}

// HandleTrackStuck logs the stall.
func (p *Player) HandleTrackStuck(ev lavalink.TrackStuckPayload) {
	p.logger.Warn("track stuck", "threshold_ms", ev.ThresholdMs)
}

// HandleVoiceSocketClosed records that the node lost its voice connection
// for this guild. Reconnecting it is the voice gateway's job.
func (p *Player) HandleVoiceSocketClosed(ev lavalink.WebSocketClosedPayload) {
	p.mu.Lock()
	p.state.Connected = false
	p.mu.Unlock()
	p.logger.Warn("voice socket closed",
		"code", ev.Code,
		"reason", ev.Reason,
		"by_remote", ev.ByRemote,
	)
}
