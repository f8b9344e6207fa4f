package lavalink

// Outbound control frames. Every command carries its op tag so payloads can be
// marshaled directly; playback commands additionally carry the guild they
// target.

// ConfigureResuming asks the node to keep the session alive for Timeout
// seconds after a disconnect, keyed by Key.
type ConfigureResuming struct {
	Op      string `json:"op"`
	Key     string `json:"key"`
	Timeout int    `json:"timeout"`
}

// NewConfigureResuming builds a configureResuming command.
func NewConfigureResuming(key string, timeoutSeconds int) ConfigureResuming {
	return ConfigureResuming{Op: "configureResuming", Key: key, Timeout: timeoutSeconds}
}

// Play starts playback of an encoded track.
type Play struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	Track     string `json:"track"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	Volume    int    `json:"volume,omitempty"`
	NoReplace bool   `json:"noReplace,omitempty"`
}

// NewPlay builds a play command for a guild.
func NewPlay(guildID, track string) Play {
	return Play{Op: "play", GuildID: guildID, Track: track}
}

// Pause pauses or unpauses playback.
type Pause struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Pause   bool   `json:"pause"`
}

// NewPause builds a pause command for a guild.
func NewPause(guildID string, pause bool) Pause {
	return Pause{Op: "pause", GuildID: guildID, Pause: pause}
}

// Stop stops the current track.
type Stop struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

// NewStop builds a stop command for a guild.
func NewStop(guildID string) Stop {
	return Stop{Op: "stop", GuildID: guildID}
}

// Seek moves playback to a position in milliseconds.
type Seek struct {
	Op       string `json:"op"`
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

// NewSeek builds a seek command for a guild.
func NewSeek(guildID string, positionMs int64) Seek {
	return Seek{Op: "seek", GuildID: guildID, Position: positionMs}
}

// Volume sets playback volume (0-1000).
type Volume struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

// NewVolume builds a volume command for a guild.
func NewVolume(guildID string, volume int) Volume {
	return Volume{Op: "volume", GuildID: guildID, Volume: volume}
}

// VoiceUpdate forwards Discord voice server credentials to the node. The
// session ID and event blob originate from the voice gateway collaborator.
type VoiceUpdate struct {
	Op        string         `json:"op"`
	GuildID   string         `json:"guildId"`
	SessionID string         `json:"sessionId"`
	Event     map[string]any `json:"event"`
}

// NewVoiceUpdate builds a voiceUpdate command for a guild.
func NewVoiceUpdate(guildID, sessionID string, event map[string]any) VoiceUpdate {
	return VoiceUpdate{Op: "voiceUpdate", GuildID: guildID, SessionID: sessionID, Event: event}
}

// Destroy tears down the node-side player for a guild.
type Destroy struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

// NewDestroy builds a destroy command for a guild.
func NewDestroy(guildID string) Destroy {
	return Destroy{Op: "destroy", GuildID: guildID}
}
