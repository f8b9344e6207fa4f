package lavalink

import "encoding/json"

// Op discriminates inbound frames from a node.
type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// EventType discriminates the sub-type of an "event" frame.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// CloseCodeSessionInvalid is sent inside a WebSocketClosedEvent when Discord
// tears down the voice session to renegotiate it server-side (region or codec
// change). The voice gateway reconnects on its own, so the event carries no
// actionable information.
const CloseCodeSessionInvalid = 4006

// Frame is the envelope every inbound message decodes into. Fields beyond Op
// are populated depending on the op; Raw keeps the original bytes for
// sub-type decoding.
type Frame struct {
	Op      Op        `json:"op"`
	GuildID string    `json:"guildId,omitempty"`
	Type    EventType `json:"type,omitempty"`

	// ready
	SessionID string `json:"sessionId,omitempty"`
	Resumed   bool   `json:"resumed,omitempty"`

	// playerUpdate
	State *PlayerState `json:"state,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseFrame decodes a raw frame and retains the original bytes.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	f.Raw = data
	return f, nil
}

// PlayerState is the periodic state snapshot inside a playerUpdate frame.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

// TrackStartPayload is the body of a TrackStartEvent frame.
type TrackStartPayload struct {
	GuildID string `json:"guildId"`
	Track   string `json:"track"`
}

// TrackEndPayload is the body of a TrackEndEvent frame.
type TrackEndPayload struct {
	GuildID string `json:"guildId"`
	Track   string `json:"track"`
	Reason  string `json:"reason"`
}

// EndReasonReplaced indicates the track ended because another play command
// superseded it; auto-advance must not fire in that case.
const EndReasonReplaced = "REPLACED"

// TrackExceptionPayload is the body of a TrackExceptionEvent frame.
type TrackExceptionPayload struct {
	GuildID   string         `json:"guildId"`
	Track     string         `json:"track"`
	Exception TrackException `json:"exception"`
}

// TrackException describes a playback failure reported by the node.
type TrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// TrackStuckPayload is the body of a TrackStuckEvent frame.
type TrackStuckPayload struct {
	GuildID     string `json:"guildId"`
	Track       string `json:"track"`
	ThresholdMs int64  `json:"thresholdMs"`
}

// WebSocketClosedPayload is the body of a WebSocketClosedEvent frame. It
// reports the closure of the node's own voice connection to Discord, not of
// the client websocket this library manages.
type WebSocketClosedPayload struct {
	GuildID  string `json:"guildId"`
	Code     int    `json:"code"`
	Reason   string `json:"reason"`
	ByRemote bool   `json:"byRemote"`
}
