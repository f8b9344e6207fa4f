// Package lavalink defines the wire protocol shared with Lavalink-compatible
// audio nodes: inbound op envelopes, event payloads, outbound commands, and the
// track/playlist/stats models both the WebSocket and REST surfaces exchange.
package lavalink
