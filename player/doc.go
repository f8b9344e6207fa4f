// Package player holds the per-guild playback state fed by the events
// router, and issues playback commands through the owning session.
package player
