// Package events parses inbound node frames into typed events and routes
// them: ready and stats frames to session-level callbacks and listeners,
// player updates and track events to the per-guild player they belong to.
//
// Dispatch for one guild is sequential; frames for different guilds may be
// handled concurrently. Unknown ops and event types are logged and dropped.
package events
