// Package connection owns the WebSocket session against a single audio node:
// dialing with auth headers, detecting closures, reconnecting with backoff,
// negotiating session resume, and replaying commands buffered while offline.
//
// One listener goroutine per session reads inbound frames and hands them to
// the events router through the Frames channel. Writes from any caller are
// serialized on a single write path.
package connection
