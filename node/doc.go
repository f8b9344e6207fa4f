// Package node tracks the set of audio nodes a process talks to. The
// registry owns one session, router, and player map per node, with explicit
// create/destroy lifecycle, and picks the least-loaded node for new players
// from each node's last stats snapshot.
package node
