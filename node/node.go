package node

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolink/audiolink/connection"
	"github.com/audiolink/audiolink/events"
	"github.com/audiolink/audiolink/lavalink"
	"github.com/audiolink/audiolink/player"
)

// Options configures a single node.
type Options struct {
	// Name identifies the node within the registry. Required and unique.
	Name string

	// Connection holds the websocket endpoint and tuning for the node.
	Connection connection.Config

	// AutoPlay enables automatic queue advancement on players created
	// through this node.
	AutoPlay bool
}

// Node bundles one session with its router and the players bound to it.
// Players are created and destroyed explicitly; a node never creates one
// on its own.
type Node struct {
	name     string
	autoPlay bool
	session  *connection.Session
	router   *events.Router
	logger   *slog.Logger

	mu      sync.RWMutex
	players map[string]*player.Player
	stats   *lavalink.Stats
	statsAt time.Time
}

func newNode(opts Options, logger *slog.Logger) *Node {
	session := connection.NewSession(opts.Connection, logger)

	n := &Node{
		name:     opts.Name,
		autoPlay: opts.AutoPlay,
		session:  session,
		logger:   logger.With("node_name", opts.Name),
		players:  make(map[string]*player.Player),
	}
	n.router = events.NewRouter(session.Frames(), session, (*nodePlayers)(n), n.logger)
	n.router.AddListener(events.Listener{OnStatsUpdate: n.recordStats})
	return n
}

// Name returns the node's registry identifier.
func (n *Node) Name() string { return n.name }

// Session exposes the node's connection session.
func (n *Node) Session() *connection.Session { return n.session }

// Status reports the session status.
func (n *Node) Status() connection.Status { return n.session.Status() }

// AddListener registers callbacks for frames routed through this node.
// Must be called before the node connects.
func (n *Node) AddListener(l events.Listener) { n.router.AddListener(l) }

// Connect starts the router and dials the node.
func (n *Node) Connect(ctx context.Context) error {
	if err := n.router.Start(ctx); err != nil {
		return err
	}
	return n.session.Connect(ctx)
}

// Close tears down every player, the session, and the router.
func (n *Node) Close(ctx context.Context) error {
	n.mu.Lock()
	for guildID, p := range n.players {
		if err := p.Destroy(); err != nil {
			n.logger.Warn("player destroy failed", "guild_id", guildID, "error", err)
		}
		delete(n.players, guildID)
	}
	n.mu.Unlock()

	err := n.session.Close()
	if stopErr := n.router.Stop(ctx); err == nil {
		err = stopErr
	}
	return err
}

// CreatePlayer creates a player for the guild on this node. Creating a
// player for a guild that already has one returns the existing player.
func (n *Node) CreatePlayer(guildID string) *Player {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.players[guildID]; ok {
		return &Player{Player: p, node: n}
	}
	p := player.New(guildID, n.session, n.autoPlay, n.logger)
	n.players[guildID] = p
	n.logger.Info("player created", "guild_id", guildID)
	return &Player{Player: p, node: n}
}

// Player returns the player bound to the guild, if any.
func (n *Node) Player(guildID string) (*Player, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.players[guildID]
	if !ok {
		return nil, false
	}
	return &Player{Player: p, node: n}, true
}

// RemovePlayer destroys the guild's player and unbinds it from the node.
func (n *Node) RemovePlayer(guildID string) error {
	n.mu.Lock()
	p, ok := n.players[guildID]
	if ok {
		delete(n.players, guildID)
	}
	n.mu.Unlock()

	if !ok {
		return nil
	}
	return p.Destroy()
}

// PlayerCount reports the number of players bound to this node.
func (n *Node) PlayerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.players)
}

// Stats returns the last stats snapshot received from the node.
func (n *Node) Stats() (lavalink.Stats, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stats == nil {
		return lavalink.Stats{}, false
	}
	return *n.stats, true
}

func (n *Node) recordStats(s lavalink.Stats) {
	n.mu.Lock()
	n.stats = &s
	n.statsAt = time.Now()
	n.mu.Unlock()
}

// penalty scores the node's current load. Lower is better. Disconnected
// nodes score +Inf so BestNode never picks them.
func (n *Node) penalty() float64 {
	if n.session.Status() != connection.StatusConnected {
		return infPenalty
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stats == nil {
		return 0
	}
	return statsPenalty(*n.stats)
}

// nodePlayers adapts a Node to the router's PlayerProvider without
// colliding with the public Player accessor.
type nodePlayers Node

func (np *nodePlayers) Player(guildID string) (events.Player, bool) {
	n := (*Node)(np)
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.players[guildID]
	if !ok {
		return nil, false
	}
	return p, true
}

// Player is a node-bound player handle. Destroying it through the node
// keeps the registry's bookkeeping consistent.
type Player struct {
	*player.Player
	node *Node
}

// Node returns the node this player is bound to.
func (p *Player) Node() *Node { return p.node }

// Destroy tears the player down and removes it from its node.
func (p *Player) Destroy() error {
	return p.node.RemovePlayer(p.GuildID())
}
