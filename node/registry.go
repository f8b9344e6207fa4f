package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/audiolink/audiolink/events"
)

var (
	// ErrNodeExists is returned when adding a node under a name already in use.
	ErrNodeExists = errors.New("node already registered")

	// ErrNodeNotFound is returned when looking up an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoNodes is returned by BestNode when no node is connected.
	ErrNoNodes = errors.New("no connected nodes available")

	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

// Registry holds every node this process talks to.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	nodes     map[string]*Node
	listeners []events.Listener
	closed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		nodes:  make(map[string]*Node),
	}
}

// AddListener registers callbacks applied to every node, current and future.
// Listeners must be added before nodes connect.
func (r *Registry) AddListener(l events.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, l)
	for _, n := range r.nodes {
		n.AddListener(l)
	}
}

// AddNode registers a node without connecting it. Call Connect on the
// registry (or the node) afterwards.
func (r *Registry) AddNode(opts Options) (*Node, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("node name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if _, ok := r.nodes[opts.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, opts.Name)
	}

	n := newNode(opts, r.logger)
	for _, l := range r.listeners {
		n.AddListener(l)
	}
	r.nodes[opts.Name] = n

	r.logger.Info("node registered",
		"node_name", opts.Name,
		"host", opts.Connection.Host,
	)
	return n, nil
}

// Node returns the named node.
func (r *Registry) Node(name string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return n, nil
}

// Nodes returns all registered nodes.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// RemoveNode closes the named node and drops it from the registry.
func (r *Registry) RemoveNode(ctx context.Context, name string) error {
	r.mu.Lock()
	n, ok := r.nodes[name]
	if ok {
		delete(r.nodes, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	r.logger.Info("node removed", "node_name", name)
	return n.Close(ctx)
}

// Connect dials every registered node concurrently. The first hard failure
// (bad credentials, cancelled context) aborts and is returned; transient
// dial failures are retried by each session on its own.
func (r *Registry) Connect(ctx context.Context) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRegistryClosed
	}
	nodes := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			if err := n.Connect(ctx); err != nil {
				return fmt.Errorf("node %s: %w", n.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// BestNode returns the connected node with the lowest load penalty.
func (r *Registry) BestNode() (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Node
	bestScore := infPenalty
	for _, n := range r.nodes {
		score := n.penalty()
		if best == nil || score < bestScore {
			best = n
			bestScore = score
		}
	}
	if best == nil || bestScore == infPenalty {
		return nil, ErrNoNodes
	}
	return best, nil
}

// CreatePlayer binds a player for the guild to the least-loaded node.
func (r *Registry) CreatePlayer(guildID string) (*Player, error) {
	n, err := r.BestNode()
	if err != nil {
		return nil, err
	}
	return n.CreatePlayer(guildID), nil
}

// Player searches every node for the guild's player.
func (r *Registry) Player(guildID string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.nodes {
		if p, ok := n.Player(guildID); ok {
			return p, true
		}
	}
	return nil, false
}

// Close shuts down every node. The registry cannot be reused afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	nodes := make([]*Node, 0, len(r.nodes))
	for name, n := range r.nodes {
		nodes = append(nodes, n)
		delete(r.nodes, name)
	}
	r.mu.Unlock()

	var firstErr error
	for _, n := range nodes {
		if err := n.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.logger.Info("node registry closed", "nodes", len(nodes))
	return firstErr
}
