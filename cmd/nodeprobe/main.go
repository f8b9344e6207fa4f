package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolink/audiolink/config"
	"github.com/audiolink/audiolink/connection"
	"github.com/audiolink/audiolink/database"
	"github.com/audiolink/audiolink/events"
	"github.com/audiolink/audiolink/lavalink"
	"github.com/audiolink/audiolink/node"
	"github.com/audiolink/audiolink/rest"
	"github.com/audiolink/audiolink/statswriter"
	"github.com/audiolink/audiolink/version"
)

func main() {
	configPath := flag.String("config", "configs/nodeprobe.local.yaml", "path to config file")
	identifier := flag.String("identifier", "", "optional track identifier to resolve through the first node")
	healthPort := flag.Int("health-port", 8080, "port for the health endpoint")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting nodeprobe",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"user_id", cfg.Client.UserID,
		"nodes", len(cfg.Nodes),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional stats persistence
	var writer *statswriter.Writer
	if cfg.Stats.Enabled {
		logger.Info("connecting to stats database",
			"host", cfg.Stats.Database.Host,
			"port", cfg.Stats.Database.Port,
			"database", cfg.Stats.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Stats.Database)
		if err != nil {
			logger.Error("failed to connect to stats database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = statswriter.NewWriter(statswriter.Config{
			BatchSize:     cfg.Stats.BatchSize,
			FlushInterval: cfg.Stats.FlushInterval,
			BufferSize:    cfg.Stats.BufferSize,
		}, pool, logger)

		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start stats writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			writer.Stop(shutdownCtx)
		}()
	}

	// Register nodes
	registry := node.NewRegistry(logger)
	for _, nc := range cfg.Nodes {
		n, err := registry.AddNode(node.Options{
			Name:       nc.Name,
			Connection: cfg.ConnectionConfig(nc),
			AutoPlay:   nc.AutoPlay,
		})
		if err != nil {
			logger.Error("failed to register node", "node_name", nc.Name, "error", err)
			os.Exit(1)
		}

		if writer != nil {
			name := nc.Name
			n.AddListener(events.Listener{
				OnStatsUpdate: func(s lavalink.Stats) {
					writer.Record(name, s)
				},
			})
		}
	}

	registry.AddListener(events.Listener{
		OnNodeReady: func(e events.ReadyEvent) {
			logger.Info("node ready", "session_id", e.SessionID, "resumed", e.Resumed)
		},
		OnTrackEvent: func(e events.TrackEvent) {
			logger.Info("track event", "type", e.Type, "guild_id", e.GuildID)
		},
	})

	// Start health server before connecting so startup is observable
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *healthPort),
		Handler: createHealthHandler(registry),
	}

	go func() {
		logger.Info("starting health server", "port", *healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Connect all nodes
	logger.Info("connecting to nodes...")
	if err := registry.Connect(ctx); err != nil {
		logger.Error("failed to connect nodes", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		registry.Close(shutdownCtx)
	}()

	logger.Info("nodes connected", "count", len(registry.Nodes()))

	// Optional REST probe against the first configured node
	if *identifier != "" {
		if err := probeTracks(ctx, cfg, *identifier, logger); err != nil {
			logger.Error("track probe failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("nodeprobe running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", *healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("nodeprobe stopped")
}

// probeTracks resolves one identifier through the first node's REST API and
// logs what came back.
func probeTracks(ctx context.Context, cfg *config.Config, identifier string, logger *slog.Logger) error {
	nc := cfg.Nodes[0]
	client, err := rest.NewClient(
		nc.RestBaseURL(),
		nc.Password,
		rest.WithLogger(logger),
		rest.WithTimeout(cfg.Tuning.RestTimeout),
		rest.WithRetries(cfg.Tuning.RestMaxRetries, time.Second),
	)
	if err != nil {
		return err
	}

	result, err := client.LoadTracks(ctx, identifier)
	if err != nil {
		return err
	}

	logger.Info("tracks resolved",
		"node_name", nc.Name,
		"load_type", result.LoadType,
		"tracks", len(result.Tracks),
	)
	for i, track := range result.Tracks {
		if i >= 5 {
			logger.Info("more tracks omitted", "remaining", len(result.Tracks)-i)
			break
		}
		logger.Info("track",
			"title", track.Info.Title,
			"author", track.Info.Author,
			"length_ms", track.Info.Length,
			"uri", track.Info.URI,
		)
	}
	return nil
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(registry *node.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status string                 `json:"status"`
			Nodes  map[string]interface{} `json:"nodes"`
		}{
			Status: "healthy",
			Nodes:  make(map[string]interface{}),
		}

		connected := 0
		for _, n := range registry.Nodes() {
			entry := map[string]interface{}{
				"status":  n.Status().String(),
				"players": n.PlayerCount(),
			}
			if stats, ok := n.Stats(); ok {
				entry["playing_players"] = stats.PlayingPlayers
				entry["system_load"] = stats.CPU.SystemLoad
			}
			health.Nodes[n.Name()] = entry

			if n.Status() == connection.StatusConnected {
				connected++
			}
		}

		if connected == 0 {
			health.Status = "unhealthy"
		} else if connected < len(health.Nodes) {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
