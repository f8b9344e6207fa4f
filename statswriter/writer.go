package statswriter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiolink/audiolink/lavalink"
)

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// statsRow is one node_stats table row.
type statsRow struct {
	RecordedAt    int64
	NodeName      string
	Players       int
	Playing       int
	UptimeMs      int64
	MemFree       int64
	MemUsed       int64
	MemAllocated  int64
	MemReservable int64
	CPUCores      int
	SystemLoad    float64
	LavalinkLoad  float64
	FramesSent    int
	FramesNulled  int
	FramesDeficit int
}

// Writer consumes stats snapshots and writes them to the node_stats table.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	input chan statsRow
	db    *pgxpool.Pool

	batch       []statsRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a stats writer backed by the given pool.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan statsRow, cfg.BufferSize),
		batch:  make([]statsRow, 0, cfg.BatchSize),
	}
}

// Record queues one snapshot for persistence. It never blocks: if the
// buffer is full the snapshot is dropped and counted.
func (w *Writer) Record(nodeName string, s lavalink.Stats) {
	row := transform(nodeName, s)
	select {
	case w.input <- row:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("stats buffer full, snapshot dropped", "node_name", nodeName)
	}
}

// Start begins consuming snapshots and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("stats writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping stats writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("stats writer stopped")
	case <-ctx.Done():
		w.logger.Warn("stats writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer into batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, row)
			shouldFlush := len(w.batch) >= w.cfg.BatchSize
			w.batchMu.Unlock()

			if shouldFlush {
				w.flush()
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func transform(nodeName string, s lavalink.Stats) statsRow {
	row := statsRow{
		RecordedAt:    time.Now().UnixMicro(),
		NodeName:      nodeName,
		Players:       s.Players,
		Playing:       s.PlayingPlayers,
		UptimeMs:      s.Uptime,
		MemFree:       s.Memory.Free,
		MemUsed:       s.Memory.Used,
		MemAllocated:  s.Memory.Allocated,
		MemReservable: s.Memory.Reservable,
		CPUCores:      s.CPU.Cores,
		SystemLoad:    s.CPU.SystemLoad,
		LavalinkLoad:  s.CPU.LavalinkLoad,
	}
	if s.FrameStats != nil {
		row.FramesSent = s.FrameStats.Sent
		row.FramesNulled = s.FrameStats.Nulled
		row.FramesDeficit = s.FrameStats.Deficit
	}
	return row
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]statsRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed node stats",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(rows []statsRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO node_stats (recorded_at, node_name, players, playing_players, uptime_ms, mem_free, mem_used, mem_allocated, mem_reservable, cpu_cores, system_load, lavalink_load, frames_sent, frames_nulled, frames_deficit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (node_name, recorded_at) DO NOTHING
		`, r.RecordedAt, r.NodeName, r.Players, r.Playing, r.UptimeMs, r.MemFree, r.MemUsed, r.MemAllocated, r.MemReservable, r.CPUCores, r.SystemLoad, r.LavalinkLoad, r.FramesSent, r.FramesNulled, r.FramesDeficit)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
