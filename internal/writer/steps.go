package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/boss-relay/internal/model"
)

// CopyFromer bulk-loads rows. *pgxpool.Pool implements it.
type CopyFromer interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var (
	stepsTable   = pgx.Identifier{"battle_steps"}
	stepsColumns = []string{"id", "account_id", "boss_id", "captured_at", "payload"}
)

type stepRow struct {
	ID         uuid.UUID
	AccountID  string
	BossID     string
	CapturedAt time.Time
	Payload    []byte
}

// StepWriter archives battle steps into the battle_steps table.
type StepWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from sessions
	input   chan stepRow
	dropped atomic.Int64

	// Database
	db CopyFromer

	// Batching
	batch       []stepRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewStepWriter creates a new StepWriter.
func NewStepWriter(cfg WriterConfig, db CopyFromer, logger *slog.Logger) *StepWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultWriterConfig().FlushTimeout
	}
	return &StepWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan stepRow, max(cfg.BufferSize, 0)),
		batch:  make([]stepRow, 0, cfg.BatchSize),
	}
}

// Archive queues a battle step. It never blocks; steps arriving while the
// queue is full are dropped and counted.
func (w *StepWriter) Archive(accountID, bossID string, e model.Event) {
	select {
	case w.input <- w.transform(accountID, bossID, e):
	default:
		if n := w.dropped.Add(1); n == 1 || n%1000 == 0 {
			w.logger.Warn("archive queue full, dropping steps", "dropped", n)
		}
	}
}

// Start begins consuming steps and writing to the database.
func (w *StepWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("step writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing queued steps.
func (w *StepWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping step writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("step writer stopped")
	case <-ctx.Done():
		w.logger.Warn("step writer stop timed out")
	}

	// Final flush of whatever is still queued
drain:
	for {
		select {
		case row := <-w.input:
			w.appendRow(row)
		default:
			break drain
		}
	}
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *StepWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	m := w.metrics
	m.Dropped = w.dropped.Load()
	return m
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *StepWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			w.handleRow(row)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *StepWriter) flushLoop() {
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

// handleRow adds a row to the batch and flushes when it is full.
func (w *StepWriter) handleRow(row stepRow) {
	if w.appendRow(row) {
		w.flush()
	}
}

func (w *StepWriter) appendRow(row stepRow) (full bool) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a relayed event to a stepRow.
func (w *StepWriter) transform(accountID, bossID string, e model.Event) stepRow {
	payload := []byte(e.Payload)
	if !json.Valid(payload) {
		payload = []byte("null")
	}
	return stepRow{
		ID:         uuid.New(),
		AccountID:  accountID,
		BossID:     bossID,
		CapturedAt: e.CapturedAt,
		Payload:    payload,
	}
}

// flush writes the current batch to the database.
func (w *StepWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]stepRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	n, err := w.copyRows(batch)
	if err != nil {
		w.logger.Error("copy battle steps failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += n
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed battle steps",
		"count", n,
		"duration", time.Since(start),
	)
}

// copyRows loads rows with COPY. It runs on its own deadline so the final
// flush in Stop still succeeds after the writer context is canceled.
func (w *StepWriter) copyRows(rows []stepRow) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	return w.db.CopyFrom(ctx, stepsTable, stepsColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{r.ID, r.AccountID, r.BossID, r.CapturedAt, r.Payload}, nil
	}))
}
