package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/connection"
	"github.com/rickgao/primus-go/internal/queue"
)

// Name is the plugin name.
const Name = "journal"

// Defaults
const (
	DefaultTable         = "connection_events"
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultFlushTimeout  = 5 * time.Second
)

// Config controls batching.
type Config struct {
	Table         string
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	SkipData      bool // Do not journal data events
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	return c
}

// Batcher sends a batch of statements. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Entry is one journaled event.
type Entry struct {
	ID         uuid.UUID
	Target     string
	Event      string
	Detail     string
	OccurredAt time.Time
}

// Stats counts journal activity.
type Stats struct {
	Recorded int64
	Inserts  int64
	Errors   int64
	Flushes  int64
}

// Journal is the plugin. Start it before events arrive and Stop it after
// the connection is shut down.
type Journal struct {
	cfg    Config
	db     Batcher
	logger *slog.Logger

	// Input from connection event handlers
	input *queue.Buffer[Entry]

	// Batching
	batch   []Entry
	batchMu sync.Mutex

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats Stats
}

// New creates a Journal writing through db.
func New(cfg Config, db Batcher, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal", "table", cfg.Table),
		input:  queue.NewBuffer[Entry](cfg.BatchSize),
		batch:  make([]Entry, 0, cfg.BatchSize),
	}
}

func (j *Journal) Name() string {
	return Name
}

// Attach subscribes to every public event of c.
func (j *Journal) Attach(c *connection.Conn) error {
	target := c.Target()
	for _, event := range connection.PublicEvents {
		if event == connection.EventData && j.cfg.SkipData {
			continue
		}
		event := event
		c.On(event, func(payload any) {
			j.Record(Entry{
				Target: target,
				Event:  event,
				Detail: Describe(event, payload),
			})
		})
	}
	return nil
}

// Record queues e without blocking. Missing ID and time are filled in.
func (j *Journal) Record(e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if !j.input.Push(e) {
		j.logger.Warn("journal stopped, dropping entry", "event", e.Event)
		return
	}

	j.batchMu.Lock()
	j.stats.Recorded++
	j.batchMu.Unlock()
}

// Start begins consuming entries and writing batches.
func (j *Journal) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	j.wg.Add(1)
	go j.consumeLoop()

	// Flush ticker goroutine
	j.wg.Add(1)
	go j.flushLoop(ctx)

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued entries, writes the last batch and waits for the
// goroutines, or for ctx to expire.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping journal")

	j.input.Close()
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		j.logger.Info("journal stopped")
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		err = fmt.Errorf("stop journal: %w", ctx.Err())
	}

	// Final flush
	j.flush()
	return err
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.stats
}

func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	for {
		e, ok := j.input.Pop()
		if !ok {
			return
		}

		j.batchMu.Lock()
		j.batch = append(j.batch, e)
		shouldFlush := len(j.batch) >= j.cfg.BatchSize
		j.batchMu.Unlock()

		if shouldFlush {
			j.flush()
		}
	}
}

func (j *Journal) flushLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.flush()
		}
	}
}

func (j *Journal) flush() {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]Entry, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()
	inserted, err := j.batchInsert(batch)
	if err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.stats.Errors++
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.stats.Inserts += int64(inserted)
	j.stats.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed journal",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (j *Journal) batchInsert(rows []Entry) (inserted int, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.FlushTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, target, event, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, pgx.Identifier{j.cfg.Table}.Sanitize())

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, r.ID, r.Target, r.Event, r.Detail, r.OccurredAt)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// Describe renders an event payload as a short human-readable string.
func Describe(event string, payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case error:
		var pv *connection.ProtocolViolationError
		if errors.As(p, &pv) {
			return fmt.Sprintf("protocol violation %d", pv.Code)
		}
		return p.Error()
	case connection.CloseEvent:
		return fmt.Sprintf("code=%d reason=%q clean=%t", p.Code, p.Reason, p.WasClean)
	case connection.EndEvent:
		return fmt.Sprintf("exhausted=%t discarded=%d", p.Exhausted, p.Discarded)
	case connection.ReconnectingEvent:
		return fmt.Sprintf("attempt=%d delay=%s", p.Attempt, p.Delay)
	case connection.ReconnectEvent:
		return fmt.Sprintf("attempts=%d", p.Attempts)
	case connection.TimeoutEvent:
		return fmt.Sprintf("stage=%s after=%s", p.Stage, p.After)
	case codec.Message:
		return fmt.Sprintf("%s %d bytes", p.Kind(), p.Len())
	}
	return fmt.Sprintf("%s: %v", event, payload)
}
