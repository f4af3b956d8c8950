package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"TradeLedger/internal/core"
	"TradeLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. It runs
// independently from the engine: the persist channel uses blocking sends, so
// if this worker falls behind the engine stalls and no output is lost.
type Worker struct {
	writer       *LedgerWriter
	db           *sql.DB
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewLedgerWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// Run starts the worker loop. Outputs accumulate until the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the channel
// closes; remaining rows are flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	var batch Batch

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if batch.size() > 0 {
				if err := w.flush(context.Background(), &batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				if batch.size() > 0 {
					if err := w.flush(context.Background(), &batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			rows, err := RowsFromOutput(output)
			if err != nil {
				// A payload that cannot marshal is a programming error;
				// the envelope and snapshot rows are still written.
				w.log.Error().Err(err).Str("operation", output.Operation).Msg("row conversion failed")
			}
			batch.append(rows)

			if batch.size() >= w.batchSize {
				w.flushWithRetry(ctx, &batch)
				batch.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if batch.size() > 0 {
				w.flushWithRetry(ctx, &batch)
				batch.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops
// committed outputs: it retries until the write succeeds or the context is
// cancelled, in which case one final flush runs with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, batch *Batch) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", batch.size()).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

// flush writes the whole batch in a single transaction.
func (w *Worker) flush(ctx context.Context, batch *Batch) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.persistError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteSnapshotBatch(ctx, tx, batch.Snapshots); err != nil {
		w.persistError("write_snapshots")
		return err
	}
	if err := w.writer.WriteTransitionBatch(ctx, tx, batch.Transitions); err != nil {
		w.persistError("write_transitions")
		return err
	}
	if err := w.writer.WriteEventBatch(ctx, tx, batch.Events); err != nil {
		w.persistError("write_events")
		return err
	}
	if err := w.writer.WritePayloadBatch(ctx, tx, batch.Payloads); err != nil {
		w.persistError("write_payloads")
		return err
	}

	if err := tx.Commit(); err != nil {
		w.persistError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(batch.size()))
		w.metrics.PersistRowsWritten.WithLabelValues("snapshots").Add(float64(len(batch.Snapshots)))
		w.metrics.PersistRowsWritten.WithLabelValues("transitions").Add(float64(len(batch.Transitions)))
		w.metrics.PersistRowsWritten.WithLabelValues("events").Add(float64(len(batch.Events)))
		w.metrics.PersistRowsWritten.WithLabelValues("payloads").Add(float64(len(batch.Payloads)))
	}
	return nil
}

func (w *Worker) persistError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
