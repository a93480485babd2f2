/*
Package chat contains the core logic of the real-time case-chat subsystem.

This file defines the Flusher, the batch persistence scheduler. Broadcast messages are
buffered per case and drained to the durable store on a fixed interval, one append per
case per tick, so chatty rooms do not amplify into one write per message. A failed
case batch is re-queued ahead of newer arrivals and retried on following ticks until
a bounded attempt budget is exhausted, at which point it is dropped with a dead-letter
log entry.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lawchat/internal/pkg/logx"
)

// MessageStore persists enriched chat messages. Implemented by the store repository
// in production and by fakes in tests.
type MessageStore interface {
	// AppendMessages appends the batch to the case's persisted history in order,
	// creating the history if it does not yet exist.
	AppendMessages(ctx context.Context, caseID string, messages []Message) error
}

// flushTimeout bounds how long a single tick may spend against the store.
const flushTimeout = 30 * time.Second

// caseBatch accumulates one case's messages between flush ticks.
type caseBatch struct {
	messages []Message

	// attempts counts failed flushes of this batch so far.
	attempts int
}

// Flusher buffers enriched messages per case and drains them to a MessageStore on a
// fixed interval. It is constructed once at startup and injected into the Manager;
// there is no package-level buffer state.
type Flusher struct {
	store      MessageStore
	interval   time.Duration
	maxRetries int

	mu      sync.Mutex
	pending map[string]*caseBatch

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger zerolog.Logger
}

// NewFlusher constructs a Flusher draining into store every interval. maxRetries
// bounds how many additional ticks a failed case batch is retried before being dropped.
func NewFlusher(store MessageStore, interval time.Duration, maxRetries int) *Flusher {
	flusherLogger := logx.Logger().With().Str("component", "Flusher").Logger()

	return &Flusher{
		store:      store,
		interval:   interval,
		maxRetries: maxRetries,
		pending:    make(map[string]*caseBatch),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     flusherLogger,
	}
}

// Append adds an enriched message to its case's batch, preserving arrival order.
func (f *Flusher) Append(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	batch, ok := f.pending[msg.CaseID]
	if !ok {
		batch = &caseBatch{}
		f.pending[msg.CaseID] = batch
	}
	batch.messages = append(batch.messages, msg)
}

// Run executes the flush loop until Shutdown is called. It performs one final flush
// before exiting so buffered messages survive a graceful shutdown.
func (f *Flusher) Run() {
	defer close(f.done)

	f.logger.Info().
		Dur("interval", f.interval).
		Int("max_retries", f.maxRetries).
		Msg("Flush loop started.")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushTick()

		case <-f.stop:
			f.flushTick()
			f.logger.Info().Msg("Flush loop stopped.")
			return
		}
	}
}

// Shutdown signals the flush loop to stop and waits for its final flush to complete,
// or for ctx to expire.
func (f *Flusher) Shutdown(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stop) })

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flusher) flushTick() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	f.Flush(ctx)
}

// Flush drains the entire buffer once. The buffer map is swapped out under the lock,
// so a message arriving while the store write is in flight lands in the fresh map
// instead of being lost. Each case's append is independent: one case's failure never
// blocks another case's batch in the same pass.
func (f *Flusher) Flush(ctx context.Context) {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	batches := f.pending
	f.pending = make(map[string]*caseBatch)
	f.mu.Unlock()

	for caseID, batch := range batches {
		err := f.store.AppendMessages(ctx, caseID, batch.messages)
		if err == nil {
			f.logger.Debug().
				Str("case_id", caseID).
				Int("message_count", len(batch.messages)).
				Msg("Case batch persisted.")
			continue
		}

		batch.attempts++

		if batch.attempts > f.maxRetries {
			ids := make([]string, 0, len(batch.messages))
			for _, m := range batch.messages {
				ids = append(ids, m.ID)
			}

			f.logger.Error().
				Err(err).
				Str("case_id", caseID).
				Int("attempts", batch.attempts).
				Int("dropped_count", len(batch.messages)).
				Strs("dropped_message_ids", ids).
				Msg("Case batch exhausted its retry budget. Dropping messages.")
			continue
		}

		f.logger.Warn().
			Err(err).
			Str("case_id", caseID).
			Int("attempts", batch.attempts).
			Int("message_count", len(batch.messages)).
			Msg("Case batch flush failed. Re-queueing for next tick.")

		f.requeue(caseID, batch)
	}
}

// requeue puts a failed batch back at the head of its case's buffer, ahead of any
// messages that arrived during the flush, so persisted order matches arrival order.
func (f *Flusher) requeue(caseID string, failed *caseBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if newer, ok := f.pending[caseID]; ok {
		failed.messages = append(failed.messages, newer.messages...)
	}
	f.pending[caseID] = failed
}
