// Package outbox delivers committed interval mutations to Kafka as change
// signals. A signal carries the owner and the kind of mutation in headers and
// nothing else; subscribers refetch state from the store, so a redelivered or
// reordered signal is harmless.
package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Signal represents a row fetched from the outbox table.
type Signal struct {
	ID        int64
	OwnerID   string
	EventType string
}

// Dispatcher drains the outbox table and publishes signals to Kafka.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	topic            string
	pollInterval     time.Duration
	batchSize        int
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher publishing to the given topic.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, topic string, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		topic:            topic,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           log.Default(),
		shutdownComplete: make(chan struct{}),
	}
}

// WithLogger overrides the default logger.
func (d *Dispatcher) WithLogger(logger *log.Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	signals, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.deliver(ctx, signals); err != nil {
		// Rows stay unpublished and are retried on the next poll.
		// Subscribers tolerate duplicates, so at-least-once is enough.
		failedCounter.Add(float64(len(signals)))
		return err
	}

	deliveredCounter.Add(float64(len(signals)))
	return d.markPublished(ctx, signals)
}

// claimTimeout bounds how long a claimed-but-unpublished row stays invisible
// to other dispatcher replicas. A crashed replica's claims are requeued after
// this window.
const claimTimeout = time.Minute

func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Signal, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	query := `SELECT id, owner_id, event_type
        FROM outbox
        WHERE published_at IS NULL
          AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
        ORDER BY id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize, claimTimeout.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]Signal, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var sig Signal
		if err := rows.Scan(&sig.ID, &sig.OwnerID, &sig.EventType); err != nil {
			return nil, err
		}
		signals = append(signals, sig)
		ids = append(ids, sig.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return signals, nil
}

func (d *Dispatcher) deliver(ctx context.Context, signals []Signal) error {
	msgs := make([]kafka.Message, 0, len(signals))
	for _, sig := range signals {
		msgs = append(msgs, kafka.Message{
			// Keyed by owner so one owner's signals stay ordered within
			// a partition.
			Key: []byte(sig.OwnerID),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(sig.EventType)},
				{Key: "owner_id", Value: []byte(sig.OwnerID)},
			},
			Time: time.Now().UTC(),
		})
	}
	return d.producer.WriteMessages(ctx, d.topic, msgs...)
}

func (d *Dispatcher) markPublished(ctx context.Context, signals []Signal) error {
	ids := make([]int64, 0, len(signals))
	for _, sig := range signals {
		ids = append(ids, sig.ID)
	}

	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = ANY($1)`, ids)
	return err
}
