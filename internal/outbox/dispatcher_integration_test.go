//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestDispatcherPublishesSignals(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	ownerID := uuid.NewString()
	seedOutbox(t, ctx, pool, ownerID, "interval.created")

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, "timelog_signals", 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "timelog_signals", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	msg := producer.writes[0].messages[0]
	require.Equal(t, ownerID, string(msg.Key))
	require.Empty(t, msg.Value)
	require.Equal(t, "interval.created", headerValue(msg, "event_type"))
	require.Equal(t, ownerID, headerValue(msg, "owner_id"))

	afterDelivered := testutil.ToFloat64(deliveredCounter)
	require.InDelta(t, beforeDelivered+1, afterDelivered, 0.0001)

	var published int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE owner_id = $1 AND published_at IS NOT NULL`,
		ownerID).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherClaimHidesRowsFromConcurrentFetch(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	ownerID := uuid.NewString()
	seedOutbox(t, ctx, pool, ownerID, "interval.stopped")

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, "timelog_signals", 10*time.Millisecond, 5)

	// Delivery fails, so the row stays unpublished but keeps its claim.
	require.Error(t, dispatcher.processBatch(ctx))

	var claimedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT claimed_at FROM outbox WHERE owner_id = $1`, ownerID).Scan(&claimedAt))
	require.NotNil(t, claimedAt, "claim marker should be set inside the fetch transaction")

	// A second dispatcher polling right after must not pick up the same row
	// while the claim is fresh.
	signals, err := dispatcher.fetchAndClaim(ctx)
	require.NoError(t, err)
	require.Empty(t, signals)

	var published int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE owner_id = $1 AND published_at IS NOT NULL`,
		ownerID).Scan(&published))
	require.Zero(t, published)
}

func TestDispatcherReclaimsExpiredClaims(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	ownerID := uuid.NewString()
	seedOutbox(t, ctx, pool, ownerID, "interval.deleted")

	// Simulate a replica that claimed the row and crashed long ago.
	_, err := pool.Exec(ctx,
		`UPDATE outbox SET claimed_at = NOW() - make_interval(secs => $2) WHERE owner_id = $1`,
		ownerID, 2*claimTimeout.Seconds())
	require.NoError(t, err)

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, "timelog_signals", 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "interval.deleted", headerValue(producer.writes[0].messages[0], "event_type"))

	var published int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE owner_id = $1 AND published_at IS NOT NULL`,
		ownerID).Scan(&published))
	require.Equal(t, 1, published)
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, ownerID, eventType string) {
	t.Helper()

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox (owner_id, event_type) VALUES ($1, $2)`,
		ownerID, eventType)
	require.NoError(t, err)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("timelog"),
		postgrescontainer.WithUsername("timelog"),
		postgrescontainer.WithPassword("timelog"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
