// Package notify consumes change signals from Kafka and routes them to the
// live update coordinators. Signals carry no payload; a signal only tells a
// coordinator that the owner's log changed and a refetch is due.
package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/timelog/internal/live"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Sink receives routed signals. *live.Hub satisfies it.
type Sink interface {
	Notify(ownerID string, sig live.Signal)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithFetchBackoff overrides the delay applied after a failed fetch.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) {
		p.fetchBackoff = d
	}
}

// Processor pulls signal messages from Kafka and forwards them to the sink.
type Processor struct {
	reader       Reader
	sink         Sink
	logger       *log.Logger
	fetchBackoff time.Duration
}

// NewProcessor constructs a Processor with the provided reader and sink.
func NewProcessor(reader Reader, sink Sink, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		sink:         sink,
		logger:       log.New(log.Writer(), "[notify] ", log.LstdFlags|log.Lshortfile),
		fetchBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that routes signals until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			recordFetchError()
			// Back off before refetching so a broker outage does not spin
			// the loop hot.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.fetchBackoff):
			}
			continue
		}

		ownerID, ok := headerValue(msg, "owner_id")
		if !ok {
			p.logger.Printf("missing owner_id header (topic=%s, partition=%d, offset=%d)", msg.Topic, msg.Partition, msg.Offset)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		eventType, _ := headerValue(msg, "event_type")
		sig := live.ParseSignal(string(eventType))

		p.sink.Notify(string(ownerID), sig)

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordRouted(sig.String(), time.Since(msg.Time))
		}
	}
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
