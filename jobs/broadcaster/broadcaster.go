// Package broadcaster relays outbox events to Kafka. Events are published
// in sequence order; a failed publish stops the pass so a later event is
// never delivered ahead of an earlier one.
package broadcaster

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"clob/infra/store"
)

// Publisher delivers one encoded event.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, contentType string) error
	Close() error
}

// Outbox is the part of the store the relay drives.
type Outbox interface {
	ScanEvents(limit int, fn func(seq uint64, rec store.OutboxRecord) error, states ...store.OutboxState) error
	UpdateState(seq uint64, state store.OutboxState, retries uint32) error
	DeleteEvent(seq uint64) error
}

type Config struct {
	// Key is the Kafka key of every event; one key keeps a market's events
	// on one partition, in order.
	Key         string
	ContentType string
	Interval    time.Duration
	BatchSize   int
}

type Broadcaster struct {
	outbox  Outbox
	pub     Publisher
	cfg     Config
	log     *zap.Logger
	metrics *Metrics
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox Outbox, pub Publisher, cfg Config, log *zap.Logger, metrics *Metrics) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	return &Broadcaster{
		outbox:  outbox,
		pub:     pub,
		cfg:     cfg,
		log:     log.Named("broadcaster"),
		metrics: metrics,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Run relays until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started", zap.Duration("interval", b.cfg.Interval))
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped")
			return
		case <-ticker.C:
			if _, err := b.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("relay pass failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// RELAY
// ------------------------------------------------

type pending struct {
	seq uint64
	rec store.OutboxRecord
}

// RelayOnce publishes up to one batch of pending events and returns how
// many were delivered.
func (b *Broadcaster) RelayOnce(ctx context.Context) (int, error) {
	var batch []pending
	err := b.outbox.ScanEvents(b.cfg.BatchSize, func(seq uint64, rec store.OutboxRecord) error {
		batch = append(batch, pending{seq: seq, rec: rec})
		return nil
	}, store.StateNew, store.StateSent, store.StateFailed)
	if err != nil {
		return 0, errors.Wrap(err, "scan outbox")
	}

	sent := 0
	for _, p := range batch {
		// SENT first: a crash after publishing redelivers rather than loses.
		if err := b.outbox.UpdateState(p.seq, store.StateSent, p.rec.Retries); err != nil {
			return sent, err
		}
		err := b.pub.Publish(ctx, []byte(b.cfg.Key), p.rec.Payload, b.cfg.ContentType)
		if err != nil {
			b.metrics.failed.Inc()
			if uerr := b.outbox.UpdateState(p.seq, store.StateFailed, p.rec.Retries+1); uerr != nil {
				return sent, uerr
			}
			return sent, errors.Wrapf(err, "publish seq %d", p.seq)
		}
		if err := b.outbox.DeleteEvent(p.seq); err != nil {
			return sent, err
		}
		b.metrics.published.Inc()
		sent++
	}
	if sent > 0 {
		b.log.Debug("relayed", zap.Int("events", sent), zap.Uint64("last_seq", batch[sent-1].seq))
	}
	return sent, nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
