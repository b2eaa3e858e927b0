// Package maintenance runs the engine's periodic housekeeping: pruning
// expired orders, rolling buyback fee buckets, writing snapshots and
// dropping journal segments a snapshot already covers.
package maintenance

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"clob/infra/store"
	"clob/snapshot"
)

// Engine is the part of the matching engine the job drives.
type Engine interface {
	PruneExpired(ctx context.Context, limit int) (int, error)
	ExpireBuybackFees(ctx context.Context) (int, error)
	Snapshot() (*snapshot.Snapshot, error)
	TruncateJournal(seq uint64) (int, error)
}

// Outbox reports events still waiting for publication.
type Outbox interface {
	ScanEvents(limit int, fn func(seq uint64, rec store.OutboxRecord) error, states ...store.OutboxState) error
}

type Config struct {
	Interval   time.Duration
	PruneLimit int
	// SnapshotInterval is how often a snapshot is written; 0 disables
	// snapshots and journal truncation.
	SnapshotInterval time.Duration
}

type Job struct {
	engine  Engine
	outbox  Outbox
	writer  *snapshot.Writer
	cfg     Config
	log     *zap.Logger
	metrics *Metrics
	clock   func() time.Time

	lastSnapshot time.Time
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// New builds a job. outbox and writer may be nil.
func New(engine Engine, outbox Outbox, writer *snapshot.Writer, cfg Config, log *zap.Logger, metrics *Metrics) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if writer == nil {
		cfg.SnapshotInterval = 0
	}
	return &Job{
		engine:  engine,
		outbox:  outbox,
		writer:  writer,
		cfg:     cfg,
		log:     log.Named("maintenance"),
		metrics: metrics,
		clock:   time.Now,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Run performs a pass every interval until ctx is done.
func (j *Job) Run(ctx context.Context) {
	j.log.Info("started",
		zap.Duration("interval", j.cfg.Interval),
		zap.Duration("snapshot_interval", j.cfg.SnapshotInterval))
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("stopped")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.log.Warn("maintenance pass failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// PASS
// ------------------------------------------------

// RunOnce prunes, expires fees and, when one is due, writes a snapshot.
func (j *Job) RunOnce(ctx context.Context) error {
	pruned, err := j.engine.PruneExpired(ctx, j.cfg.PruneLimit)
	if err != nil {
		return errors.Wrap(err, "prune expired")
	}
	j.metrics.pruned.Add(float64(pruned))

	if _, err := j.engine.ExpireBuybackFees(ctx); err != nil {
		return errors.Wrap(err, "expire buyback fees")
	}

	if j.cfg.SnapshotInterval <= 0 {
		return nil
	}
	if now := j.clock(); now.Sub(j.lastSnapshot) >= j.cfg.SnapshotInterval {
		if _, err := j.SnapshotNow(); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotNow writes a snapshot and truncates the journal up to the
// snapshot's sequence, keeping anything the outbox has not published.
func (j *Job) SnapshotNow() (string, error) {
	if j.writer == nil {
		return "", errors.New("maintenance: no snapshot directory")
	}
	s, err := j.engine.Snapshot()
	if err != nil {
		return "", errors.Wrap(err, "take snapshot")
	}
	path, err := j.writer.Write(s)
	if err != nil {
		return "", errors.Wrap(err, "write snapshot")
	}
	j.lastSnapshot = j.clock()
	j.metrics.snapshots.Inc()
	j.log.Info("snapshot written", zap.String("path", path), zap.Uint64("seq", s.Seq))

	upTo, err := j.truncationPoint(s.Seq)
	if err != nil {
		return path, err
	}
	removed, err := j.engine.TruncateJournal(upTo)
	if err != nil {
		return path, errors.Wrap(err, "truncate journal")
	}
	if removed > 0 {
		j.metrics.truncated.Add(float64(removed))
		j.log.Info("journal truncated", zap.Uint64("up_to", upTo), zap.Int("segments", removed))
	}
	return path, nil
}

func (j *Job) truncationPoint(snapSeq uint64) (uint64, error) {
	if j.outbox == nil {
		return snapSeq, nil
	}
	upTo := snapSeq
	err := j.outbox.ScanEvents(1, func(seq uint64, _ store.OutboxRecord) error {
		if seq <= upTo {
			upTo = seq - 1
		}
		return nil
	}, store.StateNew, store.StateSent, store.StateFailed)
	if err != nil {
		return 0, errors.Wrap(err, "scan outbox")
	}
	return upTo, nil
}
