package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"clob/api/grpcserver"
	"clob/config"
	"clob/infra/codec"
	"clob/infra/kafka"
	"clob/infra/logging"
	"clob/infra/store"
	entrywal "clob/infra/wal/entry"
	"clob/jobs/broadcaster"
	"clob/jobs/maintenance"
	"clob/service"
	"clob/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its gRPC API and background jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Config ----------------

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// ---------------- Store ----------------

	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer st.Close()

	// ---------------- Journal ----------------

	lastSeq, err := entrywal.Replay(cfg.Journal.Dir, func(*entrywal.Record) error { return nil })
	if err != nil {
		return errors.Wrap(err, "replay journal")
	}
	journal, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.Journal.Dir,
		SegmentSize:     cfg.Journal.SegmentSize,
		SegmentDuration: cfg.Journal.SegmentDuration,
	}, lastSeq)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer journal.Close()

	// ---------------- Engine ----------------

	enc, err := codec.New(cfg.Events.Encoding)
	if err != nil {
		return err
	}
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return errors.Wrap(err, "program_id")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := service.New(service.Deps{
		Market:       cfg.Market.Market(),
		BookCapacity: cfg.Book.Capacity,
		ProgramID:    programID,
		Store:        st,
		Journal:      journal,
		Codec:        enc,
		Metrics:      service.NewMetrics(reg),
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := restoreIfFresh(ctx, eng, st, cfg.Maintenance.SnapshotDir); err != nil {
		return err
	}
	if err := eng.Recover(ctx); err != nil {
		return errors.Wrap(err, "recover")
	}

	// ---------------- Background Jobs ----------------

	var wg sync.WaitGroup

	if cfg.Kafka.Enabled {
		pub, err := newPublisher(cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "kafka publisher")
		}
		bc := broadcaster.New(st, pub, broadcaster.Config{
			Key:         cfg.Market.Name,
			ContentType: enc.ContentType(),
			Interval:    cfg.Kafka.Interval,
			BatchSize:   cfg.Kafka.BatchSize,
		}, log, broadcaster.NewMetrics(reg))
		defer bc.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			bc.Run(ctx)
		}()
	}

	var writer *snapshot.Writer
	if cfg.Maintenance.SnapshotDir != "" {
		writer = &snapshot.Writer{Dir: cfg.Maintenance.SnapshotDir, Keep: 3}
	}
	mj := maintenance.New(eng, st, writer, maintenance.Config{
		Interval:         cfg.Maintenance.Interval,
		PruneLimit:       cfg.Maintenance.PruneLimit,
		SnapshotInterval: cfg.Maintenance.SnapshotInterval,
	}, log, maintenance.NewMetrics(reg))
	wg.Add(1)
	go func() {
		defer wg.Done()
		mj.Run(ctx)
	}()

	// ---------------- Metrics ----------------

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPC.Addr)
	}
	grpcSrv := grpc.NewServer(grpcserver.Interceptors(log))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(eng, log))
	reflection.Register(grpcSrv)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		grpcSrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("engine running",
		zap.String("market", cfg.Market.Name),
		zap.String("grpc", cfg.GRPC.Addr),
		zap.String("metrics", cfg.Metrics.Addr),
		zap.String("encoding", enc.Name()),
	)
	if err := grpcSrv.Serve(lis); err != nil {
		return errors.Wrap(err, "grpc server exited")
	}
	stop()
	wg.Wait()
	return nil
}

// restoreIfFresh seeds an empty store from the newest snapshot, if any.
func restoreIfFresh(ctx context.Context, eng *service.Engine, st *store.Store, dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := st.Market(); !errors.Is(err, store.ErrNotFound) {
		return err
	}
	snap, err := snapshot.Latest(dir)
	if err != nil || snap == nil {
		return err
	}
	return eng.Restore(ctx, snap)
}

func newPublisher(cfg config.KafkaConfig) (broadcaster.Publisher, error) {
	if cfg.Client == "kafka-go" {
		return kafka.NewProducer(kafka.Config{Brokers: cfg.Brokers, Topic: cfg.Topic}), nil
	}
	return broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic, cfg.ClientID)
}
