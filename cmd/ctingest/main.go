// Command ctingest is the CT ingestion engine's entrypoint: it loads
// configuration, discovers active logs, and supervises one Worker per
// log until told to stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"itko.dev/internal/archive"
	"itko.dev/internal/cluster"
	"itko.dev/internal/config"
	"itko.dev/internal/logregistry"
	"itko.dev/internal/offsetstore"
	"itko.dev/internal/psl"
	"itko.dev/internal/sink"
	"itko.dev/internal/supervisor"
	"itko.dev/internal/telemetry"
	"itko.dev/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTELExporterEndpoint != "" {
		shutdown, err := telemetry.ConfigureOTel(ctx)
		if err != nil {
			log.Fatalf("configure otel: %v", err)
		}
		defer shutdown()
	}
	if err := telemetry.ConfigureSentry(cfg.SentryDSN); err != nil {
		log.Fatalf("configure sentry: %v", err)
	}
	telemetry.ServeMetrics(cfg.MetricsAddr)

	offsets, err := offsetstore.New(cfg.OffsetDir)
	if err != nil {
		log.Fatalf("offset store: %v", err) // unwritable offset dir is a fatal init error (§6)
	}

	s, err := sink.Open(cfg.SinkDSN, cfg.SinkTable)
	if err != nil {
		log.Fatalf("sink: %v", err)
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		log.Fatalf("sink unreachable at startup: %v", err)
	}

	registry := logregistry.New(cfg.LogListURL)
	logs, err := registry.Discover(ctx)
	if err != nil {
		log.Fatalf("log list unreachable: %v", err)
	}
	log.Printf("discovered %d active logs", len(logs))

	var coordinator *cluster.Coordinator
	if cfg.ClusterConsulAddr != "" {
		coordinator, err = cluster.New(cfg.ClusterConsulAddr, "ctingest/locks")
		if err != nil {
			log.Fatalf("cluster coordinator: %v", err)
		}
	}

	var archiver worker.Archiver
	if cfg.ArchiveS3Bucket != "" {
		archiver = archive.New(cfg.ArchiveS3Region, cfg.ArchiveS3Bucket, cfg.ArchiveS3EndpointURL, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey)
	}

	sup := &supervisor.Supervisor{
		Cursor:     offsets,
		Sink:       s,
		Archiver:   archiver,
		Cluster:    coordinator,
		Classifier: psl.New(),
		WorkerCfg: worker.Config{
			BatchSize:    cfg.BatchSize,
			PollInterval: cfg.PollInterval,
		},
	}

	if err := sup.Run(ctx, logs); err != nil {
		log.Fatalf("supervisor: %v", err)
	}
	log.Println("all workers reached frozen-log completion or clean shutdown")
}
