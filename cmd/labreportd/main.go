package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-analyzer/internal/app"
	"github.com/joseph-ayodele/labreport-analyzer/internal/async"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ingest"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
	"github.com/joseph-ayodele/labreport-analyzer/internal/server"
)

func main() {
	// messages with variables but no time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a model that fails to load keeps the server up but NOT_SERVING
	a, err := app.New(ctx, cfg, logger, app.Options{WithDB: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.DB.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	svcOpts := []server.Option{
		server.WithRepository(a.Repo),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithMaxUploadMB(cfg.Server.MaxUploadMB),
		server.WithServerPaths(cfg.Server.AllowServerPaths),
	}
	if a.ModelErr != nil {
		svcOpts = append(svcOpts, server.WithModelError(a.ModelErr))
	}
	svc := server.NewAnalysisService(a.Processor, logger, svcOpts...)
	grpcServer, hs := server.NewGRPCServer(svc, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}

	var queue *async.ProcessorQueue
	if dir := cfg.Server.WatchDir; dir != "" && svc.Ready() {
		queue = async.NewProcessorQueue(a.Processor, logger,
			async.WithWorkers(cfg.Server.Workers),
			async.WithQueueSize(512),
			async.WithProcessTimeout(cfg.Server.RequestTimeout),
			async.WithResultFunc(func(job async.Job, res *entity.Analysis, err error) {
				logger.Info("watch.analysis.done", "path", job.Path, "status", res.Status, "severity", res.Severity, "error", err)
			}),
		)
		if err := watch(ctx, dir, cfg.Server.WatchInitialScan, queue, a.Repo, logger); err != nil {
			logger.Error("failed to watch directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("labreportd listening", "addr", addr, "ready", svc.Ready())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	if queue != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		queue.Shutdown(sctx)
		cancel()
	}
	grpcServer.GracefulStop()
}

// watch feeds every report appearing under dir into q until ctx is done. Files
// whose content was already analyzed are skipped.
func watch(ctx context.Context, dir string, initialScan bool, q async.Queue, repo repository.AnalysisRepository, logger *slog.Logger) error {
	paths, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: initialScan,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		for p := range paths {
			job := async.Job{Path: p, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
			if f, err := ingest.Describe(p); err == nil {
				job.HashHex = f.HashHex
				if prev, err := repo.FindByContentHash(ctx, f.HashHex); err == nil {
					logger.Info("watch.file.seen", "path", p, "analysis_id", prev.ID)
					continue
				}
			}
			if err := q.Enqueue(ctx, job); err != nil {
				logger.Warn("watch.enqueue.failed", "path", p, "error", err)
			}
		}
	}()
	return nil
}
