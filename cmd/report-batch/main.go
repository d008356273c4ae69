package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/app"
	"github.com/joseph-ayodele/labreport-analyzer/internal/async"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
	"github.com/joseph-ayodele/labreport-analyzer/internal/export"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ingest"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem     = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir       = flag.String("dir", "", "directory to process reports from (required)")
		out       = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		model     = flag.String("model", "", "classifier model JSON (overrides MODEL_PATH)")
		workers   = flag.Int("workers", 0, "concurrent analyses (overrides WORKERS)")
		status    = flag.String("status", "", "export only analyses with this status")
		skipDupes = flag.Bool("skip-duplicates", true, "analyze identical files once")
		hidden    = flag.Bool("hidden", false, "include hidden files and directories")
		maxMB     = flag.Int("max-mb", 0, "skip files larger than this many MB")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "lab-reports.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *model != "" {
		cfg.Analysis.ModelPath = *model
	}
	if *workers > 0 {
		cfg.Server.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	exportStatus := constants.AnalysisStatus(strings.ToUpper(*status))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{WithDB: true, InMemory: *inmem, RequireModel: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	files, failures, stats, err := ingest.Walk(ctx, *dir, ingest.WalkOptions{
		IncludeHidden:  *hidden,
		MaxFileSizeMB:  *maxMB,
		SkipDuplicates: *skipDupes,
	}, logger)
	if err != nil {
		logger.Error("failed to walk directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	for _, f := range failures {
		logger.Warn("batch.file.unreadable", "path", f.Path, "error", f.Err)
	}

	var (
		mu       sync.Mutex
		byStatus = make(map[constants.AnalysisStatus]int)
	)
	queue := async.NewProcessorQueue(a.Processor, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(len(files)+1),
		async.WithProcessTimeout(cfg.Server.RequestTimeout),
		async.WithResultFunc(func(_ async.Job, res *entity.Analysis, _ error) {
			mu.Lock()
			byStatus[res.Status]++
			mu.Unlock()
		}),
	)

	batchID := uuid.NewString()
	start := time.Now()
	for _, f := range files {
		job := async.Job{Path: f.Path, HashHex: f.HashHex, SubmittedAt: time.Now(), TraceID: batchID}
		if err := queue.Enqueue(ctx, job); err != nil {
			logger.Error("failed to enqueue", "path", f.Path, "error", err)
			break
		}
	}
	queue.Shutdown(ctx)

	exporter := export.NewService(a.Repo, logger)
	xlsx, err := exporter.ExportAnalysesXLSX(context.WithoutCancel(ctx), repository.ListOptions{Status: exportStatus})
	if err != nil {
		logger.Error("failed to export analyses", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"batch_id", batchID,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"unreadable", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files found: %d\n", len(files))
	for _, st := range constants.Statuses {
		if n := byStatus[st]; n > 0 {
			fmt.Printf("- %s: %d\n", st, n)
		}
	}
	fmt.Printf("- Output: %s\n", *out)
}
