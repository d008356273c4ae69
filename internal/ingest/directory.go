package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

// WalkOptions controls Walk. Zero value: default extensions, hidden entries skipped.
type WalkOptions struct {
	IncludeExts    []string // with or without '.', nil -> constants.AllowedExtensions
	IncludeHidden  bool
	MaxFileSizeMB  int // 0 -> no limit
	SkipDuplicates bool
}

// Walk finds every report under root, hashing each one. Unreadable entries are
// reported as failures and the walk continues. Files come back sorted by path.
func Walk(ctx context.Context, root string, opts WalkOptions, logger *slog.Logger) ([]File, []Failure, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	exts := constants.AllowedExtensions
	if len(opts.IncludeExts) > 0 {
		exts = make(map[string]struct{}, len(opts.IncludeExts))
		for _, e := range opts.IncludeExts {
			if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
				exts[e] = struct{}{}
			}
		}
	}
	maxBytes := int64(opts.MaxFileSizeMB) << 20

	var (
		files    []File
		failures []Failure
		stats    DirStats
		seen     = map[string]string{}
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			failures = append(failures, Failure{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if !opts.IncludeHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if _, ok := exts[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			return nil
		}

		f, err := Describe(path)
		if err != nil {
			failures = append(failures, Failure{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if maxBytes > 0 && f.Size > maxBytes {
			logger.Warn("ingest.file.too_large", "path", path, "bytes", f.Size)
			stats.Skipped++
			return nil
		}
		if first, dup := seen[f.HashHex]; dup && opts.SkipDuplicates {
			logger.Info("ingest.file.duplicate", "path", path, "same_as", first)
			stats.Skipped++
			return nil
		}
		seen[f.HashHex] = path
		stats.Matched++
		files = append(files, f)
		return nil
	})
	if err != nil {
		return files, failures, stats, fmt.Errorf("walk: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logger.Info("ingest.walk.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return files, failures, stats, nil
}
