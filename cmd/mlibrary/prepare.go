package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/library"
)

// findMetadataFiles walks each root for *_metadata.json files. A root that is
// itself a metadata file is taken as is. The result is sorted.
func findMetadataFiles(roots []string) ([]string, error) {
	found := make([]string, 0)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), library.MetadataSuffix) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(found)
	return found, nil
}

// prepareEntries assembles one entry document per metadata file. Documents are
// written next to their sources unless outDir is set. A failed entry is logged
// and skipped; the command fails if any entry failed.
func prepareEntries(ctx context.Context, roots []string, outDir string) error {
	files, err := findMetadataFiles(roots)
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	logutil.GetLogger(ctx).Info("metadata files found", zap.Int("count", len(files)))
	failed := 0
	for _, file := range files {
		logger := logutil.GetLogger(ctx).With(zap.String("metadata", file))
		raw, err := library.AssembleFiles(library.SourcesFor(file))
		if err != nil {
			failed++
			logger.Error("assemble entry failed", zap.Error(err))
			continue
		}
		target := library.EntryPath(file)
		if outDir != "" {
			target = filepath.Join(outDir, filepath.Base(target))
		}
		if err := os.WriteFile(target, raw, 0o644); err != nil {
			failed++
			logger.Error("write entry failed", zap.Error(err))
			continue
		}
		logger.Debug("entry written", zap.String("path", target))
	}
	logutil.GetLogger(ctx).Info("entries prepared", zap.Int("written", len(files)-failed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(files))
	}
	return nil
}
