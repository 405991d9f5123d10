package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watch indexes files created under root's tenant directories until ctx is
// cancelled. Writes that follow a create within the debounce window are
// folded into one index call; later modifications of an indexed file are
// ignored, since re-indexing would duplicate its chunks.
func (ix *Indexer) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer w.Close()

	excluded, err := ignore.Load(root)
	if err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	if err := addTree(w, root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	ix.logger.Info(ctx, "watching for new documents", zap.String("root", root))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(ix.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(ctx, w, root, event, pending)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn(ctx, "watcher error", zap.Error(err))

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < ix.debounce {
					continue
				}
				delete(pending, path)
				ix.indexWatched(ctx, root, path, excluded)
			}
		}
	}
}

func (ix *Indexer) handleEvent(ctx context.Context, w *fsnotify.Watcher, root string, event fsnotify.Event, pending map[string]time.Time) {
	switch {
	case event.Has(fsnotify.Create):
		if hidden(filepath.Base(event.Name)) {
			return
		}
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := addTree(w, event.Name); err != nil {
				ix.logger.Warn(ctx, "failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			// Files may land in the directory before its watch is active.
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err != nil || path == event.Name {
					return nil
				}
				if hidden(d.Name()) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if !d.IsDir() && Supported(path) {
					pending[path] = time.Now()
				}
				return nil
			})
			return
		}
		if Supported(event.Name) {
			pending[event.Name] = time.Now()
		}

	case event.Has(fsnotify.Write):
		if _, ok := pending[event.Name]; ok {
			pending[event.Name] = time.Now()
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(pending, event.Name)
	}
}

func (ix *Indexer) indexWatched(ctx context.Context, root, path string, excluded *ignore.Matcher) {
	if rel, err := filepath.Rel(root, path); err == nil && excluded.Match(rel, false) {
		ix.logger.Debug(ctx, "path excluded by "+ignore.FileName, zap.String("path", path))
		return
	}
	owner, err := tenant.FromPath(root, path)
	if err != nil {
		ix.logger.Warn(ctx, "skipping file outside a tenant directory", zap.String("path", path), zap.Error(err))
		return
	}
	r, err := ix.IndexFile(ctx, path, owner)
	if err != nil {
		ix.logger.Error(ctx, "failed to index file", zap.String("path", path), zap.Error(err))
		return
	}
	ix.logger.Info(ctx, "indexed file",
		zap.String("path", path),
		zap.String("tenant", owner),
		zap.Int("chunks", r.Chunks),
	)
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// hidden reports whether a file or directory name is a dotfile.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
