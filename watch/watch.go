// Package watch wraps fsnotify for the two things kclib watches: local
// translation data files that should be reloaded when edited, and an inbox
// directory that receives captured response payloads.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Files watches the given files and calls onChange with the path as passed
// in whenever one of them is created or written. The parent directories are
// watched rather than the files, so editors that replace a file on save are
// still seen.
//
// If ready is non-nil, a value is sent once the watcher is set up. Files
// blocks until ctx is done.
func Files(ctx context.Context, paths []string, onChange func(path string), ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	byAbs := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		byAbs[abs] = p
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	if ready != nil {
		ready <- struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if p, ok := byAbs[abs]; ok {
				onChange(p)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching files: %w", err)
		}
	}
}

// Inbox calls onFile for every .json file already in dir and then for every
// .json file created or written there until ctx is done. A file may be
// delivered more than once; callers that care must dedupe.
//
// If ready is non-nil, a value is sent after the initial scan.
func Inbox(ctx context.Context, dir string, onFile func(path string), ready chan<- struct{}) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// The watcher is registered first so files created during the scan are
	// not missed.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		onFile(filepath.Join(dir, entry.Name()))
	}

	if ready != nil {
		ready <- struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			onFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching inbox: %w", err)
		}
	}
}
