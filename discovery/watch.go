package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DevDir is where tty device nodes appear.
const DevDir = "/dev"

// Event reports a tty node appearing or disappearing.
type Event struct {
	Path  string
	Added bool
}

// Watch reports tty* nodes created in or removed from dir until ctx ends.
// The returned channel is closed when watching stops.
func Watch(ctx context.Context, log zerolog.Logger, dir string) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), "tty") {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				out := Event{Path: ev.Name, Added: ev.Has(fsnotify.Create)}
				log.Debug().Str("path", out.Path).Bool("added", out.Added).Msg("tty hotplug")
				select {
				case ch <- out:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("fsnotify error")
			}
		}
	}()
	return ch, nil
}
