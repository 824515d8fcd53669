package config

import (
	"context"
	"fmt"
	"path/filepath"

	"gastbokning/internal/pricing"

	"github.com/fsnotify/fsnotify"
)

// WatchTariff reloads the tariff file on change and calls onUpdate with the new
// price list. It performs an initial load before starting the watch loop. A file
// that fails to parse is reported to onError and the previous tariff stays in use.
func WatchTariff(ctx context.Context, path string, onUpdate func(*pricing.Tariff), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("watch tariff: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	t, err := pricing.LoadTariff(abs)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(t)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch tariff: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch tariff: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t, err := pricing.LoadTariff(abs)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onUpdate != nil {
					onUpdate(t)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}
