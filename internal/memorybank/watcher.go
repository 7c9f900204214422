package memorybank

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid note edits into a single change event.
const DefaultDebounce = 500 * time.Millisecond

// Watch monitors the notes directory and invokes onChange with the batch of
// changed note names after each debounce window. Blocks until ctx is done.
func (b *Bank) Watch(ctx context.Context, debounce time.Duration, onChange func(names []string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("memorybank: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(b.dir); err != nil {
		return fmt.Errorf("memorybank: watch notes dir: %w", err)
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop() // Don't fire immediately.

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[name] = true
				timer.Reset(debounce)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			names := make([]string, 0, len(pending))
			for n := range pending {
				names = append(names, n)
			}
			pending = make(map[string]bool)
			onChange(names)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
