package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 100 * time.Millisecond

// ScratchWatcher reports changes to files in the scratch folder. Bursts of
// events are coalesced into one notification.
type ScratchWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	changes chan struct{}

	mu       sync.Mutex
	debounce *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScratchWatcher watches dir, creating it if needed.
func NewScratchWatcher(dir string, logger zerolog.Logger) (*ScratchWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &ScratchWatcher{
		dir:     dir,
		watcher: watcher,
		logger:  logger,
		changes: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	sw.wg.Add(1)
	go sw.run()

	return sw, nil
}

// Changes fires after files in the folder are created, written or removed.
func (sw *ScratchWatcher) Changes() <-chan struct{} {
	return sw.changes
}

// Close stops watching. The Changes channel is not closed.
func (sw *ScratchWatcher) Close() error {
	sw.cancel()

	sw.mu.Lock()
	if sw.debounce != nil {
		sw.debounce.Stop()
	}
	sw.mu.Unlock()

	err := sw.watcher.Close()
	sw.wg.Wait()
	return err
}

func (sw *ScratchWatcher) run() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn().Err(err).Msg("scratch watcher error")
		}
	}
}

func (sw *ScratchWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// Temp files from queue snapshots and in-progress captures are renamed
	// into place; the rename itself produces the event that matters.
	if name := filepath.Base(event.Name); strings.HasSuffix(name, ".tmp") {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.debounce != nil {
		sw.debounce.Stop()
	}
	sw.debounce = time.AfterFunc(debounceDelay, sw.notify)
}

func (sw *ScratchWatcher) notify() {
	if sw.ctx.Err() != nil {
		return
	}
	select {
	case sw.changes <- struct{}{}:
	default:
	}
}
