// Package queue implements the durable FIFO of artifacts awaiting delivery.
//
// The in-memory order is mirrored to a single snapshot file that is replaced
// wholesale after every mutation, so a reader reopening after a crash sees
// the last committed state and never a partial write.
package queue

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileName is the snapshot file name inside the scratch folder.
const FileName = "upload-queue.txt"

// Queue is a disk-backed FIFO of Items. All methods are safe for concurrent
// use; mutations are serialized and each one returns only after the snapshot
// has been rewritten.
type Queue struct {
	path       string
	maxRetries int
	logger     zerolog.Logger

	mu     sync.Mutex
	items  []Item
	notify chan struct{}
}

// Open loads the snapshot at path. A missing file is an empty queue. Entries
// whose artifact no longer exists are dropped and the pruned snapshot is
// written back.
func Open(path string, maxRetries int, logger zerolog.Logger) (*Queue, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	q := &Queue{
		path:       path,
		maxRetries: maxRetries,
		logger:     logger,
		notify:     make(chan struct{}, 1),
	}

	items, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}

	kept := items[:0]
	for _, it := range items {
		if _, err := os.Stat(it.Path); err != nil {
			logger.Debug().Str("artifact", it.Path).Msg("dropping queue entry with missing artifact")
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept

	if len(kept) != len(items) {
		if err := q.save(); err != nil {
			return nil, err
		}
	}

	logger.Info().Int("size", len(kept)).Int("dropped", len(items)-len(kept)).Msg("queue loaded")
	return q, nil
}

// Path returns the snapshot file location.
func (q *Queue) Path() string {
	return q.path
}

// Enqueue appends path with a zero retry count. The path is made absolute.
// No duplicate suppression is performed.
func (q *Queue) Enqueue(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve artifact path: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, Item{Path: abs})
	if err := q.save(); err != nil {
		q.items = q.items[:len(q.items)-1]
		return err
	}

	q.signal()
	return nil
}

// PeekOldest returns the head of the queue without removing it.
func (q *Queue) PeekOldest() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// MarkComplete removes the first item matching path. Removing an absent path
// is a no-op and does not rewrite the snapshot.
func (q *Queue) MarkComplete(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(path)
	if idx < 0 {
		return nil
	}

	prev := q.items
	q.items = remove(q.items, idx)
	if err := q.save(); err != nil {
		q.items = prev
		return err
	}
	return nil
}

// IncrementRetry records a failed attempt against path. When the new count
// reaches the retry bound the item is discarded. It reports whether the item
// is still retained; an absent path reports false.
func (q *Queue) IncrementRetry(path string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(path)
	if idx < 0 {
		return false, nil
	}

	prev := append([]Item(nil), q.items...)
	retained := q.items[idx].RetryCount+1 < q.maxRetries
	if retained {
		q.items[idx].RetryCount++
	} else {
		q.items = remove(q.items, idx)
	}

	if err := q.save(); err != nil {
		q.items = prev
		return false, err
	}
	return retained, nil
}

// IsEmpty reports whether no items are queued.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Size returns the number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queue in FIFO order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...)
}

// Notify returns a channel that receives a value after an enqueue. It is
// coalescing: several enqueues may produce a single wake-up.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) indexOf(path string) int {
	for i, it := range q.items {
		if it.Path == path {
			return i
		}
	}
	return -1
}

func remove(items []Item, idx int) []Item {
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

// save must be called with mu held.
func (q *Queue) save() error {
	var buf bytes.Buffer
	for _, it := range q.items {
		buf.WriteString(encodeLine(it))
		buf.WriteByte('\n')
	}
	if err := writeAtomic(q.path, buf.Bytes()); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

// ReadSnapshot returns the items recorded in the snapshot at path without
// checking whether their artifacts exist.
func ReadSnapshot(path string) ([]Item, error) {
	return readSnapshot(path)
}

func readSnapshot(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}

	var items []Item
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if it, ok := decodeLine(sc.Text()); ok {
			items = append(items, it)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan queue snapshot: %w", err)
	}
	return items, nil
}

// writeAtomic replaces path with content via a synced temp file and rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
