package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/colonyops/auditagent/internal/core/capture"
	"github.com/colonyops/auditagent/internal/core/queue"
)

// QueueDirCheck inspects the scratch folder and the persisted queue file.
type QueueDirCheck struct {
	dir      string
	maxBytes int64
}

// NewQueueDirCheck creates a queue directory check. maxBytes is the folder
// size at which disk pressure is asserted; zero skips the size item.
func NewQueueDirCheck(dir string, maxBytes int64) *QueueDirCheck {
	return &QueueDirCheck{dir: dir, maxBytes: maxBytes}
}

func (c *QueueDirCheck) Name() string {
	return "Queue"
}

func (c *QueueDirCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	info, err := os.Stat(c.dir)
	switch {
	case os.IsNotExist(err):
		result.Items = append(result.Items, warn(c.dir, "directory does not exist (created on start)"))
		return result
	case err != nil:
		result.Items = append(result.Items, fail(c.dir, fmt.Sprintf("inaccessible: %v", err)))
		return result
	case !info.IsDir():
		result.Items = append(result.Items, fail(c.dir, "path is not a directory"))
		return result
	}

	if err := checkWritable(c.dir); err != nil {
		result.Items = append(result.Items, fail(c.dir, fmt.Sprintf("not writable: %v", err)))
		return result
	}
	result.Items = append(result.Items, pass(c.dir, "writable"))

	queueFile := filepath.Join(c.dir, queue.FileName)
	_, statErr := os.Stat(queueFile)
	items, err := queue.ReadSnapshot(queueFile)
	switch {
	case errors.Is(statErr, os.ErrNotExist):
		result.Items = append(result.Items, pass(queue.FileName, "no queue file yet"))
	case err != nil:
		result.Items = append(result.Items, fail(queue.FileName, err.Error()))
	default:
		missing := 0
		for _, it := range items {
			if _, err := os.Stat(it.Path); err != nil {
				missing++
			}
		}
		if missing > 0 {
			result.Items = append(result.Items, warn(queue.FileName,
				fmt.Sprintf("%d pending, %d missing on disk", len(items), missing)))
		} else {
			result.Items = append(result.Items, pass(queue.FileName, fmt.Sprintf("%d pending", len(items))))
		}
	}

	if c.maxBytes > 0 {
		size, err := capture.FolderSize(c.dir)
		switch {
		case err != nil:
			result.Items = append(result.Items, fail("scratch size", err.Error()))
		case size >= c.maxBytes:
			result.Items = append(result.Items, warn("scratch size",
				fmt.Sprintf("%d of %d bytes, capture will suspend", size, c.maxBytes)))
		default:
			result.Items = append(result.Items, pass("scratch size",
				fmt.Sprintf("%d of %d bytes", size, c.maxBytes)))
		}
	}

	return result
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".doctor-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
