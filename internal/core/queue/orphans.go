package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AdoptOrphans appends artifacts in dir matching *.ext that the queue does
// not reference. Artifacts are named by capture timestamp, so name order is
// capture order. It returns the number of adopted artifacts.
func (q *Queue) AdoptOrphans(dir, ext string) (int, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return 0, nil
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("resolve scratch dir: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(absDir), "*."+ext)
	if err != nil {
		return 0, fmt.Errorf("scan scratch dir: %w", err)
	}
	sort.Strings(matches)

	q.mu.Lock()
	defer q.mu.Unlock()

	known := make(map[string]struct{}, len(q.items))
	for _, it := range q.items {
		known[it.Path] = struct{}{}
	}

	prevLen := len(q.items)
	for _, m := range matches {
		p := filepath.Join(absDir, filepath.FromSlash(m))
		if _, ok := known[p]; ok {
			continue
		}
		q.items = append(q.items, Item{Path: p})
	}

	adopted := len(q.items) - prevLen
	if adopted == 0 {
		return 0, nil
	}

	if err := q.save(); err != nil {
		q.items = q.items[:prevLen]
		return 0, err
	}

	q.logger.Info().Int("adopted", adopted).Msg("adopted orphaned artifacts")
	q.signal()
	return adopted, nil
}
