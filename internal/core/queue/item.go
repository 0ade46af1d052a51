package queue

import (
	"strconv"
	"strings"
)

// Item is one pending artifact and the number of failed delivery attempts
// recorded against it.
type Item struct {
	Path       string `json:"path"`
	RetryCount int    `json:"retry_count"`
}

// encodeLine renders an item as `<path>|<retryCount>`.
func encodeLine(it Item) string {
	return it.Path + "|" + strconv.Itoa(it.RetryCount)
}

// decodeLine parses a snapshot line. The path may itself contain '|', so the
// split happens on the last separator. A missing or malformed count reads as
// zero.
func decodeLine(line string) (Item, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Item{}, false
	}

	idx := strings.LastIndexByte(line, '|')
	if idx < 0 {
		return Item{Path: line}, true
	}

	path := line[:idx]
	if path == "" {
		return Item{}, false
	}

	n, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	if err != nil || n < 0 {
		n = 0
	}
	return Item{Path: path, RetryCount: n}, true
}
