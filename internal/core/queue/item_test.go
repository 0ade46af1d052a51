package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Item
		ok   bool
	}{
		{name: "simple", line: "/tmp/a.png|2", want: Item{Path: "/tmp/a.png", RetryCount: 2}, ok: true},
		{name: "pipe in path", line: "/tmp/x|y.png|1", want: Item{Path: "/tmp/x|y.png", RetryCount: 1}, ok: true},
		{name: "bad count", line: "/tmp/a.png|abc", want: Item{Path: "/tmp/a.png"}, ok: true},
		{name: "negative count", line: "/tmp/a.png|-4", want: Item{Path: "/tmp/a.png"}, ok: true},
		{name: "no separator", line: "/tmp/a.png", want: Item{Path: "/tmp/a.png"}, ok: true},
		{name: "crlf", line: "/tmp/a.png|1\r", want: Item{Path: "/tmp/a.png", RetryCount: 1}, ok: true},
		{name: "blank", line: "   ", ok: false},
		{name: "empty path", line: "|3", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEncodeLine(t *testing.T) {
	assert.Equal(t, "/tmp/a.png|0", encodeLine(Item{Path: "/tmp/a.png"}))
	assert.Equal(t, "/tmp/x|y.png|2", encodeLine(Item{Path: "/tmp/x|y.png", RetryCount: 2}))
}
