// Package policy holds the operating parameters sourced from the collector.
// A Policy is an immutable snapshot; the Cache swaps whole snapshots so
// readers never observe a partial update.
package policy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Policy is an immutable snapshot of remote operating parameters.
type Policy struct {
	CaptureInterval    time.Duration
	IdleTimeout        time.Duration
	HeartbeatInterval  time.Duration
	DiskLockFraction   float64
	DiskUnlockFraction float64
	AckTimeout         time.Duration
	MaxQueueFolderMB   int64
}

// Defaults returns the hardcoded fallback used until the first successful
// fetch, and per field when the collector omits a value.
func Defaults() Policy {
	return Policy{
		CaptureInterval:    3 * time.Second,
		IdleTimeout:        12 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		DiskLockFraction:   0.9,
		DiskUnlockFraction: 0.5,
		AckTimeout:         20 * time.Second,
		MaxQueueFolderMB:   10,
	}
}

// MaxQueueFolderBytes returns the scratch folder cap in bytes.
func (p Policy) MaxQueueFolderBytes() int64 {
	return p.MaxQueueFolderMB * 1024 * 1024
}

// Document is the JSON settings document served by the collector. Unknown
// fields are ignored; nil or non-positive fields fall back to defaults.
// configAckTimeout, unlockThreshold and tempFolderMaxSizeMB are agent-side
// names the collector must serve explicitly.
type Document struct {
	CaptureInterval   *int   `json:"configCaptureInterval"`
	IdleTimeout       *int   `json:"configIdleTimeout"`
	HeartbeatInterval *int   `json:"configHeartbeatInterval"`
	AckTimeout        *int   `json:"configAckTimeout"`
	LockThreshold     *int   `json:"lockThreshold"`
	UnlockThreshold   *int   `json:"unlockThreshold"`
	MaxFolderSizeMB   *int64 `json:"tempFolderMaxSizeMB"`
}

// Parse decodes a settings document into a Policy.
func Parse(data []byte) (Policy, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("decode settings: %w", err)
	}
	return doc.Policy(), nil
}

// Policy converts the document, applying per-field defaults.
func (d Document) Policy() Policy {
	p := Defaults()

	seconds := func(v *int, dst *time.Duration) {
		if v != nil && *v > 0 {
			*dst = time.Duration(*v) * time.Second
		}
	}
	seconds(d.CaptureInterval, &p.CaptureInterval)
	seconds(d.IdleTimeout, &p.IdleTimeout)
	seconds(d.HeartbeatInterval, &p.HeartbeatInterval)
	seconds(d.AckTimeout, &p.AckTimeout)

	if d.LockThreshold != nil && *d.LockThreshold > 0 && *d.LockThreshold <= 100 {
		p.DiskLockFraction = float64(*d.LockThreshold) / 100
	}
	if d.UnlockThreshold != nil && *d.UnlockThreshold > 0 && *d.UnlockThreshold <= 100 {
		p.DiskUnlockFraction = float64(*d.UnlockThreshold) / 100
	}
	// The low-water mark must sit below the high-water mark or the
	// hysteresis band collapses.
	if p.DiskUnlockFraction >= p.DiskLockFraction {
		p.DiskUnlockFraction = p.DiskLockFraction / 2
	}

	if d.MaxFolderSizeMB != nil && *d.MaxFolderSizeMB > 0 {
		p.MaxQueueFolderMB = *d.MaxFolderSizeMB
	}

	return p
}
