// Package ratelimit holds the two process-wide token buckets that enforce
// the global download/upload ceilings (§5: "two token buckets; peer-link
// senders acquire tokens before writing. Cloud Transfer also charges the
// download bucket"), plus the schedule-rule evaluator that overrides the
// ceilings during configured time windows (§3 Global settings
// schedule-rules[], SUPPLEMENTED FEATURES in SPEC_FULL.md).
package ratelimit

import (
	"sync"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/logger"
	"golang.org/x/time/rate"
)

// unlimited is used as the bucket's burst/limit when a ceiling is zero,
// i.e. "no limit" per the Global settings semantics (§3).
const unlimited = rate.Inf

// Buckets owns the download and upload token buckets shared by every
// torrent engine and the cloud transfer subsystem in one process.
type Buckets struct {
	mu sync.Mutex

	Download *rate.Limiter
	Upload   *rate.Limiter

	rules []ScheduleRule
	log   logger.Logger
}

// ScheduleRule overrides the ceilings during a time window, mirroring
// config.ScheduleRule.
type ScheduleRule struct {
	Days            []time.Weekday
	StartHour       int
	EndHour         int
	DownloadCeiling int64
	UploadCeiling   int64
}

// New creates the process-wide buckets from the configured steady-state
// ceilings (bytes/sec); zero means unlimited.
func New(downloadCeiling, uploadCeiling int64, rules []ScheduleRule, l logger.Logger) *Buckets {
	b := &Buckets{rules: rules, log: l}
	b.Download = limiterFor(downloadCeiling)
	b.Upload = limiterFor(uploadCeiling)
	return b
}

// Reconfigure applies new base ceilings and schedule rules in place
// (§6 update_settings), mutating the shared Download/Upload limiters
// rather than replacing them so every engine holding a *rate.Limiter
// pointer picks up the change immediately.
func (b *Buckets) Reconfigure(downloadCeiling, uploadCeiling int64, rules []ScheduleRule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = rules
	b.setLimit(b.Download, downloadCeiling)
	b.setLimit(b.Upload, uploadCeiling)
}

func limiterFor(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return rate.NewLimiter(unlimited, 0)
	}
	// Burst equal to one second's worth keeps short bursts smooth without
	// letting the bucket drift far from the steady-state ceiling.
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// ApplySchedule re-derives the effective ceilings for "now" from the base
// ceilings and any matching schedule rule; when several rules match, the
// last one in the list wins. The session does not call it, so the ceilings
// change only when a caller invokes it explicitly.
func (b *Buckets) ApplySchedule(now time.Time, baseDownload, baseUpload int64) {
	dl, ul := baseDownload, baseUpload
	for _, r := range b.rules {
		if !r.matches(now) {
			continue
		}
		dl, ul = r.DownloadCeiling, r.UploadCeiling
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLimit(b.Download, dl)
	b.setLimit(b.Upload, ul)
}

func (b *Buckets) setLimit(l *rate.Limiter, bytesPerSec int64) {
	if bytesPerSec <= 0 {
		l.SetLimit(unlimited)
		return
	}
	l.SetLimit(rate.Limit(bytesPerSec))
	l.SetBurst(int(bytesPerSec))
}

func (r ScheduleRule) matches(now time.Time) bool {
	if len(r.Days) > 0 {
		found := false
		for _, d := range r.Days {
			if d == now.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	h := now.Hour()
	if r.StartHour <= r.EndHour {
		return h >= r.StartHour && h < r.EndHour
	}
	// Window wraps past midnight, e.g. 22 -> 6.
	return h >= r.StartHour || h < r.EndHour
}
