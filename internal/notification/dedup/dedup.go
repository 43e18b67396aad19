// Package dedup decides whether a notification observed by one producer was
// already surfaced by another one.
package dedup

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
)

type Reason string

const (
	ReasonNone     Reason = ""
	ReasonIdentity Reason = "identity"
	ReasonSimilar  Reason = "similar"
)

type Result struct {
	Fresh       bool
	DuplicateOf *domain.Notification
	Reason      Reason
}

type Config struct {
	// LiveWindow bounds the exact id check.
	LiveWindow time.Duration
	// SimilarityWindow bounds the signature check.
	SimilarityWindow time.Duration
	Signature        SignatureFunc
}

type entry struct {
	event     domain.Notification
	signature string
	at        time.Time
}

// Deduper keeps a time-windowed log of admitted events ordered by arrival.
type Deduper struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     Config
	entries []entry
}

func New(clk clock.Clock, cfg Config) *Deduper {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Deduper{clock: clk, cfg: normalize(cfg)}
}

// Reconfigure swaps windows and signature; the log is kept.
func (d *Deduper) Reconfigure(cfg Config) {
	d.mu.Lock()
	d.cfg = normalize(cfg)
	d.mu.Unlock()
}

// Admit records event when it is fresh. A duplicate is reported with the
// logged event it matched and is not recorded.
func (d *Deduper) Admit(event domain.Notification) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	d.prune(now)

	for i := range d.entries {
		e := d.entries[i]
		if e.event.ID == event.ID && now.Sub(e.at) <= d.cfg.LiveWindow {
			match := e.event
			return Result{DuplicateOf: &match, Reason: ReasonIdentity}
		}
	}

	signature := d.cfg.Signature(event)
	for i := range d.entries {
		e := d.entries[i]
		if e.signature == signature && now.Sub(e.at) <= d.cfg.SimilarityWindow {
			match := e.event
			return Result{DuplicateOf: &match, Reason: ReasonSimilar}
		}
	}

	d.entries = append(d.entries, entry{event: event, signature: signature, at: now})
	return Result{Fresh: true}
}

// Seen reports whether id is still in the log.
func (d *Deduper) Seen(id snowflake.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.event.ID == id {
			return true
		}
	}
	return false
}

// Len is the number of logged events.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Deduper) prune(now time.Time) {
	horizon := d.cfg.LiveWindow
	if d.cfg.SimilarityWindow > horizon {
		horizon = d.cfg.SimilarityWindow
	}
	cutoff := now.Add(-horizon)

	keep := 0
	for keep < len(d.entries) && d.entries[keep].at.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		d.entries = append(d.entries[:0], d.entries[keep:]...)
	}
}

func normalize(cfg Config) Config {
	if cfg.LiveWindow <= 0 {
		cfg.LiveWindow = 5 * time.Second
	}
	if cfg.SimilarityWindow <= 0 {
		cfg.SimilarityWindow = 3 * time.Second
	}
	if cfg.Signature == nil {
		cfg.Signature = DefaultSignature(10)
	}
	return cfg
}
