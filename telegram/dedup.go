package telegram

import (
	"sync"
	"time"

	"github.com/sigurn/crc16"
	"go.uber.org/atomic"
)

// crcTable uses the wM-Bus CRC (EN 13757-4) for telegram fingerprints.
var crcTable = crc16.MakeTable(crc16.CRC16_EN_13757)

type dedupKey struct {
	crc uint16
	n   int
}

// Dedup drops a telegram that was already passed on within the window.
// Dongles listening on C1 and T1 at once commonly report the same frame twice.
type Dedup struct {
	next   Handler
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[dedupKey]time.Time

	dropped atomic.Int64
}

// NewDedup returns a filter in front of next. A zero window passes every
// telegram through.
func NewDedup(next Handler, window time.Duration) *Dedup {
	return &Dedup{
		next:   next,
		window: window,
		now:    time.Now,
		seen:   make(map[dedupKey]time.Time),
	}
}

// HandleTelegram forwards t unless the same payload was seen within the window.
func (d *Dedup) HandleTelegram(t Telegram) {
	if d.window <= 0 {
		d.next.HandleTelegram(t)
		return
	}

	key := dedupKey{crc: crc16.Checksum(t.Payload, crcTable), n: len(t.Payload)}
	now := d.now()

	d.mu.Lock()
	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		d.dropped.Inc()
		return
	}
	d.seen[key] = now
	d.mu.Unlock()

	d.next.HandleTelegram(t)
}

// Dropped returns how many duplicates were suppressed.
func (d *Dedup) Dropped() int64 { return d.dropped.Load() }
