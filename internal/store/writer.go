package store

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Writer saves snapshots asynchronously so hand play never blocks on
// disk. Failed saves are retried with backoff; when the queue is full
// the oldest pending snapshot is dropped, since a newer snapshot for
// the same session supersedes it anyway.
type Writer struct {
	store   Store
	logger  *log.Logger
	clock   quartz.Clock
	queue   chan *Snapshot
	done    chan struct{}
	wg      sync.WaitGroup
	retries int
	backoff time.Duration

	mu      sync.Mutex
	dropped int
	failed  int
}

// NewWriter starts the background worker. Close must be called to
// drain and stop it.
func NewWriter(s Store, logger *log.Logger, clock quartz.Clock, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Writer{
		store:   s,
		logger:  logger.WithPrefix("store"),
		clock:   clock,
		queue:   make(chan *Snapshot, queueSize),
		done:    make(chan struct{}),
		retries: 3,
		backoff: time.Second,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue submits a snapshot for saving without blocking. When the
// queue is full the oldest entry is discarded to make room.
func (w *Writer) Enqueue(snap *Snapshot) {
	for {
		select {
		case w.queue <- snap:
			return
		default:
		}
		select {
		case old := <-w.queue:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
			w.logger.Warn("persistence queue full, dropping oldest",
				"session", old.SessionID)
		default:
		}
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case snap := <-w.queue:
			w.save(snap)
		case <-w.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case snap := <-w.queue:
					w.save(snap)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) save(snap *Snapshot) {
	var err error
	for attempt := 1; attempt <= w.retries; attempt++ {
		if err = w.store.Save(snap); err == nil {
			return
		}
		w.logger.Warn("snapshot save failed",
			"session", snap.SessionID, "attempt", attempt, "error", err)
		if attempt < w.retries {
			t := w.clock.NewTimer(w.backoff * time.Duration(attempt))
			select {
			case <-t.C:
			case <-w.done:
				t.Stop()
			}
		}
	}
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	w.logger.Error("snapshot save abandoned", "session", snap.SessionID, "error", err)
}

// Dropped returns how many snapshots were discarded by a full queue.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Failed returns how many snapshots exhausted their retries.
func (w *Writer) Failed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// Close drains the queue and stops the worker.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}
