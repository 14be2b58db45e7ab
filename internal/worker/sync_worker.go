// Package worker runs the sync trigger loop: once at startup, after every
// kick from a local mutation, and periodically as a catch-up.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

const defaultInterval = 5 * time.Minute

// Syncer runs one reconciliation pass.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Sessions tells the worker whether anyone is logged in.
type Sessions interface {
	Current(ctx context.Context) (core.Session, error)
}

// SyncWorker owns the background sync schedule. Failed passes are simply
// retried on the next trigger; an authentication failure invokes the
// configured callback so the caller can force a logout.
type SyncWorker struct {
	syncer        Syncer
	sessions      Sessions
	interval      time.Duration
	onAuthFailure func(ctx context.Context)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	kickCh  chan struct{}
}

func NewSyncWorker(syncer Syncer, sessions Sessions, interval time.Duration, onAuthFailure func(ctx context.Context)) *SyncWorker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &SyncWorker{
		syncer:        syncer,
		sessions:      sessions,
		interval:      interval,
		onAuthFailure: onAuthFailure,
		kickCh:        make(chan struct{}, 1),
	}
}

// Start begins the trigger loop. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "sync worker started", "interval", w.interval)
	return nil
}

// Stop gracefully stops the worker and waits for completion.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		slog.InfoContext(ctx, "sync worker stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the worker is currently running.
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Kick requests a sync pass without blocking. Kicks arriving while a pass is
// already queued are coalesced.
func (w *SyncWorker) Kick() {
	select {
	case w.kickCh <- struct{}{}:
	default:
	}
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// startup trigger
	w.syncOnce(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-w.kickCh:
			w.syncOnce(ctx)
		case <-ticker.C:
			w.syncOnce(ctx)
		}
	}
}

func (w *SyncWorker) syncOnce(ctx context.Context) {
	sess, err := w.sessions.Current(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "sync skipped, session unavailable", "error", err)
		return
	}
	if !sess.LoggedIn {
		slog.DebugContext(ctx, "sync skipped, no active session")
		return
	}

	if err := w.syncer.Sync(ctx); err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			slog.WarnContext(ctx, "session rejected by remote service, forcing logout")
			if w.onAuthFailure != nil {
				w.onAuthFailure(ctx)
			}
			return
		}
		slog.WarnContext(ctx, "sync attempt failed, will retry on next trigger", "error", err)
	}
}
