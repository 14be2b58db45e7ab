package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
	done  chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return f.err
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSessions struct {
	sess core.Session
	err  error
}

func (f *fakeSessions) Current(ctx context.Context) (core.Session, error) {
	return f.sess, f.err
}

func loggedIn() *fakeSessions {
	return &fakeSessions{sess: core.Session{LoggedIn: true, Token: "tok"}}
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync pass")
	}
}

func TestStartRunsStartupSync(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	w := NewSyncWorker(syncer, loggedIn(), time.Hour, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	waitFor(t, syncer.done)
	if got := syncer.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestStartTwiceFails(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	w := NewSyncWorker(syncer, loggedIn(), time.Hour, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	if err := w.Start(ctx); err == nil {
		t.Error("second Start() = nil, want error")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	w := NewSyncWorker(&fakeSyncer{done: make(chan struct{}, 1)}, loggedIn(), time.Hour, nil)
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
}

func TestKickTriggersSync(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	w := NewSyncWorker(syncer, loggedIn(), time.Hour, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	waitFor(t, syncer.done) // startup pass

	w.Kick()
	waitFor(t, syncer.done)

	if got := syncer.callCount(); got < 2 {
		t.Errorf("calls = %d, want at least 2", got)
	}
}

func TestSyncSkippedWhenLoggedOut(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1)}
	w := NewSyncWorker(syncer, &fakeSessions{}, 10*time.Millisecond, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := syncer.callCount(); got != 0 {
		t.Errorf("calls = %d, want 0 while logged out", got)
	}
}

func TestUnauthorizedTriggersAuthFailureCallback(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1), err: remote.ErrUnauthorized}
	failed := make(chan struct{}, 1)
	w := NewSyncWorker(syncer, loggedIn(), time.Hour, func(ctx context.Context) {
		select {
		case failed <- struct{}{}:
		default:
		}
	})

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	waitFor(t, failed)
}

func TestTransientFailureDoesNotInvokeCallback(t *testing.T) {
	syncer := &fakeSyncer{done: make(chan struct{}, 1), err: errors.New("connection refused")}
	var mu sync.Mutex
	invoked := false
	w := NewSyncWorker(syncer, loggedIn(), time.Hour, func(ctx context.Context) {
		mu.Lock()
		invoked = true
		mu.Unlock()
	})

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, syncer.done)
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if invoked {
		t.Error("auth failure callback invoked on transient error")
	}
}
