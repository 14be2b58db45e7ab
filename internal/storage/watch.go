package storage

import (
	"context"
	"log/slog"
	"sync"

	"fintrack/internal/core"
)

// notifier fans a change signal out to subscribers. Signals are coalesced:
// a subscriber that has not drained its channel yet simply keeps the one
// pending signal, so a slow watcher never blocks a write.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan struct{})}
}

func (n *notifier) subscribe() (int, chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	return id, ch
}

func (n *notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WatchExpenses returns a channel carrying a fresh snapshot of the live
// expense view after every mutation, starting with the current state. The
// channel closes when ctx is cancelled.
func (s *Store) WatchExpenses(ctx context.Context) <-chan []core.ExpenseRecord {
	return watch(ctx, s.expenses, s.ListExpenses)
}

// WatchTrackedSenders is the tracked-sender counterpart of WatchExpenses.
func (s *Store) WatchTrackedSenders(ctx context.Context) <-chan []core.TrackedSender {
	return watch(ctx, s.senders, s.ListTrackedSenders)
}

func watch[T any](ctx context.Context, n *notifier, query func(context.Context) ([]T, error)) <-chan []T {
	out := make(chan []T, 1)
	id, signal := n.subscribe()

	go func() {
		defer n.unsubscribe(id)
		defer close(out)
		for {
			snapshot, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "watch query failed", "error", err)
			} else {
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
