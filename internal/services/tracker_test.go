package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/remote"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

type fakeKicker struct {
	kicks int
}

func (f *fakeKicker) Kick() { f.kicks++ }

type fakeAuth struct {
	login    func(ctx context.Context, email, password string) (remote.LoginResult, error)
	register func(ctx context.Context, r remote.RegisterRequest) (remote.User, error)
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (remote.LoginResult, error) {
	return f.login(ctx, email, password)
}

func (f *fakeAuth) Register(ctx context.Context, r remote.RegisterRequest) (remote.User, error) {
	return f.register(ctx, r)
}

func newTrackerFixture(t *testing.T, auth AuthService) (*Tracker, *storage.Store, *session.Manager, *fakeKicker) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := session.NewManager(store)
	kicker := &fakeKicker{}
	return NewTracker(store, auth, sessions, kicker), store, sessions, kicker
}

func TestCreateExpenseIsPendingAndKicks(t *testing.T) {
	ctx := context.Background()
	tracker, store, _, kicker := newTrackerFixture(t, nil)

	rec, err := tracker.CreateExpense(ctx, "кофе", decimal.RequireFromString("240.50"), "Еда",
		time.Date(2026, 1, 16, 18, 45, 12, 0, time.Local))
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, core.SyncPending, rec.SyncState)
	assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, 1, kicker.kicks)

	pending, err := store.UnsyncedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
}

func TestDeleteExpenseHidesRecord(t *testing.T) {
	ctx := context.Background()
	tracker, _, _, _ := newTrackerFixture(t, nil)

	rec, err := tracker.CreateExpense(ctx, "кофе", decimal.RequireFromString("100"), "Еда", time.Now())
	require.NoError(t, err)

	require.NoError(t, tracker.DeleteExpense(ctx, rec.ID))

	all, err := tracker.Expenses(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = tracker.DeleteExpense(ctx, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoginActivatesSessionAndKicks(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		login: func(ctx context.Context, email, password string) (remote.LoginResult, error) {
			assert.Equal(t, "user@example.com", email)
			assert.Equal(t, "secret", password)
			return remote.LoginResult{
				AccessToken: "tok-123",
				User:        remote.User{ID: 1, Email: "user@example.com"},
			}, nil
		},
	}
	tracker, _, sessions, kicker := newTrackerFixture(t, auth)

	require.NoError(t, tracker.Login(ctx, "user@example.com", "secret"))

	sess, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.True(t, sess.LoggedIn)
	assert.Equal(t, "user@example.com", sess.Username)
	assert.Equal(t, "tok-123", sess.Token)
	assert.Equal(t, 1, kicker.kicks)
}

func TestLoginFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		login: func(ctx context.Context, email, password string) (remote.LoginResult, error) {
			return remote.LoginResult{}, remote.ErrUnauthorized
		},
	}
	tracker, _, sessions, kicker := newTrackerFixture(t, auth)

	err := tracker.Login(ctx, "user@example.com", "wrong")
	require.ErrorIs(t, err, remote.ErrUnauthorized)

	sess, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.False(t, sess.LoggedIn)
	assert.Zero(t, kicker.kicks)
}

func TestRegisterDoesNotLogIn(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		register: func(ctx context.Context, r remote.RegisterRequest) (remote.User, error) {
			assert.Equal(t, "new@example.com", r.Email)
			assert.Equal(t, "Новый Пользователь", r.FullName)
			return remote.User{ID: 2, Email: r.Email}, nil
		},
	}
	tracker, _, sessions, _ := newTrackerFixture(t, auth)

	require.NoError(t, tracker.Register(ctx, "new@example.com", "secret", "Новый Пользователь"))

	sess, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.False(t, sess.LoggedIn)
}

func TestRegisterFailurePropagates(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		register: func(ctx context.Context, r remote.RegisterRequest) (remote.User, error) {
			return remote.User{}, errors.New("email already registered")
		},
	}
	tracker, _, _, _ := newTrackerFixture(t, auth)

	err := tracker.Register(ctx, "dup@example.com", "secret", "")
	require.Error(t, err)
}

func TestLogoutClearsSessionAndPurgesExpenses(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{
		login: func(ctx context.Context, email, password string) (remote.LoginResult, error) {
			return remote.LoginResult{AccessToken: "tok", User: remote.User{Email: email}}, nil
		},
	}
	tracker, _, sessions, _ := newTrackerFixture(t, auth)

	require.NoError(t, tracker.Login(ctx, "user@example.com", "secret"))
	_, err := tracker.CreateExpense(ctx, "кофе", decimal.RequireFromString("100"), "Еда", time.Now())
	require.NoError(t, err)

	require.NoError(t, tracker.Logout(ctx))

	sess, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.False(t, sess.LoggedIn)
	assert.Empty(t, sess.Token)

	all, err := tracker.Expenses(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTrackedSenderRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker, _, _, _ := newTrackerFixture(t, nil)

	require.NoError(t, tracker.AddTrackedSender(ctx, "900"))
	require.NoError(t, tracker.AddTrackedSender(ctx, "Tinkoff"))

	senders, err := tracker.TrackedSenders(ctx)
	require.NoError(t, err)
	require.Len(t, senders, 2)

	require.NoError(t, tracker.RemoveTrackedSender(ctx, "900"))
	senders, err = tracker.TrackedSenders(ctx)
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Equal(t, "Tinkoff", senders[0].ID)
}
