// Package services orchestrates the core operations: the tracker facade the
// UI and settings layers call, and the sync engine reconciling the ledger
// with the remote transaction service.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/remote"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

// Kicker nudges the sync worker after a local mutation.
type Kicker interface {
	Kick()
}

// AuthService is the authentication side of the remote service.
type AuthService interface {
	Login(ctx context.Context, email, password string) (remote.LoginResult, error)
	Register(ctx context.Context, r remote.RegisterRequest) (remote.User, error)
}

// Tracker is the write API over the local ledger. Every mutation lands
// locally first; synchronization is advisory and happens in the background.
type Tracker struct {
	store    *storage.Store
	auth     AuthService
	sessions *session.Manager
	syncs    Kicker
}

func NewTracker(store *storage.Store, auth AuthService, sessions *session.Manager, syncs Kicker) *Tracker {
	return &Tracker{
		store:    store,
		auth:     auth,
		sessions: sessions,
		syncs:    syncs,
	}
}

// CreateExpense persists a new pending expense record and nudges the sync
// worker.
func (t *Tracker) CreateExpense(ctx context.Context, title string, amount decimal.Decimal, category string, date time.Time) (core.ExpenseRecord, error) {
	rec := core.ExpenseRecord{
		Title:     title,
		Amount:    amount,
		Category:  category,
		Date:      core.DateOnly(date),
		SyncState: core.SyncPending,
	}
	id, err := t.store.SaveExpense(ctx, rec)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("save expense: %w", err)
	}
	rec.ID = id

	slog.InfoContext(ctx, "expense saved locally",
		"id", id, "amount", amount, "category", category)

	t.kick()
	return rec, nil
}

// DeleteExpense hides an expense from all views. Deletion is local only.
func (t *Tracker) DeleteExpense(ctx context.Context, id int64) error {
	return t.store.SoftDeleteExpense(ctx, id)
}

func (t *Tracker) AddTrackedSender(ctx context.Context, senderID string) error {
	return t.store.AddTrackedSender(ctx, senderID)
}

func (t *Tracker) RemoveTrackedSender(ctx context.Context, senderID string) error {
	return t.store.RemoveTrackedSender(ctx, senderID)
}

// Login authenticates against the remote service, stores the session and
// triggers an immediate sync.
func (t *Tracker) Login(ctx context.Context, email, password string) error {
	res, err := t.auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := t.sessions.Activate(ctx, core.Session{
		LoggedIn: true,
		Username: res.User.Email,
		Token:    res.AccessToken,
	}); err != nil {
		return err
	}

	slog.InfoContext(ctx, "logged in", "user", res.User.Email)
	t.kick()
	return nil
}

// Register creates a remote account. It does not log in.
func (t *Tracker) Register(ctx context.Context, email, password, fullName string) error {
	_, err := t.auth.Register(ctx, remote.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Logout clears the session and purges the account's expenses from the
// device.
func (t *Tracker) Logout(ctx context.Context) error {
	if err := t.sessions.Clear(ctx); err != nil {
		return err
	}
	if err := t.store.PurgeExpenses(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "logged out, local ledger purged")
	return nil
}

// Expenses returns the current live view of non-deleted records.
func (t *Tracker) Expenses(ctx context.Context) ([]core.ExpenseRecord, error) {
	return t.store.ListExpenses(ctx)
}

func (t *Tracker) TrackedSenders(ctx context.Context) ([]core.TrackedSender, error) {
	return t.store.ListTrackedSenders(ctx)
}

// CapturedMessages returns the capture history for manual review.
func (t *Tracker) CapturedMessages(ctx context.Context) ([]core.CapturedMessage, error) {
	return t.store.ListCapturedMessages(ctx)
}

func (t *Tracker) WatchExpenses(ctx context.Context) <-chan []core.ExpenseRecord {
	return t.store.WatchExpenses(ctx)
}

func (t *Tracker) WatchTrackedSenders(ctx context.Context) <-chan []core.TrackedSender {
	return t.store.WatchTrackedSenders(ctx)
}

func (t *Tracker) kick() {
	if t.syncs != nil {
		t.syncs.Kick()
	}
}
