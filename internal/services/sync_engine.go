package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

const defaultPageLimit = 100

// SyncStore is the slice of the ledger the engine reconciles.
type SyncStore interface {
	UnsyncedExpenses(ctx context.Context) ([]core.ExpenseRecord, error)
	MarkExpenseSynced(ctx context.Context, id, remoteID int64) error
	UpsertRemoteExpense(ctx context.Context, e core.ExpenseRecord) error
}

// TransactionService is the remote side of a sync pass.
type TransactionService interface {
	CreateTransaction(ctx context.Context, token string, r remote.CreateTransactionRequest) (remote.Transaction, error)
	ListTransactions(ctx context.Context, token string, limit, skip int) ([]remote.Transaction, error)
}

// Sessions provides the credentials for outbound requests.
type Sessions interface {
	Current(ctx context.Context) (core.Session, error)
}

// SyncEngine reconciles the local ledger against the transaction service.
// It schedules no retries of its own; a failed pass leaves the ledger
// unchanged and the caller re-invokes Sync on the next trigger.
type SyncEngine struct {
	store     SyncStore
	api       TransactionService
	sessions  Sessions
	pageLimit int
}

func NewSyncEngine(store SyncStore, api TransactionService, sessions Sessions, pageLimit int) *SyncEngine {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	return &SyncEngine{
		store:     store,
		api:       api,
		sessions:  sessions,
		pageLimit: pageLimit,
	}
}

// Sync runs one reconciliation pass. Push runs first so records created
// locally come back from the pull already marked synced instead of being
// re-inserted.
func (e *SyncEngine) Sync(ctx context.Context) error {
	if err := e.Push(ctx); err != nil {
		return err
	}
	return e.Pull(ctx)
}

// Push submits every pending expense record independently. A record that
// fails stays pending and does not block the rest; remote.ErrUnauthorized
// aborts the pass so the caller can invalidate the session.
func (e *SyncEngine) Push(ctx context.Context) error {
	sess, err := e.sessions.Current(ctx)
	if err != nil {
		return err
	}

	pending, err := e.store.UnsyncedExpenses(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	slog.DebugContext(ctx, "pushing pending expenses", "count", len(pending))

	for _, rec := range pending {
		tx, err := e.api.CreateTransaction(ctx, sess.Token, pushRequest(rec))
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				return err
			}
			slog.WarnContext(ctx, "push failed, record stays pending",
				"id", rec.ID, "error", err)
			continue
		}
		if err := e.store.MarkExpenseSynced(ctx, rec.ID, tx.ID); err != nil {
			return err
		}
		slog.InfoContext(ctx, "expense pushed", "id", rec.ID, "remote_id", tx.ID)
	}

	return nil
}

// Pull fetches one page of remote transactions and upserts each into the
// ledger keyed by remote id, so repeated pulls of an unchanged page leave
// exactly one row per remote transaction.
func (e *SyncEngine) Pull(ctx context.Context) error {
	sess, err := e.sessions.Current(ctx)
	if err != nil {
		return err
	}

	txs, err := e.api.ListTransactions(ctx, sess.Token, e.pageLimit, 0)
	if err != nil {
		return fmt.Errorf("list remote transactions: %w", err)
	}

	for _, tx := range txs {
		rec, err := pulledRecord(tx)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed remote transaction",
				"remote_id", tx.ID, "error", err)
			continue
		}
		if err := e.store.UpsertRemoteExpense(ctx, rec); err != nil {
			return err
		}
	}

	slog.DebugContext(ctx, "pull completed", "count", len(txs))
	return nil
}

func pushRequest(rec core.ExpenseRecord) remote.CreateTransactionRequest {
	return remote.CreateTransactionRequest{
		Amount:      rec.Amount.InexactFloat64(),
		Description: rec.Title,
		CategoryID:  core.CategoryID(rec.Category),
		// the service expects a full timestamp, not a bare date
		Date:   rec.Date.Format("2006-01-02") + "T12:00:00",
		Type:   "expense",
		Source: "manual",
	}
}

func pulledRecord(tx remote.Transaction) (core.ExpenseRecord, error) {
	if len(tx.Date) < 10 {
		return core.ExpenseRecord{}, fmt.Errorf("malformed date %q", tx.Date)
	}
	day, err := time.ParseInLocation("2006-01-02", tx.Date[:10], time.UTC)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("parse date: %w", err)
	}

	title := tx.Description
	if title == "" {
		title = "Без названия"
	}

	remoteID := tx.ID
	return core.ExpenseRecord{
		RemoteID:  &remoteID,
		Title:     title,
		Amount:    decimal.NewFromFloat(tx.Amount),
		Category:  core.CategoryName(tx.CategoryID),
		Date:      day,
		SyncState: core.SyncDone,
	}, nil
}
