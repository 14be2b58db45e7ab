// Package storage implements the local ledger: a durable SQLite store for
// expense records, tracked senders, captured messages and the login session,
// with change notification for live views.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for lookups of rows that do not exist. Callers
// performing optional lookups should treat it as a normal outcome.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Store is the on-device ledger. A single write connection serializes all
// mutations, so every operation either fully succeeds or fully fails.
type Store struct {
	db       *sql.DB
	expenses *notifier
	senders  *notifier
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// schema migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{
		db:       db,
		expenses: newNotifier(),
		senders:  newNotifier(),
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- expenses ---

// SaveExpense inserts a new expense record, or replaces the existing row
// when e.ID is already assigned. Returns the record's local id.
func (s *Store) SaveExpense(ctx context.Context, e core.ExpenseRecord) (int64, error) {
	var remoteID sql.NullInt64
	if e.RemoteID != nil {
		remoteID = sql.NullInt64{Int64: *e.RemoteID, Valid: true}
	}

	if e.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO expenses (remote_id, title, amount, category, date, sync_state, deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			remoteID, e.Title, e.Amount.String(), e.Category,
			e.Date.Format(dateLayout), string(e.SyncState), boolToInt(e.Deleted))
		if err != nil {
			return 0, fmt.Errorf("insert expense: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("expense insert id: %w", err)
		}
		s.expenses.broadcast()
		return id, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO expenses (id, remote_id, title, amount, category, date, sync_state, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, remoteID, e.Title, e.Amount.String(), e.Category,
		e.Date.Format(dateLayout), string(e.SyncState), boolToInt(e.Deleted))
	if err != nil {
		return 0, fmt.Errorf("replace expense: %w", err)
	}
	s.expenses.broadcast()
	return e.ID, nil
}

// ListExpenses returns all non-deleted expense records ordered by date
// descending, then id descending.
func (s *Store) ListExpenses(ctx context.Context) ([]core.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id, title, amount, category, date, sync_state, deleted
		 FROM expenses WHERE deleted = 0 ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// UnsyncedExpenses returns non-deleted records still waiting to be pushed.
func (s *Store) UnsyncedExpenses(ctx context.Context) ([]core.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id, title, amount, category, date, sync_state, deleted
		 FROM expenses WHERE sync_state = ? AND deleted = 0 ORDER BY id`,
		string(core.SyncPending))
	if err != nil {
		return nil, fmt.Errorf("list unsynced expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// MarkExpenseSynced records a successful push. A record that is no longer
// pending (already pushed by a concurrent sync) is left untouched.
func (s *Store) MarkExpenseSynced(ctx context.Context, id, remoteID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET sync_state = ?, remote_id = ? WHERE id = ? AND sync_state = ?`,
		string(core.SyncDone), remoteID, id, string(core.SyncPending))
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "expense no longer pending, skipping", "id", id)
		return nil
	}
	s.expenses.broadcast()
	return nil
}

// UpsertRemoteExpense inserts a pulled record, or refreshes the existing row
// with the same remote id. Pulled rows are already synced.
func (s *Store) UpsertRemoteExpense(ctx context.Context, e core.ExpenseRecord) error {
	if e.RemoteID == nil {
		return fmt.Errorf("upsert remote expense: missing remote id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (remote_id, title, amount, category, date, sync_state, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(remote_id) WHERE remote_id IS NOT NULL DO UPDATE SET
		     title = excluded.title,
		     amount = excluded.amount,
		     category = excluded.category,
		     date = excluded.date,
		     sync_state = excluded.sync_state`,
		*e.RemoteID, e.Title, e.Amount.String(), e.Category,
		e.Date.Format(dateLayout), string(core.SyncDone))
	if err != nil {
		return fmt.Errorf("upsert remote expense: %w", err)
	}
	s.expenses.broadcast()
	return nil
}

// SoftDeleteExpense hides an expense from all views without removing the row.
func (s *Store) SoftDeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE expenses SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.expenses.broadcast()
	return nil
}

// PurgeExpenses removes every expense row. Used on logout.
func (s *Store) PurgeExpenses(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return fmt.Errorf("purge expenses: %w", err)
	}
	s.expenses.broadcast()
	return nil
}

// --- tracked senders ---

// AddTrackedSender registers a sender to watch. Duplicates are ignored.
func (s *Store) AddTrackedSender(ctx context.Context, senderID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tracked_senders (sender_id) VALUES (?)`, senderID); err != nil {
		return fmt.Errorf("add tracked sender: %w", err)
	}
	s.senders.broadcast()
	return nil
}

func (s *Store) RemoveTrackedSender(ctx context.Context, senderID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_senders WHERE sender_id = ?`, senderID); err != nil {
		return fmt.Errorf("remove tracked sender: %w", err)
	}
	s.senders.broadcast()
	return nil
}

func (s *Store) ListTrackedSenders(ctx context.Context) ([]core.TrackedSender, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sender_id FROM tracked_senders ORDER BY sender_id`)
	if err != nil {
		return nil, fmt.Errorf("list tracked senders: %w", err)
	}
	defer rows.Close()

	var senders []core.TrackedSender
	for rows.Next() {
		var t core.TrackedSender
		if err := rows.Scan(&t.ID); err != nil {
			return nil, fmt.Errorf("scan tracked sender: %w", err)
		}
		senders = append(senders, t)
	}
	return senders, rows.Err()
}

// --- session ---

// GetSession returns the stored session, or a zero session when none exists.
func (s *Store) GetSession(ctx context.Context) (core.Session, error) {
	var (
		sess     core.Session
		loggedIn int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT logged_in, username, token FROM session WHERE id = 1`).
		Scan(&loggedIn, &sess.Username, &sess.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, nil
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.LoggedIn = loggedIn != 0
	return sess, nil
}

// SaveSession overwrites the singleton session row.
func (s *Store) SaveSession(ctx context.Context, sess core.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session (id, logged_in, username, token) VALUES (1, ?, ?, ?)`,
		boolToInt(sess.LoggedIn), sess.Username, sess.Token)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// --- captured messages ---

// InsertCapturedMessage appends a captured message to the history and
// returns its id.
func (s *Store) InsertCapturedMessage(ctx context.Context, m core.CapturedMessage) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captured_messages (sender, body, amount, received_at, processed)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Sender, m.Body, m.Amount.String(), m.ReceivedAt.UTC().Format(time.RFC3339Nano), boolToInt(m.Processed))
	if err != nil {
		return 0, fmt.Errorf("insert captured message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("captured message insert id: %w", err)
	}
	return id, nil
}

func (s *Store) GetCapturedMessage(ctx context.Context, id int64) (core.CapturedMessage, error) {
	var (
		m          core.CapturedMessage
		amount     string
		receivedAt string
		processed  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender, body, amount, received_at, processed
		 FROM captured_messages WHERE id = ?`, id).
		Scan(&m.ID, &m.Sender, &m.Body, &amount, &receivedAt, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CapturedMessage{}, ErrNotFound
	}
	if err != nil {
		return core.CapturedMessage{}, fmt.Errorf("get captured message: %w", err)
	}
	if err := fillCaptured(&m, amount, receivedAt, processed); err != nil {
		return core.CapturedMessage{}, err
	}
	return m, nil
}

// ListCapturedMessages returns the capture history, newest first.
func (s *Store) ListCapturedMessages(ctx context.Context) ([]core.CapturedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, body, amount, received_at, processed
		 FROM captured_messages ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list captured messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.CapturedMessage
	for rows.Next() {
		var (
			m          core.CapturedMessage
			amount     string
			receivedAt string
			processed  int64
		)
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &amount, &receivedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan captured message: %w", err)
		}
		if err := fillCaptured(&m, amount, receivedAt, processed); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkCapturedProcessed resolves a pending captured message. Returns
// ErrNotFound when the message does not exist or was already resolved, so
// Confirm and Defer act on a pending prompt exactly once.
func (s *Store) MarkCapturedProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE captured_messages SET processed = 1 WHERE id = ? AND processed = 0`, id)
	if err != nil {
		return fmt.Errorf("mark captured processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func fillCaptured(m *core.CapturedMessage, amount, receivedAt string, processed int64) error {
	var err error
	m.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("parse captured amount: %w", err)
	}
	m.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return fmt.Errorf("parse captured timestamp: %w", err)
	}
	m.Processed = processed != 0
	return nil
}

func scanExpenses(rows *sql.Rows) ([]core.ExpenseRecord, error) {
	var records []core.ExpenseRecord
	for rows.Next() {
		var (
			e        core.ExpenseRecord
			remoteID sql.NullInt64
			amount   string
			date     string
			state    string
			deleted  int64
		)
		if err := rows.Scan(&e.ID, &remoteID, &e.Title, &amount, &e.Category, &date, &state, &deleted); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if remoteID.Valid {
			rid := remoteID.Int64
			e.RemoteID = &rid
		}
		var err error
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse expense amount: %w", err)
		}
		e.Date, err = time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse expense date: %w", err)
		}
		e.SyncState = core.SyncState(state)
		e.Deleted = deleted != 0
		records = append(records, e)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
