// Package core holds the domain types shared by the ledger, the capture
// pipeline and the sync engine, plus the amount extraction and category
// mapping logic.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncState tracks whether an expense record has been acknowledged by the
// remote transaction service.
type SyncState string

const (
	// SyncPending marks a record that exists only locally.
	SyncPending SyncState = "pending"
	// SyncDone marks a record the remote service has acknowledged.
	SyncDone SyncState = "synced"
)

// ExpenseRecord is a single expense in the local ledger.
//
// ID is assigned by the ledger at creation and never reused. RemoteID is
// populated only after a successful push; a record with SyncState == SyncDone
// always carries a non-nil RemoteID.
type ExpenseRecord struct {
	ID        int64
	RemoteID  *int64
	Title     string
	Amount    decimal.Decimal
	Category  string
	Date      time.Time // calendar day, no time component
	SyncState SyncState
	Deleted   bool
}

// TrackedSender is a sender identifier (phone number or name) the capture
// pipeline watches for.
type TrackedSender struct {
	ID string
}

// CapturedMessage is an inbound message that matched a tracked sender and
// yielded an amount. Immutable except for Processed.
type CapturedMessage struct {
	ID         int64
	Sender     string
	Body       string
	Amount     decimal.Decimal
	ReceivedAt time.Time
	Processed  bool
}

// Session is the singleton login state. Overwritten wholesale on login and
// fully cleared on logout.
type Session struct {
	LoggedIn bool
	Username string
	Token    string
}

// DateOnly truncates t to its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
