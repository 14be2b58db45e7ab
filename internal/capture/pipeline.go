// Package capture turns inbound text messages into reviewable expense
// candidates: filter by tracked sender, extract the amount, persist the
// capture, raise a prompt, and resolve it on Confirm or Defer.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"fintrack/internal/core"
)

const defaultMaxConcurrent = 4

// Store is the slice of the ledger the pipeline reads and writes.
type Store interface {
	ListTrackedSenders(ctx context.Context) ([]core.TrackedSender, error)
	InsertCapturedMessage(ctx context.Context, m core.CapturedMessage) (int64, error)
	GetCapturedMessage(ctx context.Context, id int64) (core.CapturedMessage, error)
	MarkCapturedProcessed(ctx context.Context, id int64) error
}

// ExpenseCreator creates the expense record when a capture is confirmed.
type ExpenseCreator interface {
	CreateExpense(ctx context.Context, title string, amount decimal.Decimal, category string, date time.Time) (core.ExpenseRecord, error)
}

// PromptRequest carries everything the prompt mechanism needs to display an
// actionable choice and route the answer back.
type PromptRequest struct {
	CorrelationID int64
	Sender        string
	Amount        decimal.Decimal
}

// Prompter is the outbound port to the prompt mechanism.
type Prompter interface {
	Prompt(ctx context.Context, req PromptRequest) error
	Cancel(correlationID int64)
}

// Pipeline processes each inbound message on its own goroutine, bounded by a
// semaphore. Steps for a single message run strictly in order; distinct
// messages may overlap.
type Pipeline struct {
	store    Store
	prompter Prompter
	expenses ExpenseCreator
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func NewPipeline(store Store, prompter Prompter, expenses ExpenseCreator, maxConcurrent int64) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Pipeline{
		store:    store,
		prompter: prompter,
		expenses: expenses,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// HandleMessage accepts a delivered {sender, body} pair and returns
// immediately. The work is registered before the goroutine starts and
// survives cancellation of the delivering context; Shutdown waits for it.
func (p *Pipeline) HandleMessage(ctx context.Context, sender, body string) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		p.process(ctx, sender, body)
	}()
}

func (p *Pipeline) process(ctx context.Context, sender, body string) {
	tracked, err := p.store.ListTrackedSenders(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "capture: list tracked senders", "error", err)
		return
	}
	if !matchesTracked(sender, tracked) {
		slog.DebugContext(ctx, "capture: sender not tracked, dropping", "sender", sender)
		return
	}

	amount, err := core.ExtractAmount(body)
	if err != nil {
		slog.DebugContext(ctx, "capture: no amount in message, dropping", "sender", sender)
		return
	}

	id, err := p.store.InsertCapturedMessage(ctx, core.CapturedMessage{
		Sender:     sender,
		Body:       body,
		Amount:     amount,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		// no prompt without a resolvable row
		slog.ErrorContext(ctx, "capture: persist message", "sender", sender, "error", err)
		return
	}

	if err := p.prompter.Prompt(ctx, PromptRequest{
		CorrelationID: id,
		Sender:        sender,
		Amount:        amount,
	}); err != nil {
		slog.WarnContext(ctx, "capture: prompt failed, message kept for manual review",
			"id", id, "error", err)
		return
	}

	slog.InfoContext(ctx, "capture prompted", "id", id, "sender", sender, "amount", amount)
}

// Confirm resolves a pending capture by creating an expense record with the
// captured amount, the default category and today's date.
func (p *Pipeline) Confirm(ctx context.Context, correlationID int64) error {
	msg, err := p.store.GetCapturedMessage(ctx, correlationID)
	if err != nil {
		return err
	}
	if err := p.store.MarkCapturedProcessed(ctx, correlationID); err != nil {
		return err
	}

	if _, err := p.expenses.CreateExpense(ctx, core.CaptureTitle, msg.Amount,
		core.DefaultCategory, core.DateOnly(time.Now())); err != nil {
		return fmt.Errorf("create expense from capture: %w", err)
	}

	p.prompter.Cancel(correlationID)
	slog.InfoContext(ctx, "capture confirmed", "id", correlationID, "amount", msg.Amount)
	return nil
}

// Defer resolves a pending capture without creating a record; the message
// stays in history for manual review.
func (p *Pipeline) Defer(ctx context.Context, correlationID int64) error {
	if err := p.store.MarkCapturedProcessed(ctx, correlationID); err != nil {
		return err
	}
	p.prompter.Cancel(correlationID)
	slog.InfoContext(ctx, "capture deferred", "id", correlationID)
	return nil
}

// Shutdown blocks until all in-flight messages have finished processing, or
// ctx expires.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// matchesTracked reports whether the sender matches any tracked entry.
// Matching is case-insensitive substring containment in either direction.
func matchesTracked(sender string, tracked []core.TrackedSender) bool {
	s := strings.ToLower(strings.TrimSpace(sender))
	if s == "" {
		return false
	}
	for _, t := range tracked {
		id := strings.ToLower(t.ID)
		if id == "" {
			continue
		}
		if strings.Contains(s, id) || strings.Contains(id, s) {
			return true
		}
	}
	return false
}
