// Package events carries ledger domain events to downstream collaborators
// (the CRM layer, reporting, the audit log).
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// Kind names an event type. It doubles as the topic suffix on Kafka.
type Kind string

const (
	EntryPosted           Kind = "journal.entry_posted"
	EntryVoided           Kind = "journal.entry_voided"
	TransactionRecorded   Kind = "bank.transaction_recorded"
	TransactionReconciled Kind = "bank.transaction_reconciled"
	TransactionReopened   Kind = "bank.transaction_reopened"
)

// Event is a fact about a committed change. Events are published after the
// store transaction commits, so a consumer never sees an event for a change
// that was rolled back.
type Event struct {
	Kind        Kind                   `json:"kind"`
	SubjectID   string                 `json:"subject_id"`
	PrincipalID string                 `json:"principal_id,omitempty"`
	Amount      decimal.Decimal        `json:"amount"`
	Summary     string                 `json:"summary"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Entry       *model.JournalEntry    `json:"entry,omitempty"`
	Transaction *model.BankTransaction `json:"transaction,omitempty"`
}

// ForEntry builds an event about a journal entry. Amount is the entry's
// debit total.
func ForEntry(kind Kind, principalID string, e model.JournalEntry) Event {
	debits, _ := e.Totals()
	return Event{
		Kind:        kind,
		SubjectID:   e.ID,
		PrincipalID: principalID,
		Amount:      debits,
		Summary:     e.Description,
		OccurredAt:  time.Now().UTC(),
		Entry:       &e,
	}
}

// ForTransaction builds an event about a bank transaction.
func ForTransaction(kind Kind, principalID string, t model.BankTransaction) Event {
	summary := t.Merchant
	if t.Category != "" {
		summary += " -> " + t.Category
	}
	return Event{
		Kind:        kind,
		SubjectID:   t.ID,
		PrincipalID: principalID,
		Amount:      t.Amount,
		Summary:     summary,
		OccurredAt:  time.Now().UTC(),
		Transaction: &t,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
