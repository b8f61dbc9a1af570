package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/auth"
	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// DefaultPageSize is how many entries List loads per store read.
const DefaultPageSize = 100

// Engine is the only component that creates posted financial records.
// Posting an entry and applying its balance deltas happen in one store
// transaction.
type Engine struct {
	store    store.Store
	accounts *accounts.Registry
	pub      events.Publisher
	log      *slog.Logger
	now      func() time.Time

	// PageSize bounds each store read made by List.
	PageSize int
}

// NewEngine creates a journal Engine. A nil publisher discards events and a
// nil logger uses slog.Default.
func NewEngine(s store.Store, reg *accounts.Registry, pub events.Publisher, logger *slog.Logger) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    s,
		accounts: reg,
		pub:      pub,
		log:      logger,
		now:      time.Now,
		PageSize: DefaultPageSize,
	}
}

// PostParams holds parameters for a new journal entry. A line's AccountID
// may be an account ID or a chart code.
type PostParams struct {
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	Lines       []model.LineInput `json:"lines"`
	Source      model.EntrySource `json:"source,omitempty"`
}

// Post validates and posts an entry, updating every touched balance.
// Nothing is written unless the whole posting succeeds.
func (e *Engine) Post(ctx context.Context, p PostParams) (model.JournalEntry, error) {
	principal, err := auth.Require(ctx, "post journal entry")
	if err != nil {
		return model.JournalEntry{}, err
	}
	if err := ValidateLines(p.Lines); err != nil {
		return model.JournalEntry{}, err
	}

	var entry model.JournalEntry
	err = e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		entry, err = e.PostTx(tx, p)
		return err
	})
	if err != nil {
		return model.JournalEntry{}, err
	}

	e.log.Info("entry posted", "id", entry.ID, "lines", len(entry.Lines), "source", entry.Source, "principal", principal.ID)
	e.Publish(ctx, events.ForEntry(events.EntryPosted, principal.ID, entry))
	return entry, nil
}

// PostTx posts an entry inside a caller's transaction. The caller is
// responsible for authorization and for publishing events after commit.
func (e *Engine) PostTx(tx store.Tx, p PostParams) (model.JournalEntry, error) {
	return e.postTx(tx, p, postOptions{})
}

type postOptions struct {
	allowArchived bool
	reversalOf    string
}

func (e *Engine) postTx(tx store.Tx, p PostParams, opts postOptions) (model.JournalEntry, error) {
	if err := ValidateLines(p.Lines); err != nil {
		return model.JournalEntry{}, err
	}
	if p.Source == "" {
		p.Source = model.SourceManual
	}

	entry, err := e.newEntry(tx, p, model.StatusPosted)
	if err != nil {
		return model.JournalEntry{}, err
	}
	entry.ReversalOf = opts.reversalOf
	if err := resolveLines(tx, entry.Lines, opts.allowArchived); err != nil {
		return model.JournalEntry{}, err
	}
	if err := tx.InsertEntry(entry); err != nil {
		return model.JournalEntry{}, fmt.Errorf("inserting entry %s: %w", entry.ID, err)
	}
	if err := e.applyDeltas(tx, entry); err != nil {
		return model.JournalEntry{}, err
	}
	return entry, nil
}

// newEntry allocates the entry number and builds numbered lines.
func (e *Engine) newEntry(tx store.Tx, p PostParams, status model.EntryStatus) (model.JournalEntry, error) {
	if p.Date.IsZero() {
		return model.JournalEntry{}, model.ValidationError{Field: "date", Reason: "required"}
	}
	if strings.TrimSpace(p.Description) == "" {
		return model.JournalEntry{}, model.ValidationError{Field: "description", Reason: "required"}
	}

	date := p.Date.UTC()
	seq, err := tx.NextEntrySeq(id.Period(date))
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("allocating entry number: %w", err)
	}
	entryID := id.EntryID(date, seq)

	lines := make([]model.JournalLine, len(p.Lines))
	for i, in := range p.Lines {
		lines[i] = model.JournalLine{
			ID:        id.LineID(entryID, i),
			EntryID:   entryID,
			Position:  i,
			AccountID: strings.TrimSpace(in.AccountID),
			Debit:     in.Debit,
			Credit:    in.Credit,
			Memo:      in.Memo,
			AdvisorID: in.AdvisorID,
		}
	}

	return model.JournalEntry{
		ID:          entryID,
		Date:        date,
		Description: p.Description,
		Reference:   p.Reference,
		Status:      status,
		Source:      p.Source,
		CreatedAt:   e.now().UTC(),
		Lines:       lines,
	}, nil
}

// resolveLines checks every line's account and rewrites chart codes to
// account IDs.
func resolveLines(tx store.Tx, lines []model.JournalLine, allowArchived bool) error {
	for i := range lines {
		acct, err := tx.GetAccount(lines[i].AccountID)
		if errors.Is(err, store.ErrNotFound) {
			acct, err = tx.GetAccountByCode(lines[i].AccountID)
		}
		if errors.Is(err, store.ErrNotFound) {
			return model.InvalidLineError{Line: i, Reason: model.NotFoundError{Kind: "account", ID: lines[i].AccountID}.Error()}
		}
		if err != nil {
			return fmt.Errorf("resolving account of line %d: %w", i, err)
		}
		if !allowArchived && !acct.Active() {
			return model.InvalidLineError{Line: i, Reason: fmt.Sprintf("account %s is archived", acct.Code)}
		}
		lines[i].AccountID = acct.ID
	}
	return nil
}

func (e *Engine) applyDeltas(tx store.Tx, entry model.JournalEntry) error {
	for _, l := range entry.Lines {
		if _, err := e.accounts.ApplyBalanceDelta(tx, l.AccountID, l.Debit, l.Credit); err != nil {
			e.log.Error("posting aborted", "entry", entry.ID, "line", l.ID, "account_id", l.AccountID, "err", err)
			return fmt.Errorf("applying line %s: %w", l.ID, err)
		}
	}
	return nil
}

// SaveDraft stores an entry without touching balances. Drafts must have
// well-formed lines but need not balance until PostDraft.
func (e *Engine) SaveDraft(ctx context.Context, p PostParams) (model.JournalEntry, error) {
	if _, err := auth.Require(ctx, "save draft entry"); err != nil {
		return model.JournalEntry{}, err
	}
	if err := validateShape(p.Lines); err != nil {
		return model.JournalEntry{}, err
	}
	if p.Source == "" {
		p.Source = model.SourceManual
	}

	var entry model.JournalEntry
	err := e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		entry, err = e.newEntry(tx, p, model.StatusDraft)
		if err != nil {
			return err
		}
		if err := resolveLines(tx, entry.Lines, false); err != nil {
			return err
		}
		return tx.InsertEntry(entry)
	})
	if err != nil {
		return model.JournalEntry{}, err
	}
	e.log.Debug("draft saved", "id", entry.ID)
	return entry, nil
}

// PostDraft posts a previously saved draft under its existing number.
func (e *Engine) PostDraft(ctx context.Context, entryID string) (model.JournalEntry, error) {
	principal, err := auth.Require(ctx, "post journal entry")
	if err != nil {
		return model.JournalEntry{}, err
	}

	var entry model.JournalEntry
	err = e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		entry, err = getEntry(tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != model.StatusDraft {
			return model.ValidationError{Field: "status", Reason: fmt.Sprintf("entry %s is %s, not draft", entry.ID, entry.Status)}
		}
		if err := ValidateLines(inputs(entry.Lines)); err != nil {
			return err
		}
		if err := resolveLines(tx, entry.Lines, false); err != nil {
			return err
		}
		entry.Status = model.StatusPosted
		if err := tx.UpdateEntry(entry); err != nil {
			return fmt.Errorf("updating entry %s: %w", entry.ID, err)
		}
		return e.applyDeltas(tx, entry)
	})
	if err != nil {
		return model.JournalEntry{}, err
	}

	e.log.Info("draft posted", "id", entry.ID, "principal", principal.ID)
	e.Publish(ctx, events.ForEntry(events.EntryPosted, principal.ID, entry))
	return entry, nil
}

// Void reverses a posted entry and returns the reversing entry. The reversal
// is posted with the original's date and reference, and the original is
// marked void. Posted lines are never modified. When the original came from
// reconciliation, its bank transaction is reopened in the same store
// transaction so it can be reconciled again.
func (e *Engine) Void(ctx context.Context, entryID string) (model.JournalEntry, error) {
	principal, err := auth.Require(ctx, "void journal entry")
	if err != nil {
		return model.JournalEntry{}, err
	}

	var original, reversal model.JournalEntry
	var reopened *model.BankTransaction
	err = e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		original, err = getEntry(tx, entryID)
		if err != nil {
			return err
		}
		switch original.Status {
		case model.StatusVoid:
			return model.AlreadyVoidError{EntryID: original.ID}
		case model.StatusDraft:
			return model.ValidationError{Field: "status", Reason: fmt.Sprintf("draft entry %s cannot be voided", original.ID)}
		}

		reversal, err = e.postTx(tx, PostParams{
			Date:        original.Date,
			Description: "Reversal of " + original.ID + ": " + original.Description,
			Reference:   original.Reference,
			Lines:       Reverse(original),
			Source:      model.SourceReversal,
		}, postOptions{allowArchived: true, reversalOf: original.ID})
		if err != nil {
			return fmt.Errorf("posting reversal of %s: %w", original.ID, err)
		}

		original.Status = model.StatusVoid
		original.ReversedBy = reversal.ID
		if err := tx.UpdateEntry(original); err != nil {
			return fmt.Errorf("voiding entry %s: %w", original.ID, err)
		}

		reopened, err = e.reopenTx(tx, original)
		return err
	})
	if err != nil {
		return model.JournalEntry{}, err
	}

	e.log.Info("entry voided", "id", original.ID, "reversal", reversal.ID, "principal", principal.ID)
	e.Publish(ctx, events.ForEntry(events.EntryVoided, principal.ID, original))
	e.Publish(ctx, events.ForEntry(events.EntryPosted, principal.ID, reversal))
	if reopened != nil {
		e.log.Info("bank transaction reopened", "id", reopened.ID, "entry", original.ID)
		e.Publish(ctx, events.ForTransaction(events.TransactionReopened, principal.ID, *reopened))
	}
	return reversal, nil
}

// reopenTx clears the reconciliation of the bank transaction a voided
// reconciliation entry was posted for. It returns nil when there is none.
func (e *Engine) reopenTx(tx store.Tx, voided model.JournalEntry) (*model.BankTransaction, error) {
	if voided.Source != model.SourceReconciliation || voided.Reference == "" {
		return nil, nil
	}
	txn, err := tx.GetBankTransaction(voided.Reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading bank transaction %s: %w", voided.Reference, err)
	}
	if txn.JournalEntryID != voided.ID {
		return nil, nil
	}

	txn.Status = model.TxnPosted
	txn.Category = ""
	txn.JournalEntryID = ""
	txn.AutoMatched = false
	txn.MatchedRuleID = ""
	txn.UpdatedAt = e.now().UTC()
	if err := tx.UpdateBankTransaction(txn); err != nil {
		return nil, fmt.Errorf("reopening bank transaction %s: %w", txn.ID, err)
	}
	return &txn, nil
}

// Get returns an entry by number.
func (e *Engine) Get(ctx context.Context, entryID string) (model.JournalEntry, error) {
	var entry model.JournalEntry
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		entry, err = getEntry(tx, entryID)
		return err
	})
	return entry, err
}

func getEntry(tx store.Tx, entryID string) (model.JournalEntry, error) {
	entry, err := tx.GetEntry(entryID)
	if errors.Is(err, store.ErrNotFound) {
		return model.JournalEntry{}, model.NotFoundError{Kind: "journal entry", ID: entryID}
	}
	return entry, err
}

// FindByReference returns every entry carrying an external reference, so
// callers can dedupe before posting.
func (e *Engine) FindByReference(ctx context.Context, ref string) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListEntries(store.EntryFilter{Reference: ref})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding entries by reference: %w", err)
	}
	return out, nil
}

// Filter selects entries for List. Zero values do not filter.
type Filter struct {
	From      time.Time
	To        time.Time
	Status    model.EntryStatus
	AccountID string
	Reference string
}

// List yields entries newest first (date, then number). Each range over
// the sequence runs fresh queries, one page at a time. Pages continue from
// the last entry yielded, so entries posted mid-range never shift a page.
func (e *Engine) List(ctx context.Context, f Filter) iter.Seq2[model.JournalEntry, error] {
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(model.JournalEntry, error) bool) {
		sf := store.EntryFilter{
			From:      f.From,
			To:        f.To,
			Status:    f.Status,
			AccountID: f.AccountID,
			Reference: f.Reference,
			Limit:     pageSize,
		}
		for {
			var page []model.JournalEntry
			err := e.store.View(ctx, func(tx store.Tx) error {
				var err error
				page, err = tx.ListEntries(sf)
				return err
			})
			if err != nil {
				yield(model.JournalEntry{}, fmt.Errorf("listing entries: %w", err))
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			sf.After = store.CursorOf(page[len(page)-1])
		}
	}
}

// Collect drains List into a slice.
func (e *Engine) Collect(ctx context.Context, f Filter) ([]model.JournalEntry, error) {
	var out []model.JournalEntry
	for entry, err := range e.List(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Publish sends an event, logging failures. A failed publish never undoes
// a committed change.
func (e *Engine) Publish(ctx context.Context, ev events.Event) {
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("publishing event failed", "kind", ev.Kind, "subject", ev.SubjectID, "err", err)
	}
}

func inputs(lines []model.JournalLine) []model.LineInput {
	out := make([]model.LineInput, len(lines))
	for i, l := range lines {
		out[i] = model.LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo, AdvisorID: l.AdvisorID}
	}
	return out
}
