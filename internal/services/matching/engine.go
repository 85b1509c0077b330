// Package matching pairs incoming transactions with existing ledger rows.
//
// Matching runs in passes of decreasing fidelity. Every pass sees the whole
// batch before the next one starts, so a transaction that can be matched
// exactly never loses its row to an earlier transaction that would only have
// matched it by position.
package matching

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Fuzzy window bounds, in days relative to the incoming transaction's date.
const (
	WindowDaysBefore = 4
	WindowDaysAfter  = 1
)

// State is where an item ended up after matching.
type State int

const (
	Unmatched State = iota
	ExactMatched
	PayeeMatched
	PositionMatched
)

func (s State) String() string {
	switch s {
	case ExactMatched:
		return "exact"
	case PayeeMatched:
		return "payee"
	case PositionMatched:
		return "position"
	default:
		return "none"
	}
}

// Candidate is the read-only view of a ledger row used while matching.
type Candidate struct {
	ID            uuid.UUID
	Date          time.Time
	Amount        int64
	ImportedID    *string
	ImportedPayee string
	PayeeID       *uuid.UUID
	CategoryID    *uuid.UUID
	Notes         string
	Cleared       bool
	Reconciled    bool
	IsParent      bool
}

// Item is the part of an incoming transaction the matcher looks at.
type Item struct {
	ImportedID string
	PayeeID    *uuid.UUID
	Date       time.Time
	Amount     int64
}

// Dataset holds pre-fetched candidates, indexed like the items slice.
type Dataset struct {
	// Exact[i] is the row carrying item i's imported id, or nil.
	Exact []*Candidate
	// Windows[i] is item i's fuzzy window in preference order.
	Windows [][]Candidate
}

type Result struct {
	Index int
	State State
	Match *Candidate
}

// claims is the set of ledger ids already taken during one Match call.
type claims map[uuid.UUID]struct{}

func (c claims) has(id uuid.UUID) bool {
	_, ok := c[id]
	return ok
}

type pass struct {
	state State
	pick  func(item Item, i int, ds *Dataset, claimed claims) *Candidate
}

// passes in fidelity order.
var passes = []pass{
	{state: ExactMatched, pick: pickExact},
	{state: PayeeMatched, pick: pickSamePayee},
	{state: PositionMatched, pick: pickFirstFree},
}

// Match assigns each item at most one candidate and never hands the same
// candidate to two items. It does no I/O.
func Match(items []Item, ds *Dataset) []Result {
	results := make([]Result, len(items))
	for i := range items {
		results[i] = Result{Index: i, State: Unmatched}
	}

	claimed := make(claims)
	for _, p := range passes {
		for i, item := range items {
			if results[i].State != Unmatched {
				continue
			}
			c := p.pick(item, i, ds, claimed)
			if c == nil {
				continue
			}
			claimed[c.ID] = struct{}{}
			results[i].State = p.state
			results[i].Match = c
		}
	}
	return results
}

func pickExact(item Item, i int, ds *Dataset, claimed claims) *Candidate {
	if item.ImportedID == "" || i >= len(ds.Exact) {
		return nil
	}
	c := ds.Exact[i]
	if c == nil || claimed.has(c.ID) {
		return nil
	}
	return c
}

func pickSamePayee(item Item, i int, ds *Dataset, claimed claims) *Candidate {
	for _, c := range window(ds, i) {
		if claimed.has(c.ID) {
			continue
		}
		if samePayee(item.PayeeID, c.PayeeID) {
			return c
		}
	}
	return nil
}

func pickFirstFree(item Item, i int, ds *Dataset, claimed claims) *Candidate {
	for _, c := range window(ds, i) {
		if !claimed.has(c.ID) {
			return c
		}
	}
	return nil
}

func window(ds *Dataset, i int) []*Candidate {
	if i >= len(ds.Windows) {
		return nil
	}
	w := ds.Windows[i]
	out := make([]*Candidate, len(w))
	for j := range w {
		out[j] = &w[j]
	}
	return out
}

// samePayee treats two missing payees as equal.
func samePayee(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Window is one fuzzy-match query.
type Window struct {
	AccountID         uuid.UUID
	From              time.Time
	To                time.Time
	Amount            int64
	WithoutImportedID bool
}

// CandidateSource answers the two queries matching needs.
type CandidateSource interface {
	FindByImportedID(ctx context.Context, accountID uuid.UUID, importedID string) (*Candidate, error)
	FindWindow(ctx context.Context, w Window) ([]Candidate, error)
}

type Options struct {
	// StrictImportedIDs keeps an item that has an imported id away from
	// rows that already carry one.
	StrictImportedIDs bool
}

// WindowFor returns the fuzzy window for an item on accountID.
func WindowFor(accountID uuid.UUID, item Item, opts Options) Window {
	return Window{
		AccountID:         accountID,
		From:              item.Date.AddDate(0, 0, -WindowDaysBefore),
		To:                item.Date.AddDate(0, 0, WindowDaysAfter),
		Amount:            item.Amount,
		WithoutImportedID: opts.StrictImportedIDs && item.ImportedID != "",
	}
}

// Gather runs every query the batch needs so Match can stay pure. Identical
// windows are fetched once.
func Gather(ctx context.Context, src CandidateSource, accountID uuid.UUID, items []Item, opts Options) (*Dataset, error) {
	ds := &Dataset{
		Exact:   make([]*Candidate, len(items)),
		Windows: make([][]Candidate, len(items)),
	}
	fetched := make(map[Window][]Candidate)

	for i, item := range items {
		if item.ImportedID != "" {
			c, err := src.FindByImportedID(ctx, accountID, item.ImportedID)
			if err != nil {
				return nil, fmt.Errorf("gather: imported id %q: %w", item.ImportedID, err)
			}
			ds.Exact[i] = c
		}

		w := WindowFor(accountID, item, opts)
		rows, ok := fetched[w]
		if !ok {
			var err error
			rows, err = src.FindWindow(ctx, w)
			if err != nil {
				return nil, fmt.Errorf("gather: window for item %d: %w", i, err)
			}
			fetched[w] = rows
		}
		ds.Windows[i] = Ordered(item.Date, rows)
	}
	return ds, nil
}

// Ordered returns a copy of rows sorted by distance from date, closest
// first, with ties broken by ascending id.
func Ordered(date time.Time, rows []Candidate) []Candidate {
	out := make([]Candidate, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(a, b int) bool {
		da, db := distance(date, out[a].Date), distance(date, out[b].Date)
		if da != db {
			return da < db
		}
		return bytes.Compare(out[a].ID[:], out[b].ID[:]) < 0
	})
	return out
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// Counts tallies results by state.
func Counts(results []Result) map[State]int {
	out := make(map[State]int, 4)
	for _, r := range results {
		out[r.State]++
	}
	return out
}
