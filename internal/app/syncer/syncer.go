// Package syncer keeps the two client-side views of a user's entry
// collection consistent: the paginated history slice and the complete set
// used for the chart and statistics. Every mutation is applied to both views
// in one synchronous step; the hosted service is always the last writer.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain/entry"
)

var (
	ErrDateCollision   = errors.New("edited date collides with another entry, confirmation required")
	ErrNoEntrySelected = errors.New("no entry selected for editing")
)

// Repository is the remote entry collection, already bound to one user.
// Calls carry no client-side retry: failures propagate.
type Repository interface {
	List(ctx context.Context) ([]entry.Entry, error)
	ListPage(ctx context.Context, page, pageSize int, dir entry.SortDir) (entry.Page, error)
	Add(ctx context.Context, form entry.FormData) (entry.Entry, error)
	Update(ctx context.Context, id string, form entry.FormData) (entry.Entry, error)
	Remove(ctx context.Context, id string) error
}

// Syncer holds one user's view state. The lock is released around network
// calls so a slow fetch never blocks reads; results are committed only after
// re-checking that the syncer has not been closed in the meantime.
type Syncer struct {
	repo        Repository
	userID      string
	pageSize    int
	loadTimeout time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	paged       []entry.Entry
	all         []entry.Entry
	totalCount  int
	page        int
	loaded      bool
	loadingMore bool
	editing     *entry.Entry
	closed      bool
}

func New(userID string, repo Repository, pageSize int, loadTimeout time.Duration, logger *slog.Logger) *Syncer {
	return &Syncer{
		repo:        repo,
		userID:      userID,
		pageSize:    pageSize,
		loadTimeout: loadTimeout,
		logger:      logger.With("user_id", userID),
	}
}

func (s *Syncer) UserID() string {
	return s.userID
}

// LoadFirstPage populates both views from scratch: page 1, newest first, for
// the history list, and the full ascending collection for the chart. The two
// fetches succeed or fail independently, and both run under the safety
// timeout so a stalled call resolves to a retryable error instead of a hang.
func (s *Syncer) LoadFirstPage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	page, pageErr := s.repo.ListPage(ctx, 1, s.pageSize, entry.SortDesc)
	all, allErr := s.repo.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if pageErr == nil {
		s.paged = page.Entries
		s.totalCount = page.TotalCount
		s.page = 1
	} else {
		pageErr = fmt.Errorf("load first page: %w", pageErr)
	}
	if allErr == nil {
		s.all = all
	} else {
		allErr = fmt.Errorf("load full collection: %w", allErr)
	}

	if pageErr == nil && allErr == nil {
		s.loaded = true
		return nil
	}
	err := errors.Join(pageErr, allErr)
	s.logger.Warn("initial data load incomplete", "error", err)
	return err
}

// LoadMore fetches the next history page. It is a no-op while a fetch is in
// flight or when the paged view already holds the whole collection. Returned
// entries are merged with de-duplication by id, and the total count is taken
// from the response so external inserts and deletes are picked up.
func (s *Syncer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || s.closed || len(s.paged) >= s.totalCount {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	next := s.page + 1
	s.mu.Unlock()

	page, err := s.repo.ListPage(ctx, next, s.pageSize, entry.SortDesc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	if s.closed {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load page %d: %w", next, err)
	}

	seen := make(map[string]struct{}, len(s.paged))
	for _, e := range s.paged {
		seen[e.ID] = struct{}{}
	}
	for _, e := range page.Entries {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		s.paged = append(s.paged, e)
		seen[e.ID] = struct{}{}
	}
	s.page = next
	s.totalCount = page.TotalCount
	return nil
}

// AddOrUpsert submits a measurement. The hosted service upserts by date, so
// the returned entry is the single entry for that date. Each view applies
// its own replace-or-insert branch, since a date can be resident in one
// view's cache and not the other. The total count moves only when the full
// view gains an entry, because it mirrors the whole collection.
func (s *Syncer) AddOrUpsert(ctx context.Context, form entry.FormData) (entry.Entry, error) {
	if err := form.Validate(time.Now()); err != nil {
		return entry.Entry{}, err
	}

	saved, err := s.repo.Add(ctx, form)
	if err != nil {
		return entry.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return saved, nil
	}

	if i := indexByDate(s.paged, saved.Date); i >= 0 {
		s.paged[i] = saved
	} else {
		s.paged = append([]entry.Entry{saved}, s.paged...)
	}

	if i := indexByDate(s.all, saved.Date); i >= 0 {
		s.all[i] = saved
	} else {
		s.all = append(s.all, saved)
		s.totalCount++
	}
	return saved, nil
}

// SelectForEdit marks the entry the edit form is working on. Returns false
// when the id is not loaded in the full view.
func (s *Syncer) SelectForEdit(id string) (entry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexByID(s.all, id); i >= 0 {
		e := s.all[i]
		s.editing = &e
		return e, true
	}
	return entry.Entry{}, false
}

// EntryToEdit returns the current edit selection, if any.
func (s *Syncer) EntryToEdit() (entry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing == nil {
		return entry.Entry{}, false
	}
	return *s.editing, true
}

func (s *Syncer) ClearEdit() {
	s.mu.Lock()
	s.editing = nil
	s.mu.Unlock()
}

// FindCollision reports the entry, other than the one being edited, that
// already occupies the form's date.
func (s *Syncer) FindCollision(form entry.FormData, excludeID string) (entry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := form.FormattedDate()
	for _, e := range s.all {
		if e.ID != excludeID && e.Date == date {
			return e, true
		}
	}
	return entry.Entry{}, false
}

// UpdateByID rewrites the selected entry. When the new date collides with a
// different entry the caller must have obtained the user's confirmation:
// without it the call aborts before any network traffic with
// ErrDateCollision. A confirmed collision merges the two entries into one,
// keeping the edited entry's id at the new date, so the total count drops by
// one. The edit selection is cleared on success.
func (s *Syncer) UpdateByID(ctx context.Context, id string, form entry.FormData, confirmOverwrite bool) (entry.Entry, error) {
	if err := form.Validate(time.Now()); err != nil {
		return entry.Entry{}, err
	}

	s.mu.Lock()
	if s.editing == nil || s.editing.ID != id {
		s.mu.Unlock()
		return entry.Entry{}, ErrNoEntrySelected
	}
	s.mu.Unlock()

	colliding, collides := s.FindCollision(form, id)
	if collides && !confirmOverwrite {
		return entry.Entry{}, ErrDateCollision
	}

	if collides {
		// Vacate the occupied date first so the hosted service accepts
		// the move instead of reporting a date conflict.
		if err := s.repo.Remove(ctx, colliding.ID); err != nil {
			return entry.Entry{}, fmt.Errorf("remove colliding entry %s: %w", colliding.ID, err)
		}
	}

	updated, err := s.repo.Update(ctx, id, form)
	if err != nil {
		return entry.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return updated, nil
	}

	if collides {
		s.paged = removeByID(s.paged, colliding.ID)
		before := len(s.all)
		s.all = removeByID(s.all, colliding.ID)
		if len(s.all) < before {
			s.totalCount--
		}
	}

	if i := indexByID(s.paged, id); i >= 0 {
		s.paged[i] = updated
	}
	if i := indexByID(s.all, id); i >= 0 {
		s.all[i] = updated
	}
	s.editing = nil
	return updated, nil
}

// DeleteByID removes an entry everywhere. The repository call is attempted
// even when the id is not loaded locally; a missing id leaves state alone.
func (s *Syncer) DeleteByID(ctx context.Context, id string) error {
	if err := s.repo.Remove(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.paged = removeByID(s.paged, id)
	before := len(s.all)
	s.all = removeByID(s.all, id)
	if len(s.all) < before {
		s.totalCount--
	}
	return nil
}

// Paged returns a copy of the history slice, newest first.
func (s *Syncer) Paged() []entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry.Entry, len(s.paged))
	copy(out, s.paged)
	return out
}

// All returns a copy of the complete collection in repository order.
func (s *Syncer) All() []entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry.Entry, len(s.all))
	copy(out, s.all)
	return out
}

func (s *Syncer) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCount
}

func (s *Syncer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paged) < s.totalCount
}

// Loaded reports whether the initial load completed for both views.
func (s *Syncer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Close unbinds the syncer. In-flight responses that complete afterwards are
// discarded instead of being applied to a signed-out user's state.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.paged = nil
	s.all = nil
	s.totalCount = 0
	s.page = 0
	s.loaded = false
	s.editing = nil
}

func indexByID(entries []entry.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func indexByDate(entries []entry.Entry, date string) int {
	for i, e := range entries {
		if e.Date == date {
			return i
		}
	}
	return -1
}

func removeByID(entries []entry.Entry, id string) []entry.Entry {
	if i := indexByID(entries, id); i >= 0 {
		return append(entries[:i], entries[i+1:]...)
	}
	return entries
}
