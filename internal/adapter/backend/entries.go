package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ashmarin/weighttrack/internal/domain/entry"
)

// TokenSource supplies a valid access token for a user, refreshing the
// cached one when it has expired.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// EntryService is the weight entry repository for one user, backed by the
// hosted service's weight_entries collection. All operations are remote and
// carry no client-side retry: failures propagate to the caller.
type EntryService struct {
	c      *Client
	userID string
	tokens TokenSource
}

// EntriesFor binds the entry repository to a user. The bound service pulls a
// fresh access token from the token source on every call.
func (c *Client) EntriesFor(userID string, tokens TokenSource) *EntryService {
	return &EntryService{c: c, userID: userID, tokens: tokens}
}

type entryPayload struct {
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
}

type listResponse struct {
	Entries    []entry.Entry `json:"entries"`
	TotalCount int           `json:"total_count"`
}

func (s *EntryService) entriesPath() string {
	return "/v1/users/" + url.PathEscape(s.userID) + "/entries"
}

// List fetches the user's complete entry collection ordered by date
// ascending, for the chart and statistics views.
func (s *EntryService) List(ctx context.Context) ([]entry.Entry, error) {
	token, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := s.c.do(ctx, http.MethodGet, s.entriesPath()+"?order=asc", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return resp.Entries, nil
}

// ListPage fetches one window of the collection plus the exact total count
// as the server sees it.
func (s *EntryService) ListPage(ctx context.Context, page, pageSize int, dir entry.SortDir) (entry.Page, error) {
	token, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return entry.Page{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("order", string(dir))

	var resp listResponse
	if err := s.c.do(ctx, http.MethodGet, s.entriesPath()+"?"+q.Encode(), token, nil, &resp); err != nil {
		return entry.Page{}, fmt.Errorf("list entries page %d: %w", page, err)
	}
	return entry.Page{Entries: resp.Entries, TotalCount: resp.TotalCount}, nil
}

// Add submits a measurement. The hosted service upserts by (user, date): an
// existing entry for that date keeps its id and gets the new weight.
func (s *EntryService) Add(ctx context.Context, form entry.FormData) (entry.Entry, error) {
	token, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return entry.Entry{}, err
	}

	var e entry.Entry
	payload := entryPayload{Date: form.FormattedDate(), Weight: form.Weight}
	if err := s.c.do(ctx, http.MethodPost, s.entriesPath(), token, payload, &e); err != nil {
		return entry.Entry{}, fmt.Errorf("add entry: %w", err)
	}
	return e, nil
}

// Update rewrites an entry by id, possibly moving it to a new date. The
// hosted service rejects a move onto an occupied date with a date conflict.
func (s *EntryService) Update(ctx context.Context, id string, form entry.FormData) (entry.Entry, error) {
	token, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return entry.Entry{}, err
	}

	var e entry.Entry
	payload := entryPayload{Date: form.FormattedDate(), Weight: form.Weight}
	if err := s.c.do(ctx, http.MethodPatch, "/v1/entries/"+url.PathEscape(id), token, payload, &e); err != nil {
		return entry.Entry{}, fmt.Errorf("update entry %s: %w", id, err)
	}
	return e, nil
}

// Remove deletes an entry by id.
func (s *EntryService) Remove(ctx context.Context, id string) error {
	token, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return err
	}

	if err := s.c.do(ctx, http.MethodDelete, "/v1/entries/"+url.PathEscape(id), token, nil, nil); err != nil {
		return fmt.Errorf("remove entry %s: %w", id, err)
	}
	return nil
}
