package entry

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used by the hosted service.
// Entries carry no time component: one entry per user per day.
const DateLayout = "2006-01-02"

const (
	MinWeightKg = 20.0
	MaxWeightKg = 300.0
)

var (
	ErrEntryNotFound    = errors.New("weight entry not found")
	ErrWeightOutOfRange = fmt.Errorf("weight must be between %.0f and %.0f kg", MinWeightKg, MaxWeightKg)
	ErrDateInFuture     = errors.New("entry date must not be in the future")
	ErrDateConflict     = errors.New("an entry for this date already exists")
)

// Entry is one user's weight measurement for one calendar date.
// IDs are opaque and assigned by the hosted service.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Weight    float64   `json:"weight"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Day parses the entry's calendar date.
func (e Entry) Day() (time.Time, error) {
	return time.Parse(DateLayout, e.Date)
}

// FormData is the transient input of the add/edit forms. It is never stored
// directly: the hosted service turns it into an Entry.
type FormData struct {
	Date   time.Time
	Weight float64
}

// FormattedDate renders the form date the way the hosted service stores it.
func (f FormData) FormattedDate() string {
	return f.Date.Format(DateLayout)
}

// Validate enforces the input-side constraints: weight in [20, 300] kg and
// the date not after today. Today is derived from now in local time, because
// the date picker works in calendar days, not instants.
func (f FormData) Validate(now time.Time) error {
	if f.Weight < MinWeightKg || f.Weight > MaxWeightKg {
		return ErrWeightOutOfRange
	}
	if f.FormattedDate() > now.Format(DateLayout) {
		return ErrDateInFuture
	}
	return nil
}

// SortDir is the ordering requested from a paginated read.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Page is one window of a paginated read together with the total size of the
// underlying collection as the server reported it.
type Page struct {
	Entries    []Entry
	TotalCount int
}
