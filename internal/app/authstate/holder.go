// Package authstate tracks which users currently hold data state and
// arbitrates the race between the initial session check and asynchronous
// auth-change events: exactly one of them wins the right to load data for a
// user, so a sign-in that lands during startup never triggers a duplicate
// load.
package authstate

import (
	"log/slog"
	"sync"

	"github.com/ashmarin/weighttrack/internal/app/authbus"
	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/domain"
	"github.com/ashmarin/weighttrack/internal/domain/session"
)

// Holder is the single top-level owner of per-user auth state. It subscribes
// to the auth bus once at startup; everything else reads through it.
type Holder struct {
	syncers *syncer.Manager
	logger  *slog.Logger

	mu      sync.Mutex
	started map[string]struct{}
}

func NewHolder(syncers *syncer.Manager, logger *slog.Logger) *Holder {
	return &Holder{
		syncers: syncers,
		logger:  logger,
		started: make(map[string]struct{}),
	}
}

// Bind registers the holder on the auth bus. Called exactly once at startup.
func (h *Holder) Bind(bus *authbus.Bus) {
	bus.Register(session.EventSignedIn, h.onSignedIn)
	bus.Register(session.EventSignedOut, h.onSignedOut)
}

// TryBegin claims the right to run the initial data load for a user. The
// first caller wins; concurrent callers for the same user get false and must
// not load.
func (h *Holder) TryBegin(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.started[userID]; ok {
		return false
	}
	h.started[userID] = struct{}{}
	return true
}

// Reset releases the load claim so a manual retry can run the load again.
func (h *Holder) Reset(userID string) {
	h.mu.Lock()
	delete(h.started, userID)
	h.mu.Unlock()
}

func (h *Holder) onSignedIn(event domain.Event) error {
	e, ok := event.(session.SignedInEvent)
	if !ok {
		return nil
	}
	h.logger.Debug("user signed in", "user_id", e.UserID, "session_id", e.SessionID)
	return nil
}

// onSignedOut drops the user's cached entry views and load claim, so late
// responses are discarded and the next sign-in starts clean.
func (h *Holder) onSignedOut(event domain.Event) error {
	e, ok := event.(session.SignedOutEvent)
	if !ok {
		return nil
	}
	h.syncers.Drop(e.UserID)
	h.Reset(e.UserID)
	h.logger.Debug("user signed out, state dropped", "user_id", e.UserID)
	return nil
}
