package api

import (
	"net/http"
	"time"

	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/domain/entry"
	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

func (s *Server) MountEntries() {
	sessionRequired := s.SessionRequired()

	entries := s.handler.Group("/entries", sessionRequired)

	entries.GET("", s.ListEntries)
	entries.POST("", s.AddEntry)
	entries.POST("/load-more", s.LoadMore)
	entries.POST("/reload", s.Reload)
	entries.GET("/chart", s.Chart)
	entries.GET("/:id/edit", s.SelectForEdit)
	entries.PATCH("/:id", s.UpdateEntry)
	entries.DELETE("/:id", s.DeleteEntry)
}

func (s *Server) syncerFor(c echo.Context) (*syncer.Syncer, *session.Session) {
	sess := c.Get(KeyCurrentSession).(*session.Session)
	return s.syncers.ForUser(sess.UserID), sess
}

type entryFormReq struct {
	Date   string  `json:"date" form:"date" validate:"required,datetime=2006-01-02"`
	Weight float64 `json:"weight" form:"weight" validate:"required"`
}

func (r entryFormReq) form() (entry.FormData, error) {
	day, err := time.Parse(entry.DateLayout, r.Date)
	if err != nil {
		return entry.FormData{}, err
	}
	return entry.FormData{Date: day, Weight: r.Weight}, nil
}

type entriesResp struct {
	Entries    []entry.Entry `json:"entries"`
	TotalCount int           `json:"total_count"`
	HasMore    bool          `json:"has_more"`
	Loaded     bool          `json:"loaded"`
}

func (s *Server) entriesState(sync *syncer.Syncer) *entriesResp {
	return &entriesResp{
		Entries:    sync.Paged(),
		TotalCount: sync.TotalCount(),
		HasMore:    sync.HasMore(),
		Loaded:     sync.Loaded(),
	}
}

// ListEntries returns the history list. The first call after sign-in runs
// the initial load of both views; the load claim keeps a racing duplicate
// request from loading twice.
func (s *Server) ListEntries(c echo.Context) error {
	sync, sess := s.syncerFor(c)

	if !sync.Loaded() && s.holder.TryBegin(sess.UserID) {
		if err := sync.LoadFirstPage(c.Request().Context()); err != nil {
			// Release the claim so the user can retry manually.
			s.holder.Reset(sess.UserID)
			return DomainError(c, err)
		}
	}
	return c.JSON(http.StatusOK, s.entriesState(sync))
}

func (s *Server) LoadMore(c echo.Context) error {
	sync, _ := s.syncerFor(c)

	if err := sync.LoadMore(c.Request().Context()); err != nil {
		return DomainError(c, err)
	}
	return c.JSON(http.StatusOK, s.entriesState(sync))
}

// Reload is the manual retry after a failed load: it refreshes the hosted
// session, drops the cached views, and loads from scratch.
func (s *Server) Reload(c echo.Context) error {
	sess := c.Get(KeyCurrentSession).(*session.Session)

	if _, err := s.authService.RefreshSession(c.Request().Context(), s.uow(), sess.SessionID); err != nil {
		s.clearSessionCookie(c)
		return DomainError(c, err)
	}

	s.syncers.Drop(sess.UserID)
	s.holder.Reset(sess.UserID)

	sync := s.syncers.ForUser(sess.UserID)
	if s.holder.TryBegin(sess.UserID) {
		if err := sync.LoadFirstPage(c.Request().Context()); err != nil {
			s.holder.Reset(sess.UserID)
			return DomainError(c, err)
		}
	}
	return c.JSON(http.StatusOK, s.entriesState(sync))
}

func (s *Server) AddEntry(c echo.Context) error {
	var b entryFormReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}
	form, err := b.form()
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	sync, _ := s.syncerFor(c)
	saved, err := sync.AddOrUpsert(c.Request().Context(), form)
	if err != nil {
		return DomainError(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) SelectForEdit(c echo.Context) error {
	sync, _ := s.syncerFor(c)

	e, ok := sync.SelectForEdit(c.Param("id"))
	if !ok {
		return JsonError(c, http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, e)
}

type updateEntryReq struct {
	entryFormReq
	// ConfirmOverwrite acknowledges a date collision: the colliding entry is
	// merged away. Without it a collision aborts with 409 before any call to
	// the hosted service.
	ConfirmOverwrite bool `json:"confirm_overwrite" form:"confirm_overwrite"`
}

func (s *Server) UpdateEntry(c echo.Context) error {
	var b updateEntryReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}
	form, err := b.form()
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	sync, _ := s.syncerFor(c)
	id := c.Param("id")

	if _, ok := sync.EntryToEdit(); !ok {
		if _, found := sync.SelectForEdit(id); !found {
			return JsonError(c, http.StatusNotFound, "entry not found")
		}
	}

	updated, err := sync.UpdateByID(c.Request().Context(), id, form, b.ConfirmOverwrite)
	if err != nil {
		return DomainError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) DeleteEntry(c echo.Context) error {
	sync, _ := s.syncerFor(c)

	if err := sync.DeleteByID(c.Request().Context(), c.Param("id")); err != nil {
		return DomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type chartPoint struct {
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
}

// Chart returns the complete collection as date-ascending points.
func (s *Server) Chart(c echo.Context) error {
	sync, _ := s.syncerFor(c)

	points := lo.Map(sync.All(), func(e entry.Entry, _ int) chartPoint {
		return chartPoint{Date: e.Date, Weight: e.Weight}
	})
	return c.JSON(http.StatusOK, points)
}
