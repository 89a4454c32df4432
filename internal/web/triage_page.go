package web

import (
	"errors"
	"net/http"

	"vitalsup/internal/triage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	msgLoadFailed     = "Failed to load articles."
	msgFinalized      = "Reviews finalized successfully!"
	msgFinalizeFailed = "Failed to finalize reviews."
	msgSessionExpired = "Your review session expired. The list was reloaded."
	altURLPlaceholder = "https://example.com/alternative-version"
)

type triagePage struct {
	Title       string
	Items       []triage.ReviewItem
	Editing     string
	Success     string
	Error       string
	Detail      string
	LoadFailed  bool
	Placeholder string
}

// handleTriagePage starts a fresh review of every article that passed the
// relevance check.
func (s *Server) handleTriagePage(w http.ResponseWriter, r *http.Request) {
	key := s.sessionKey(w, r)
	page := triagePage{Title: "Triage", Success: s.flash.pop(key), Placeholder: altURLPlaceholder}

	sess, err := triage.LoadSession(r.Context(), s.store)
	if err != nil {
		s.logger.Error("Failed to load triage candidates", zap.Error(err))
		page.Error = msgLoadFailed
		page.LoadFailed = true
		s.render(w, http.StatusInternalServerError, "triage", page)
		return
	}
	s.sessions.Put(key, sess)

	page.Items = sess.Items()
	s.render(w, http.StatusOK, "triage", page)
}

// session returns the caller's review session. Without one the browser is
// sent back to a freshly loaded list.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *triage.Session, bool) {
	key := s.sessionKey(w, r)
	sess, ok := s.sessions.Get(key)
	if !ok {
		s.flash.set(key, msgSessionExpired)
		http.Redirect(w, r, "/triage", http.StatusSeeOther)
		return key, nil, false
	}
	return key, sess, true
}

func (s *Server) handleSetDisposition(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	d, err := triage.ParseDisposition(r.FormValue("disposition"))
	if err == nil {
		err = sess.SetDisposition(id, d)
	}
	s.renderSession(w, sess, err)
}

func (s *Server) handleSetAlternativeURL(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	err := sess.SetAlternativeURL(id, r.FormValue("url"))
	if err == nil && r.FormValue("close") != "" && sess.Editing() == id {
		err = sess.ToggleEdit(id)
	}
	s.renderSession(w, sess, err)
}

func (s *Server) handleToggleEdit(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.renderSession(w, sess, sess.ToggleEdit(mux.Vars(r)["id"]))
}

// handleTriageFinalize commits the session's decisions. On success the list
// is reloaded so finalized articles drop out.
func (s *Server) handleTriageFinalize(w http.ResponseWriter, r *http.Request) {
	key, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	entries, err := triage.PlanUpdates(sess.Updates())
	if err == nil {
		_, err = s.finalizer.Finalize(r.Context(), entries)
	}
	if err != nil {
		s.logger.Error("Failed to finalize reviews", zap.Error(err))
		page := s.sessionPage(sess)
		page.Error = msgFinalizeFailed
		page.Detail = finalizeFailure(err)
		s.render(w, http.StatusInternalServerError, "triage", page)
		return
	}

	s.sessions.Delete(key)
	s.flash.set(key, msgFinalized)
	http.Redirect(w, r, "/triage", http.StatusSeeOther)
}

func (s *Server) sessionPage(sess *triage.Session) triagePage {
	return triagePage{
		Title:       "Triage",
		Items:       sess.Items(),
		Editing:     sess.Editing(),
		Placeholder: altURLPlaceholder,
	}
}

// renderSession redraws the list after an in-session edit; err becomes an
// error banner.
func (s *Server) renderSession(w http.ResponseWriter, sess *triage.Session, err error) {
	page := s.sessionPage(sess)
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, triage.ErrUnknownItem):
		status = http.StatusNotFound
		page.Error = err.Error()
	default:
		status = http.StatusBadRequest
		page.Error = err.Error()
	}
	s.render(w, status, "triage", page)
}
