package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"vitalsup/internal/model"
	"vitalsup/internal/openaccess"
	"vitalsup/internal/proxy"
	"vitalsup/internal/store"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	labListLimit      = 50
	msgLabReady       = "Enter a URL or DOI above to begin searching for open-access versions"
	msgLabDone        = "Done"
	msgLabInputNeeded = "Please enter a URL or DOI"
	msgUnknownError   = "Unknown error occurred"
)

// LookupView is the content lab's rendering of one lookup.
type LookupView struct {
	Input  string
	Status string
	Error  string
	Result *openaccess.Result
}

// ShowDOILink reports whether the DOI open-access action is offered.
func (v LookupView) ShowDOILink() bool {
	return v.Result != nil && v.Result.IsOA && v.Result.DOI != nil
}

// ShowPDFLink reports whether the direct-PDF action is offered.
func (v LookupView) ShowPDFLink() bool {
	return v.Result != nil && v.Result.IsOA && v.Result.OpenPDFURL != nil
}

func (v LookupView) DOIURL() string {
	if v.Result == nil || v.Result.DOI == nil {
		return ""
	}
	return "https://doi.org/" + *v.Result.DOI
}

type labPage struct {
	Title    string
	Articles []model.Article
	Lookup   LookupView
	Error    string
}

func (s *Server) handleLab(w http.ResponseWriter, r *http.Request) {
	page := s.labPage(r)
	page.Lookup = LookupView{Status: msgLabReady}
	s.render(w, http.StatusOK, "lab", page)
}

// handleLabLookup runs a lookup through the resolver function the same way
// the JSON route does and renders the outcome.
func (s *Server) handleLabLookup(w http.ResponseWriter, r *http.Request) {
	page := s.labPage(r)
	input := strings.TrimSpace(r.FormValue("input"))
	page.Lookup = s.lookup(r, input)

	status := http.StatusOK
	if page.Lookup.Error != "" {
		status = http.StatusUnprocessableEntity
		if input == "" {
			status = http.StatusBadRequest
		}
	}
	s.render(w, status, "lab", page)
}

func (s *Server) lookup(r *http.Request, input string) LookupView {
	view := LookupView{Input: input, Status: msgLabReady}
	if input == "" {
		view.Error = msgLabInputNeeded
		return view
	}

	body, _ := json.Marshal(map[string]string{"input": input})
	resp, err := s.forward(r, body)
	if err != nil {
		if errors.Is(err, proxy.ErrNotConfigured) {
			view.Error = msgNotConfigured
		} else {
			view.Error = "Network error: " + err.Error()
		}
		return view
	}

	if resp.StatusCode != http.StatusOK {
		view.Error = upstreamMessage(resp.Body)
		return view
	}

	var res openaccess.Result
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		s.logger.Warn("Unreadable resolver response", zap.Error(err))
		view.Error = msgUnknownError
		return view
	}
	view.Result = &res
	view.Status = msgLabDone
	return view
}

// upstreamMessage picks the error or message field of a failed lookup.
func upstreamMessage(body []byte) string {
	var data struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &data); err == nil {
		if data.Error != "" {
			return data.Error
		}
		if data.Message != "" {
			return data.Message
		}
	}
	return msgUnknownError
}

func (s *Server) labPage(r *http.Request) labPage {
	page := labPage{Title: "Content Lab"}
	articles, err := s.store.ListByStatus(r.Context(), model.StatusAcceptedForLab, labListLimit)
	if err != nil {
		s.logger.Error("Failed to list lab articles", zap.Error(err))
		page.Error = msgLoadFailed
		return page
	}
	page.Articles = articles
	return page
}

// handleView shows a lab snapshot. Content was sanitised when captured.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	article, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to load article", zap.String("id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "view", viewPage{
		Title:   article.Title,
		Article: article,
		Content: template.HTML(article.Content),
	})
}

type viewPage struct {
	Title   string
	Article *model.Article
	Content template.HTML
}
