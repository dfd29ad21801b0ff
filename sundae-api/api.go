// Package sundaeapi wires the websocket entry point and the read-only
// reporting endpoints onto a chi router.
package sundaeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	sundaerest "github.com/SundaeSwap-finance/sundae-slides/sundae-rest"
	sundaeslide "github.com/SundaeSwap-finance/sundae-slides/sundae-slide"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const presentationsMaxAge = 5

type FeedbackReader interface {
	ListFeedback(ctx context.Context, slideKey string) ([]feedbackdao.Row, error)
}

type PresentationLister interface {
	Entries(ctx context.Context) ([]presentationdao.Entry, error)
}

// API serves the slide routes. Hub may be nil, in which case only the
// reporting endpoints are mounted.
type API struct {
	Hub           *sundaeslide.Hub
	Feedback      FeedbackReader
	Presentations PresentationLister
}

type presentationJSON struct {
	Number int64  `json:"No."`
	Title  string `json:"Title"`
	Slug   string `json:"Slug"`
}

type feedbackJSON struct {
	SlideNumber int64  `json:"Slide No."`
	Title       string `json:"Title"`
	Okay        int64  `json:"Okay"`
	Good        int64  `json:"Good"`
	Great       int64  `json:"Great"`
	MindBlown   int64  `json:"Mind Blown"`
}

// Routes registers the API's handlers on router.
func (a *API) Routes(router chi.Router) chi.Router {
	if a.Hub != nil {
		router.Get("/ws/{title}", a.handleWebSocket)
	}
	router.Get("/api/presentations", sundaerest.CacheControl(a.handlePresentations, presentationsMaxAge))
	router.Get("/api/feedback/{slideId}", a.handleFeedback)
	return router
}

func (a *API) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	title, err := pathParam(req, "title")
	if err != nil {
		sundaerest.Error(w, req, http.StatusBadRequest, err)
		return
	}

	key := sundaeslide.NormalizeKey(title)
	if key == "" {
		sundaerest.Error(w, req, http.StatusBadRequest, fmt.Errorf("slide title is required"))
		return
	}

	slide, err := a.Hub.Slide(req.Context(), key)
	if err != nil {
		sundaerest.Error(w, req, http.StatusInternalServerError, err)
		return
	}

	// on failure the upgrader has already replied
	if _, err := slide.Accept(w, req, title); err != nil {
		zerolog.Ctx(req.Context()).Warn().Err(err).Str("slide", key).Msg("websocket upgrade failed")
	}
}

func (a *API) handlePresentations(w http.ResponseWriter, req *http.Request) {
	entries, err := a.Presentations.Entries(req.Context())
	if err != nil {
		sundaerest.Error(w, req, http.StatusInternalServerError, err)
		return
	}

	results := make([]presentationJSON, 0, len(entries))
	for _, e := range entries {
		results = append(results, presentationJSON{
			Number: e.Number,
			Title:  e.Title,
			Slug:   e.Slug,
		})
	}
	sundaerest.JSON(w, req, http.StatusOK, results)
}

func (a *API) handleFeedback(w http.ResponseWriter, req *http.Request) {
	slideID, err := pathParam(req, "slideId")
	if err != nil {
		sundaerest.Error(w, req, http.StatusBadRequest, err)
		return
	}

	rows, err := a.Feedback.ListFeedback(req.Context(), sundaeslide.NormalizeKey(slideID))
	if err != nil {
		sundaerest.Error(w, req, http.StatusInternalServerError, err)
		return
	}

	results := make([]feedbackJSON, 0, len(rows))
	for _, row := range rows {
		results = append(results, feedbackJSON{
			SlideNumber: row.SlideNumber,
			Title:       row.SlideTitle,
			Okay:        row.Okay,
			Good:        row.Good,
			Great:       row.Great,
			MindBlown:   row.MindBlown,
		})
	}
	sundaerest.JSON(w, req, http.StatusOK, results)
}

func pathParam(req *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(req, name))
	if err != nil {
		return "", fmt.Errorf("invalid %v: %w", name, err)
	}
	return value, nil
}
