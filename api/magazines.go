package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vibecoding/magazine-backend/api/apicommon"
	"github.com/vibecoding/magazine-backend/db"
	"github.com/vibecoding/magazine-backend/errors"
	"github.com/vibecoding/magazine-backend/internal"
	"github.com/vibecoding/magazine-backend/validator"
	"go.vocdoni.io/dvote/log"
)

// createMagazineHandler stores a new magazine written by the authenticated
// user. The body is validated by the InputValidator middleware.
//
//	POST /magazines
func (a *API) createMagazineHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := apicommon.UserIDFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req, ok := model.(*MagazineRequest)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	magazine := &db.Magazine{
		Category:    req.Category,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Content:     strings.TrimSpace(req.Content),
		ImageURL:    req.ImageURL,
		Tags:        internal.ParseTags(req.Tags),
		AuthorID:    userID,
	}
	if err := a.db.SetMagazine(magazine); err != nil {
		if stderrors.Is(err, db.ErrInvalidData) {
			errors.ErrInvalidMagazineData.Write(w)
			return
		}
		errors.ErrStorageFailed.WithMessage(fmt.Sprintf("등록 실패: %v", err)).Write(w)
		return
	}
	log.Infow("magazine created", "id", magazine.ID, "category", magazine.Category, "author", userID)
	apicommon.HTTPWriteJSON(w, &MagazineCreatedResponse{Success: true, ID: magazine.ID})
}

// magazineHandler returns a magazine with its content.
//
//	GET /magazines/{id}
func (a *API) magazineHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		errors.ErrMalformedURLParam.With("missing magazine id").Write(w)
		return
	}
	magazine, err := a.db.Magazine(id)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			errors.ErrMagazineNotFound.Write(w)
			return
		}
		errors.ErrStorageFailed.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, magazine)
}

// magazinesHandler lists the newest magazines, optionally of a category.
//
//	GET /magazines?category=ai&limit=10
func (a *API) magazinesHandler(w http.ResponseWriter, r *http.Request) {
	filter := db.MagazineFilter{Category: r.URL.Query().Get("category")}
	if filter.Category != "" && !db.IsValidCategory(filter.Category) {
		errors.ErrMalformedURLParam.Withf("unknown category %q", filter.Category).Write(w)
		return
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.ParseInt(limit, 10, 64)
		if err != nil || n <= 0 || n > apicommon.MaxMagazinesLimit {
			errors.ErrMalformedURLParam.Withf("limit must be between 1 and %d", apicommon.MaxMagazinesLimit).Write(w)
			return
		}
		filter.Limit = n
	}
	magazines, err := a.db.Magazines(filter)
	if err != nil {
		errors.ErrStorageFailed.WithErr(err).Write(w)
		return
	}
	resp := &MagazinesResponse{Magazines: make([]MagazineSummary, 0, len(magazines))}
	for _, m := range magazines {
		resp.Magazines = append(resp.Magazines, MagazineSummary{
			ID:          m.ID,
			Category:    m.Category,
			Title:       m.Title,
			Description: internal.Excerpt(m.Description, apicommon.DescriptionExcerptLength),
			ImageURL:    m.ImageURL,
			Tags:        m.Tags,
			CreatedAt:   m.CreatedAt,
		})
	}
	apicommon.HTTPWriteJSON(w, resp)
}
