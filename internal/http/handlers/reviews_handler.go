package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/williamsbolu/natours/internal/domain"
	mw "github.com/williamsbolu/natours/internal/http/middleware"
	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/internal/service"
)

// ReviewsHandler is mounted at /api/v1/reviews and at /api/v1/tours/{tourId}/reviews.
type ReviewsHandler struct {
	Reviews service.ReviewService
	Gate    service.Gate
}

func NewReviewsHandler(reviews service.ReviewService, gate service.Gate) *ReviewsHandler {
	return &ReviewsHandler{Reviews: reviews, Gate: gate}
}

func (h *ReviewsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(mw.Protect(h.Gate))

	r.Get("/", h.list)
	r.With(mw.RestrictTo(h.Gate, domain.RoleUser)).Post("/", h.create)

	r.Get("/{id}", h.get)
	r.With(mw.RestrictTo(h.Gate, domain.RoleUser, domain.RoleAdmin)).Patch("/{id}", h.update)
	r.With(mw.RestrictTo(h.Gate, domain.RoleUser, domain.RoleAdmin)).Delete("/{id}", h.delete)
	return r
}

func (h *ReviewsHandler) list(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Reviews.List(r.Context(), chi.URLParam(r, "tourId"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.List(w, len(reviews), map[string]any{"data": reviews})
}

func (h *ReviewsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateReviewRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	if in.TourID == "" {
		in.TourID = chi.URLParam(r, "tourId")
	}
	review, err := h.Reviews.Create(r.Context(), mw.UserFrom(r.Context()).Identity(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Success(w, http.StatusCreated, map[string]any{"data": review})
}

func (h *ReviewsHandler) get(w http.ResponseWriter, r *http.Request) {
	review, err := h.Reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{"data": review})
}

func (h *ReviewsHandler) update(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateReviewRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	review, err := h.Reviews.Update(r.Context(), mw.UserFrom(r.Context()).Identity(), chi.URLParam(r, "id"), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{"data": review})
}

func (h *ReviewsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Reviews.Delete(r.Context(), mw.UserFrom(r.Context()).Identity(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w)
}
