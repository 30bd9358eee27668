package handlers

import (
	"net/http"

	"github.com/williamsbolu/natours/internal/domain"
	mw "github.com/williamsbolu/natours/internal/http/middleware"
	"github.com/williamsbolu/natours/internal/http/response"
)

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Me(r.Context(), mw.UserFrom(r.Context()).ID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{"user": user.ToUserInfo()})
}

func (h *AuthHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateMeRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	user, err := h.Users.UpdateMe(r.Context(), mw.UserFrom(r.Context()).ID, &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{"user": user.ToUserInfo()})
}

func (h *AuthHandler) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeactivateMe(r.Context(), mw.UserFrom(r.Context()).ID); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w)
}
