package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/williamsbolu/natours/internal/domain"
	mw "github.com/williamsbolu/natours/internal/http/middleware"
	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/internal/service"
)

const tokenCookie = "jwt"

// AuthHandler serves /api/v1/users: the login-like flows and the current user's account.
type AuthHandler struct {
	Auth      service.AuthService
	Users     service.UserService
	Gate      service.Gate
	CookieTTL time.Duration
	// Limit guards the credential endpoints. Optional.
	Limit func(http.Handler) http.Handler
}

func NewAuthHandler(auth service.AuthService, users service.UserService, gate service.Gate, cookieTTL time.Duration) *AuthHandler {
	return &AuthHandler{Auth: auth, Users: users, Gate: gate, CookieTTL: cookieTTL}
}

func (h *AuthHandler) Routes() chi.Router {
	limit := h.Limit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.With(mw.IsLoggedIn(h.Gate)).Get("/getLoggedInStatus", h.loggedInStatus)
	r.Post("/signup", h.signup)
	r.With(limit).Post("/login", h.login)
	r.Get("/logout", h.logout)
	r.With(limit).Post("/forgotPassword", h.forgotPassword)
	r.Patch("/resetPassword/{token}", h.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(mw.Protect(h.Gate))
		r.Patch("/updateMyPassword", h.updatePassword)
		r.Get("/me", h.me)
		r.Patch("/updateMe", h.updateMe)
		r.Delete("/deleteMe", h.deleteMe)
	})
	return r
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var in domain.SignupRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	sess, err := h.Auth.Signup(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.sendToken(w, r, http.StatusCreated, sess)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	sess, err := h.Auth.Login(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.sendToken(w, r, http.StatusOK, sess)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
	})
	response.WriteJSON(w, http.StatusOK, response.Envelope{Status: "success"})
}

func (h *AuthHandler) loggedInStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"isLoggedIn": false}
	if user := mw.UserFrom(r.Context()); user != nil {
		data["isLoggedIn"] = true
		data["user"] = user.ToUserInfo()
	}
	response.Success(w, http.StatusOK, data)
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in domain.ForgotPasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	if _, err := h.Auth.RequestReset(r.Context(), &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in domain.ResetPasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	sess, err := h.Auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.sendToken(w, r, http.StatusOK, sess)
}

func (h *AuthHandler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdatePasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	sess, err := h.Auth.ChangePassword(r.Context(), mw.UserFrom(r.Context()).ID, &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.sendToken(w, r, http.StatusOK, sess)
}

// sendToken sets the session cookie and returns the token with the user.
func (h *AuthHandler) sendToken(w http.ResponseWriter, r *http.Request, status int, sess *service.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  time.Now().Add(h.CookieTTL),
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	response.WriteJSON(w, status, response.Envelope{
		Status: "success",
		Token:  sess.Token,
		Data:   map[string]any{"user": sess.User.ToUserInfo()},
	})
}
