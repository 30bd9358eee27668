package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/platform/credentials"
	"github.com/williamsbolu/natours/internal/platform/payments"
	"github.com/williamsbolu/natours/internal/repo"
	"github.com/williamsbolu/natours/internal/repo/memory"
	"github.com/williamsbolu/natours/internal/service"
	"github.com/williamsbolu/natours/pkg/auth"
	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/metrics"
	pkgmw "github.com/williamsbolu/natours/pkg/middleware"
)

type stubMailer struct {
	mu        sync.Mutex
	resetErr  error
	resetURLs []string
}

func (m *stubMailer) SendWelcome(context.Context, string, string, string) error { return nil }

func (m *stubMailer) SendPasswordReset(_ context.Context, _, _, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetURLs = append(m.resetURLs, url)
	return m.resetErr
}

type stubCheckout struct {
	completed *domain.CompletedCheckout
	parseErr  error
}

func (s *stubCheckout) CreateSession(_ context.Context, in payments.SessionInput) (*domain.CheckoutSession, error) {
	return &domain.CheckoutSession{ID: "cs_test_" + in.TourID, URL: "https://checkout.test/" + in.TourID}, nil
}

func (s *stubCheckout) ParseCompleted([]byte, string) (*domain.CompletedCheckout, bool, error) {
	if s.parseErr != nil {
		return nil, false, s.parseErr
	}
	return s.completed, s.completed != nil, nil
}

type testServer struct {
	handler  http.Handler
	stores   repo.Stores
	hasher   credentials.Hasher
	mailer   *stubMailer
	checkout *stubCheckout
	health   map[string]pkgmw.Check
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		stores:   memory.New().Stores(),
		hasher:   credentials.NewPasswordHasher(credentials.AlgoBcrypt, 4),
		mailer:   &stubMailer{},
		checkout: &stubCheckout{},
		health:   map[string]pkgmw.Check{"database": func(context.Context) error { return nil }},
	}
	cfg := &config.Config{
		BaseURL:   "http://natours.test",
		Server:    config.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Auth:      config.AuthConfig{CookieTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Requests: 100, Window: time.Hour, AuthRequests: 10, AuthWindow: time.Minute},
	}

	bus := events.NewLocalBus()
	m := metrics.NewMetrics("test")
	tokens := auth.NewTokenService("router-test-secret", time.Hour)
	ratings := service.NewRatingAggregator(ts.stores.Reviews, ts.stores.Tours, bus, m, service.RatingConfig{MaxRetries: 1, InitialInterval: time.Millisecond})

	ts.handler = New(Deps{
		Config: cfg,
		Gate:   service.NewGate(ts.stores.Users, tokens, m),
		Auth: service.NewAuthService(ts.stores.Users, ts.hasher, tokens, ts.mailer, bus, m, service.AuthConfig{
			BaseURL:  cfg.BaseURL,
			ResetTTL: 10 * time.Minute,
		}),
		Users:    service.NewUserService(ts.stores.Users),
		Reviews:  service.NewReviewService(ts.stores.Reviews, ts.stores.Tours, ratings, bus),
		Bookings: service.NewBookingService(ts.stores.Bookings, ts.stores.Tours, ts.stores.Users, ts.checkout, bus, cfg.BaseURL),
		Metrics:  m,
		Health:   ts.health,
	})
	return ts
}

func (ts *testServer) createUser(t *testing.T, email, role string) *domain.User {
	t.Helper()
	hash, err := ts.hasher.Hash("pass1234")
	require.NoError(t, err)
	u, err := ts.stores.Users.Create(context.Background(), &domain.User{
		Name:         "Test " + role,
		Email:        email,
		Photo:        domain.DefaultPhoto,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	})
	require.NoError(t, err)
	return u
}

func (ts *testServer) createTour(t *testing.T) *domain.Tour {
	t.Helper()
	req := &domain.CreateTourRequest{
		Name:         "The Forest Hiker",
		Duration:     5,
		MaxGroupSize: 25,
		Difficulty:   domain.DifficultyEasy,
		Price:        397,
		Summary:      "Breathtaking hike through the Canadian Banff National Park",
		ImageCover:   "tour-1-cover.jpg",
	}
	tour, err := ts.stores.Tours.Create(context.Background(), req.ToTour(time.Now()))
	require.NoError(t, err)
	return tour
}

type reqOpt func(*http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cookie(token string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "jwt", Value: token}) }
}

func (ts *testServer) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4000"
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{"email": email, "password": "pass1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSignupSetsCookieAndReturnsUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users/signup", map[string]string{
		"name":            "Lourdes Browning",
		"email":           "Loulou@Example.com",
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["token"])
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "loulou@example.com", user["email"])
	assert.NotContains(t, user, "password")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, body["token"], cookies[0].Value)
}

func TestSignupDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "taken@example.com", domain.RoleUser)

	rec := ts.do(t, http.MethodPost, "/api/v1/users/signup", map[string]string{
		"name":            "Someone",
		"email":           "taken@example.com",
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)

	rec := ts.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{"email": "user@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide email and password", decode(t, rec)["error"])

	rec = ts.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{"email": "user@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect email or password", decode(t, rec)["error"])

	rec = ts.do(t, http.MethodPost, "/api/v1/users/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectRejectsMissingAndBadTokens(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, "You are not logged in! Please log in to get access.", body["error"])

	rec = ts.do(t, http.MethodGet, "/api/v1/users/me", nil, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token. Please log in again!", decode(t, rec)["error"])
}

func TestHeaderTokenTakesPrecedenceOverCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	token := ts.login(t, "user@example.com")

	rec := ts.do(t, http.MethodGet, "/api/v1/users/me", nil, bearer(token), cookie("garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/me", nil, bearer("garbage"), cookie(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/me", nil, cookie(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivatedUserTokenRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	token := ts.login(t, "user@example.com")

	rec := ts.do(t, http.MethodDelete, "/api/v1/users/deleteMe", nil, bearer(token))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/me", nil, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "The user belonging to this token does no longer exist.", decode(t, rec)["error"])
}

func TestLogoutOverwritesCookie(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/users/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "loggedout", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// The placeholder is not a token.
	rec = ts.do(t, http.MethodGet, "/api/v1/users/me", nil, cookie("loggedout"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetLoggedInStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)

	rec := ts.do(t, http.MethodGet, "/api/v1/users/getLoggedInStatus", nil, cookie("loggedout"))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["isLoggedIn"])

	token := ts.login(t, "user@example.com")
	rec = ts.do(t, http.MethodGet, "/api/v1/users/getLoggedInStatus", nil, cookie(token))
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["isLoggedIn"])
	assert.Equal(t, "user@example.com", data["user"].(map[string]any)["email"])
}

func TestUpdateMyPasswordIssuesNewToken(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	token := ts.login(t, "user@example.com")

	rec := ts.do(t, http.MethodPatch, "/api/v1/users/updateMyPassword", map[string]string{
		"passwordCurrent": "wrong-pass",
		"password":        "newpass123",
		"passwordConfirm": "newpass123",
	}, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/users/updateMyPassword", map[string]string{
		"passwordCurrent": "pass1234",
		"password":        "newpass123",
		"passwordConfirm": "newpass123",
	}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["token"])
}

func TestForgotPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)

	rec := ts.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "There is no user with the specified email address", decode(t, rec)["error"])

	rec = ts.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Token sent to email!", decode(t, rec)["message"])

	require.Len(t, ts.mailer.resetURLs, 1)
	resetURL := ts.mailer.resetURLs[0]
	require.True(t, strings.HasPrefix(resetURL, "http://natours.test/api/v1/users/resetPassword/"))
	plain := strings.TrimPrefix(resetURL, "http://natours.test/api/v1/users/resetPassword/")

	rec = ts.do(t, http.MethodPatch, "/api/v1/users/resetPassword/"+plain, map[string]string{
		"password":        "resetpass1",
		"passwordConfirm": "resetpass1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["token"])

	// Single use.
	rec = ts.do(t, http.MethodPatch, "/api/v1/users/resetPassword/"+plain, map[string]string{
		"password":        "resetpass2",
		"passwordConfirm": "resetpass2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Token is invalid or has expired", decode(t, rec)["error"])
}

func TestForgotPasswordDeliveryFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	ts.mailer.resetErr = errors.New("smtp down")

	rec := ts.do(t, http.MethodPost, "/api/v1/users/forgotPassword", map[string]string{"email": "user@example.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "There was an error sending the email, Try again later!", body["error"])
}

func TestReviewLifecycle(t *testing.T) {
	ts := newTestServer(t)
	tour := ts.createTour(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	ts.createUser(t, "guide@example.com", domain.RoleGuide)
	userToken := ts.login(t, "user@example.com")
	guideToken := ts.login(t, "guide@example.com")

	path := "/api/v1/tours/" + tour.ID + "/reviews"

	rec := ts.do(t, http.MethodPost, path, map[string]any{"review": "Great", "rating": 4}, bearer(guideToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to perform this action", decode(t, rec)["error"])

	rec = ts.do(t, http.MethodPost, path, map[string]any{"review": "Great", "rating": 4}, bearer(userToken))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)["data"].(map[string]any)["data"].(map[string]any)
	reviewID := created["id"].(string)

	rec = ts.do(t, http.MethodPost, path, map[string]any{"review": "Again", "rating": 5}, bearer(userToken))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "You have already reviewed this tour", decode(t, rec)["error"])

	stored, err := ts.stores.Tours.FindByID(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RatingsQuantity)
	assert.Equal(t, 4.0, stored.RatingsAverage)

	rec = ts.do(t, http.MethodGet, path, nil, bearer(guideToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["results"])

	rec = ts.do(t, http.MethodPatch, "/api/v1/reviews/"+reviewID, map[string]any{"rating": 2}, bearer(userToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err = ts.stores.Tours.FindByID(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.RatingsAverage)

	rec = ts.do(t, http.MethodDelete, "/api/v1/reviews/"+reviewID, nil, bearer(userToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err = ts.stores.Tours.FindByID(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RatingsQuantity)
	assert.Equal(t, domain.DefaultRatingsAverage, stored.RatingsAverage)

	rec = ts.do(t, http.MethodGet, "/api/v1/reviews/"+reviewID, nil, bearer(userToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewCreateUnknownTour(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "user@example.com", domain.RoleUser)
	token := ts.login(t, "user@example.com")

	rec := ts.do(t, http.MethodPost, "/api/v1/tours/missing/reviews", map[string]any{"review": "Hm", "rating": 3}, bearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutAndWebhook(t *testing.T) {
	ts := newTestServer(t)
	tour := ts.createTour(t)
	ts.createUser(t, "buyer@example.com", domain.RoleUser)
	token := ts.login(t, "buyer@example.com")

	rec := ts.do(t, http.MethodGet, "/api/v1/bookings/checkout-session/"+tour.ID, nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode(t, rec)["session"].(map[string]any)
	assert.Equal(t, "cs_test_"+tour.ID, session["id"])

	ts.checkout.parseErr = payments.ErrInvalidSignature
	rec = ts.do(t, http.MethodPost, "/webhook-checkout", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Webhook error: invalid signature", decode(t, rec)["error"])

	ts.checkout.parseErr = nil
	ts.checkout.completed = &domain.CompletedCheckout{
		SessionID:     "cs_test_1",
		TourID:        tour.ID,
		CustomerEmail: "buyer@example.com",
		AmountTotal:   39700,
	}
	for i := 0; i < 2; i++ {
		// Stripe redelivers until it sees a 2xx; the second delivery is a no-op.
		rec = ts.do(t, http.MethodPost, "/webhook-checkout", `{"type":"checkout.session.completed"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, true, decode(t, rec)["received"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/bookings/my-bookings", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["results"])
	bookings := body["data"].(map[string]any)["bookings"].([]any)
	assert.Equal(t, 397.0, bookings[0].(map[string]any)["price"])
}

func TestBodyLimitAppliesToAPI(t *testing.T) {
	ts := newTestServer(t)

	big := `{"name":"` + strings.Repeat("a", maxJSONBody) + `"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/users/signup", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.health["database"] = func(context.Context) error { return errors.New("down") }
	rec = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ts.do(t, http.MethodGet, "/api/v1/users/me", nil)
	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_auth_failures_total")

	rec = ts.do(t, http.MethodGet, "/api/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Can't find /api/v2/nothing on this server!", decode(t, rec)["error"])
}

func TestSecurityAndRequestIDHeaders(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/users/logout", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
