package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/auth"
	"github.com/hospivibe/clinic/internal/config"
	apphttp "github.com/hospivibe/clinic/internal/http"
	"github.com/hospivibe/clinic/internal/idempotency"
	"github.com/hospivibe/clinic/internal/observability"
	"github.com/hospivibe/clinic/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		StoreDriver:         config.StoreMemory,
		JWTSecret:           "test-secret-key",
		JWTAccessTTLMinutes: 60,
		RequestTimeout:      2 * time.Second,
		IdempotencyTTL:      time.Hour,
		MaxBodyBytes:        1 << 20,
		CORSAllowedOrigins:  []string{"*"},
		AuthRateLimitRPS:    100,
		AuthRateLimitBurst:  100,
	}
}

func setupRouter(t *testing.T) *apphttp.Router {
	t.Helper()
	return setupRouterWith(t, testConfig())
}

func setupRouterWith(t *testing.T, cfg config.Config) *apphttp.Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()

	return apphttp.NewRouter(logger, cfg, apphttp.Deps{
		Store:       store.NewMemory(),
		JWT:         auth.NewManager(cfg.JWTSecret, cfg.AccessTTL()),
		Idempotency: idempotency.NewMemoryStore(cfg.IdempotencyTTL),
		Prom:        observability.NewProm(reg),
		Gatherer:    reg,
	})
}

// helpers

type request struct {
	method  string
	path    string
	body    string
	token   string
	headers map[string]string
}

func do(router http.Handler, r request) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.method, r.path, bytes.NewBufferString(r.body))

	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int, step string) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("%s: got status %d, want %d, body=%s", step, w.Code, want, w.Body.String())
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        struct {
		ID                 string `json:"id"`
		Email              string `json:"email"`
		Role               string `json:"role"`
		OnboardingComplete bool   `json:"onboarding_complete"`
	} `json:"user"`
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func register(t *testing.T, router http.Handler, name, email, role string) authResponse {
	t.Helper()

	body := `{"name":"` + name + `","email":"` + email + `","password":"passw0rd","role":"` + role + `"}`
	w := do(router, request{method: http.MethodPost, path: "/api/auth/register", body: body})
	expectStatus(t, w, http.StatusCreated, "register "+email)

	var resp authResponse
	mustReadJSON(t, w, &resp)
	return resp
}

func TestClinicIntegration_AuthAndProfile(t *testing.T) {
	router := setupRouter(t)

	body := `{"name":"Sam Doe","email":"Sam@Example.com","password":"passw0rd","role":"patient"}`
	key := map[string]string{"Idempotency-Key": "signup-1"}

	w := do(router, request{method: http.MethodPost, path: "/api/auth/register", body: body, headers: key})
	expectStatus(t, w, http.StatusCreated, "register")

	var reg authResponse
	mustReadJSON(t, w, &reg)
	if reg.AccessToken == "" || reg.TokenType != "bearer" || reg.User.Email != "sam@example.com" || reg.User.OnboardingComplete {
		t.Fatalf("unexpected register response %+v", reg)
	}

	// replay with the same key returns the stored response
	replay := do(router, request{method: http.MethodPost, path: "/api/auth/register", body: body, headers: key})
	expectStatus(t, replay, http.StatusCreated, "replay")
	if replay.Header().Get("Idempotent-Replayed") != "true" || replay.Body.String() != w.Body.String() {
		t.Fatalf("replay not served from idempotency store: headers=%v body=%s", replay.Header(), replay.Body.String())
	}

	// a fresh attempt hits the unique email
	w = do(router, request{method: http.MethodPost, path: "/api/auth/register", body: body})
	expectStatus(t, w, http.StatusBadRequest, "duplicate register")
	var dup errorResponse
	mustReadJSON(t, w, &dup)
	if dup.Error.Code != "email_taken" || dup.Error.RequestID == "" {
		t.Fatalf("unexpected duplicate error %+v", dup)
	}

	// login
	w = do(router, request{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"sam@example.com","password":"passw0rd","role":"patient"}`})
	expectStatus(t, w, http.StatusOK, "login")
	var login authResponse
	mustReadJSON(t, w, &login)
	if login.User.ID != reg.User.ID {
		t.Fatalf("login user %q, want %q", login.User.ID, reg.User.ID)
	}

	w = do(router, request{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"sam@example.com","password":"passw0rd","role":"doctor"}`})
	expectStatus(t, w, http.StatusUnauthorized, "login with wrong role")

	// profile
	w = do(router, request{method: http.MethodGet, path: "/api/user/profile"})
	expectStatus(t, w, http.StatusUnauthorized, "profile without token")

	w = do(router, request{method: http.MethodGet, path: "/api/user/profile", token: "garbage"})
	expectStatus(t, w, http.StatusUnauthorized, "profile with bad token")

	w = do(router, request{method: http.MethodGet, path: "/api/user/profile", token: login.AccessToken})
	expectStatus(t, w, http.StatusOK, "profile")
	var profile map[string]any
	mustReadJSON(t, w, &profile)
	if profile["_id"] != reg.User.ID || profile["onboarding_complete"] != false {
		t.Fatalf("unexpected profile %v", profile)
	}
	if _, leaked := profile["password"]; leaked {
		t.Fatalf("profile leaks password")
	}

	// onboarding has no body
	w = do(router, request{method: http.MethodPost, path: "/api/user/onboarding", token: login.AccessToken})
	expectStatus(t, w, http.StatusOK, "onboarding")

	w = do(router, request{method: http.MethodGet, path: "/api/user/profile", token: login.AccessToken})
	mustReadJSON(t, w, &profile)
	if profile["onboarding_complete"] != true {
		t.Fatalf("onboarding flag not set: %v", profile)
	}
}

func TestClinicIntegration_AppointmentLifecycle(t *testing.T) {
	router := setupRouter(t)

	pat := register(t, router, "Pat", "pat@clinic.com", "patient")
	other := register(t, router, "Other", "other@clinic.com", "patient")
	doc := register(t, router, "Doc", "doc@clinic.com", "doctor")
	nurse := register(t, router, "Nur", "nur@clinic.com", "nurse")

	// directory
	w := do(router, request{method: http.MethodGet, path: "/api/users?role=doctor", token: pat.AccessToken})
	expectStatus(t, w, http.StatusOK, "list doctors")
	var doctors []map[string]any
	mustReadJSON(t, w, &doctors)
	if len(doctors) != 1 || doctors[0]["_id"] != doc.User.ID {
		t.Fatalf("unexpected doctors %v", doctors)
	}

	w = do(router, request{method: http.MethodGet, path: "/api/users?role=patient", token: pat.AccessToken})
	expectStatus(t, w, http.StatusForbidden, "patient lists patients")

	// booking
	booking := `{"doctor_id":"` + doc.User.ID + `","date":"2026-03-01","time":"09:00","reason":"checkup"}`

	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: booking, token: nurse.AccessToken})
	expectStatus(t, w, http.StatusForbidden, "nurse books")

	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: booking, token: pat.AccessToken})
	expectStatus(t, w, http.StatusCreated, "book")

	var created struct {
		Appointment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"appointment"`
	}
	mustReadJSON(t, w, &created)
	if created.Appointment.ID == "" || created.Appointment.Status != "scheduled" {
		t.Fatalf("unexpected booking %+v", created)
	}

	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: booking, token: other.AccessToken})
	expectStatus(t, w, http.StatusConflict, "double booking")

	missingDoctor := `{"doctor_id":"` + nurse.User.ID + `","date":"2026-03-01","time":"10:00","reason":"checkup"}`
	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: missingDoctor, token: pat.AccessToken})
	expectStatus(t, w, http.StatusNotFound, "book a non-doctor")

	// listings
	type row struct {
		ID     string `json:"_id"`
		Status string `json:"status"`
		Doctor *struct {
			Name string `json:"name"`
		} `json:"doctor"`
		Patient *struct {
			Name string `json:"name"`
		} `json:"patient"`
	}

	for _, tc := range []struct {
		who   string
		token string
		want  int
	}{
		{"patient", pat.AccessToken, 1},
		{"doctor", doc.AccessToken, 1},
		{"other patient", other.AccessToken, 0},
		{"nurse", nurse.AccessToken, 0},
	} {
		w = do(router, request{method: http.MethodGet, path: "/api/appointments", token: tc.token})
		expectStatus(t, w, http.StatusOK, "list as "+tc.who)

		var rows []row
		mustReadJSON(t, w, &rows)
		if len(rows) != tc.want {
			t.Fatalf("%s sees %d appointments, want %d", tc.who, len(rows), tc.want)
		}
		if tc.want == 1 && (rows[0].Doctor == nil || rows[0].Doctor.Name != "Doc" || rows[0].Patient == nil || rows[0].Patient.Name != "Pat") {
			t.Fatalf("%s listing not enriched: %+v", tc.who, rows[0])
		}
	}

	// updates
	path := "/api/appointments/" + created.Appointment.ID

	w = do(router, request{method: http.MethodPut, path: path, body: `{"doctor_notes":"hi"}`, token: pat.AccessToken})
	expectStatus(t, w, http.StatusForbidden, "patient writes notes")

	w = do(router, request{method: http.MethodPut, path: path, body: `{"status":"confirmed","doctor_notes":"fasting"}`, token: doc.AccessToken})
	expectStatus(t, w, http.StatusOK, "doctor confirms")

	w = do(router, request{method: http.MethodPut, path: path, body: `{"status":"cancelled"}`, token: other.AccessToken})
	expectStatus(t, w, http.StatusForbidden, "stranger cancels")

	w = do(router, request{method: http.MethodPut, path: path, body: `{}`, token: doc.AccessToken})
	expectStatus(t, w, http.StatusBadRequest, "empty update")

	w = do(router, request{method: http.MethodPut, path: path, body: `{"status":"cancelled"}`, token: pat.AccessToken})
	expectStatus(t, w, http.StatusOK, "patient cancels")

	w = do(router, request{method: http.MethodPut, path: path, body: `{"status":"confirmed"}`, token: doc.AccessToken})
	expectStatus(t, w, http.StatusConflict, "reopen cancelled")

	w = do(router, request{method: http.MethodPut, path: "/api/appointments/does-not-exist", body: `{"status":"confirmed"}`, token: doc.AccessToken})
	expectStatus(t, w, http.StatusNotFound, "update missing")

	// a cancelled booking frees the slot
	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: booking, token: other.AccessToken})
	expectStatus(t, w, http.StatusCreated, "rebook freed slot")
}

func TestClinicIntegration_LegacySchedule(t *testing.T) {
	router := setupRouter(t)
	pat := register(t, router, "Pat", "pat@clinic.com", "patient")

	body := `{"specialty":"Cardiology","doctor":"Dr. House","date":"2026-03-01","time":"09:00","reason":"pain"}`

	w := do(router, request{method: http.MethodPost, path: "/api/appointments/schedule", body: body, token: pat.AccessToken})
	expectStatus(t, w, http.StatusCreated, "legacy schedule")

	var resp struct {
		AppointmentID string `json:"appointment_id"`
		Details       struct {
			Doctor string `json:"doctor"`
		} `json:"details"`
	}
	mustReadJSON(t, w, &resp)
	if resp.AppointmentID == "" || resp.Details.Doctor != "Dr. House" {
		t.Fatalf("unexpected legacy response %s", w.Body.String())
	}

	w = do(router, request{method: http.MethodPost, path: "/api/appointments/schedule", body: body, token: pat.AccessToken})
	expectStatus(t, w, http.StatusConflict, "legacy double booking")

	w = do(router, request{method: http.MethodPost, path: "/api/appointments/schedule", body: `{"doctor":"Dr. House"}`, token: pat.AccessToken})
	expectStatus(t, w, http.StatusBadRequest, "legacy missing fields")
}

func TestClinicIntegration_TransportRules(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`email=a`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusUnsupportedMediaType, "form body")

	w = do(router, request{method: http.MethodGet, path: "/healthz"})
	expectStatus(t, w, http.StatusOK, "healthz")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}

	w = do(router, request{method: http.MethodGet, path: "/readyz"})
	expectStatus(t, w, http.StatusOK, "readyz")

	w = do(router, request{method: http.MethodGet, path: "/metrics"})
	expectStatus(t, w, http.StatusOK, "metrics")
	if !strings.Contains(w.Body.String(), "clinic_http_requests_total") {
		t.Fatalf("metrics missing request counter")
	}
	if !strings.Contains(w.Body.String(), `clinic_http_errors_total{code="unsupported_media_type",route="/api/auth/login"} 1`) {
		t.Fatalf("metrics missing the rejected form body:\n%s", w.Body.String())
	}

	router.Drain()
	w = do(router, request{method: http.MethodGet, path: "/readyz"})
	expectStatus(t, w, http.StatusServiceUnavailable, "readyz while draining")
}

func TestClinicIntegration_BookingThrottlePerPatient(t *testing.T) {
	cfg := testConfig()
	cfg.BookingRateLimitRPS = 0.001
	cfg.BookingRateLimitBurst = 1
	router := setupRouterWith(t, cfg)

	pat := register(t, router, "Pat", "pat@clinic.com", "patient")
	other := register(t, router, "Other", "other@clinic.com", "patient")
	doc := register(t, router, "Doc", "doc@clinic.com", "doctor")

	slot := func(hour string) string {
		return `{"doctor_id":"` + doc.User.ID + `","date":"2026-03-01","time":"` + hour + `","reason":"checkup"}`
	}

	w := do(router, request{method: http.MethodPost, path: "/api/appointments", body: slot("09:00"), token: pat.AccessToken})
	expectStatus(t, w, http.StatusCreated, "first booking")

	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: slot("10:00"), token: pat.AccessToken})
	expectStatus(t, w, http.StatusTooManyRequests, "second booking inside the window")
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("throttled booking should carry Retry-After")
	}

	w = do(router, request{method: http.MethodPost, path: "/api/appointments", body: slot("10:00"), token: other.AccessToken})
	expectStatus(t, w, http.StatusCreated, "another patient is not throttled")

	w = do(router, request{method: http.MethodPut, path: "/api/appointments/does-not-matter", body: `{"status":"cancelled"}`, token: pat.AccessToken})
	if w.Code == http.StatusTooManyRequests {
		t.Fatalf("updates are not booking writes")
	}
}
