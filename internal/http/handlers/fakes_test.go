package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/domain/appointment"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/http/middlewares"
	"github.com/hospivibe/clinic/internal/validation"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
	validation.RegisterGinValidators()
}

type fakeUsersRepo struct {
	createFn     func(ctx context.Context, u user.User) (user.User, error)
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	getByIDFn    func(ctx context.Context, id string) (user.User, error)
	listByRoleFn func(ctx context.Context, role user.Role) ([]user.User, error)
	listByIDsFn  func(ctx context.Context, ids []string) ([]user.User, error)
	onboardFn    func(ctx context.Context, id string) error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	u.ID = "new-user"
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	if f.listByRoleFn != nil {
		return f.listByRoleFn(ctx, role)
	}
	return []user.User{}, nil
}

func (f *fakeUsersRepo) ListByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	if f.listByIDsFn != nil {
		return f.listByIDsFn(ctx, ids)
	}
	return []user.User{}, nil
}

func (f *fakeUsersRepo) CompleteOnboarding(ctx context.Context, id string) error {
	if f.onboardFn != nil {
		return f.onboardFn(ctx, id)
	}
	return nil
}

type fakeAppointmentsRepo struct {
	createFn       func(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	getFn          func(ctx context.Context, id string) (appointment.Appointment, error)
	listFn         func(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
	updateFn       func(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error)
	createLegacyFn func(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error)
}

func (f *fakeAppointmentsRepo) Create(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	a.ID = "appt-1"
	return a, nil
}

func (f *fakeAppointmentsRepo) GetByID(ctx context.Context, id string) (appointment.Appointment, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return appointment.Appointment{}, appointment.ErrNotFound
}

func (f *fakeAppointmentsRepo) List(ctx context.Context, filter appointment.ListFilter) ([]appointment.Appointment, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return []appointment.Appointment{}, nil
}

func (f *fakeAppointmentsRepo) Update(ctx context.Context, id string, from appointment.Status, req appointment.UpdateRequest) (appointment.Appointment, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, from, req)
	}
	return appointment.Appointment{ID: id}, nil
}

func (f *fakeAppointmentsRepo) CreateLegacy(ctx context.Context, b appointment.LegacyBooking) (appointment.LegacyBooking, error) {
	if f.createLegacyFn != nil {
		return f.createLegacyFn(ctx, b)
	}
	b.ID = "legacy-1"
	return b, nil
}

type fakeTokens struct {
	issueFn func(subjectID string) (string, error)
}

func (f fakeTokens) Issue(subjectID string) (string, error) {
	if f.issueFn != nil {
		return f.issueFn(subjectID)
	}
	return "token-for-" + subjectID, nil
}

// as stands in for the auth middleware chain.
func as(u user.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middlewares.SetUser(c, u)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp bindErrorResponse
	decode(t, w, &resp)
	return resp.Error.Code
}
