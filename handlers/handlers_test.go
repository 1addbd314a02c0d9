package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"log/slog"
	"testing"
	"time"

	"timesheet/database"
	"timesheet/logging"
	"timesheet/middleware"
	"timesheet/models"
	"timesheet/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testApp struct {
	router http.Handler
	svc    *tracker.Service
	auth   *middleware.Auth
	db     *gorm.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", logging.Discard(), false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	svc := tracker.New(db, logging.Discard())
	auth := middleware.NewAuth("0123456789abcdef0123456789abcdef", time.Hour, db)
	router := NewRouter(RouterDeps{
		Service: svc,
		Auth:    auth,
		DB: PingerFunc(func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}),
		Logger: logging.Discard(),
	})
	return &testApp{router: router, svc: svc, auth: auth, db: db}
}

// member creates an account that has already changed its initial password.
func (a *testApp) member(t *testing.T, username string) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := a.svc.CreateUser(ctx, username, "initial-pw")
	require.NoError(t, err)
	require.NoError(t, a.svc.ChangePassword(ctx, u, "initial-pw", "member-pw"))
	return u
}

func (a *testApp) admin(t *testing.T) *models.User {
	t.Helper()
	_, err := database.SeedAdmin(a.db, "admin", "admin-password")
	require.NoError(t, err)
	var u models.User
	require.NoError(t, a.db.Where("role = ?", models.RoleAdmin).First(&u).Error)
	require.NoError(t, a.svc.ChangePassword(context.Background(), &u, "admin-password", "admin-password-2"))
	return &u
}

func (a *testApp) do(t *testing.T, user *models.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := a.auth.GenerateToken(user)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	rec = app.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(PingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	u, err := app.svc.CreateUser(context.Background(), "alice", "initial-pw")
	require.NoError(t, err)

	rec := app.do(t, nil, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, nil, http.MethodPost, "/api/login", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, nil, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "initial-pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.TokenCookieName+"=")
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, true, resp["must_change_password"])

	// Logging in provisions the current month's default resource
	p := app.svc.CurrentPeriod()
	var resources []models.Resource
	require.NoError(t, app.db.Where("user_id = ? AND month = ? AND year = ?", u.ID, p.Month, p.Year).Find(&resources).Error)
	require.Len(t, resources, 1)
	assert.Equal(t, "alice", resources[0].Name)
}

func TestRegisterDisabled(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, nil, http.MethodPost, "/api/register", map[string]string{"username": "x", "password": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthStatus(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")

	rec := app.do(t, nil, http.MethodGet, "/api/auth-status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["authenticated"])

	rec = app.do(t, u, http.MethodGet, "/api/auth-status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["authenticated"])
}

func TestPasswordChangeGate(t *testing.T) {
	app := newTestApp(t)
	u, err := app.svc.CreateUser(context.Background(), "alice", "initial-pw")
	require.NoError(t, err)

	rec := app.do(t, u, http.MethodGet, "/api/monthly-data?month=3&year=2025", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, u, http.MethodGet, "/api/user/security-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["must_change_password"])

	rec = app.do(t, u, http.MethodPost, "/api/user/change-password", map[string]string{
		"current_password": "wrong", "new_password": "new-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, u, http.MethodPost, "/api/user/change-password", map[string]string{
		"current_password": "initial-pw", "new_password": "new-secret", "confirm_password": "different",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, u, http.MethodPost, "/api/user/change-password", map[string]string{
		"current_password": "initial-pw", "new_password": "new-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), middleware.TokenCookieName+"=")

	rec = app.do(t, u, http.MethodGet, "/api/monthly-data?month=3&year=2025", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminChangePassword_MembersForbidden(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")

	rec := app.do(t, u, http.MethodPost, "/api/admin/change-password", map[string]string{
		"current_password": "member-pw", "new_password": "another-pw",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminSecurityStatus(t *testing.T) {
	app := newTestApp(t)
	admin := app.admin(t)
	member := app.member(t, "alice")

	rec := app.do(t, admin, http.MethodGet, "/api/admin/security-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, "admin", status["role"])
	assert.Equal(t, false, status["must_change_password"])

	rec = app.do(t, member, http.MethodGet, "/api/admin/security-status", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMonthlyDataRoundTrip(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")

	rec := app.do(t, u, http.MethodGet, "/api/monthly-data?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[tracker.PeriodView](t, rec)
	require.Len(t, view.Resources, 1)
	resourceID := view.Resources[0].ID

	rec = app.do(t, u, http.MethodPost, "/api/monthly-data", map[string]any{
		"month":        "3",
		"year":         2025,
		"working_days": 20,
		"leaves":       []map[string]any{{"resource_id": resourceID, "leave_days": 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, u, http.MethodGet, "/api/monthly-data?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[tracker.PeriodView](t, rec)
	assert.Equal(t, 20, view.WorkingDays)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, 15, view.Rows[0].BillableDays)
	assert.Equal(t, 15, view.TotalBillableDays)
}

func TestMonthlyDataValidation(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")
	ctx := context.Background()
	march := models.Period{Month: 3, Year: 2025}

	view, err := app.svc.GetPeriodView(ctx, u, march)
	require.NoError(t, err)
	resourceID := view.Resources[0].ID
	require.NoError(t, app.svc.SetPeriodData(ctx, u, march, 20, []models.LeaveInput{
		{ResourceID: resourceID, LeaveDays: 5},
	}))

	tests := []struct {
		name string
		path string
		body any
		want string
	}{
		{"get without month", "/api/monthly-data?year=2025", nil, "month is required"},
		{"get bad month", "/api/monthly-data?month=13&year=2025", nil, "month must be between 1 and 12"},
		{"post malformed json", "/api/monthly-data", "{", "body must be valid JSON"},
		{"post missing month", "/api/monthly-data", map[string]any{
			"year": 2025, "working_days": 20, "leaves": []any{},
		}, "month is required"},
		{"post only period", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025,
		}, "working_days is required"},
		{"post null working days", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": nil, "leaves": []any{},
		}, "working_days is required"},
		{"post missing leaves", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 20,
		}, "leaves is required"},
		{"post null leaves", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 20, "leaves": nil,
		}, "leaves is required"},
		{"post leave without days", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 20,
			"leaves": []map[string]any{{"resource_id": resourceID}},
		}, "leaves[0].leave_days is required"},
		{"post leave without resource", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 20,
			"leaves": []map[string]any{{"leave_days": 2}},
		}, "leaves[0].resource_id is required"},
		{"post working days too high", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 32, "leaves": []any{},
		}, "working_days"},
		{"post negative leave", "/api/monthly-data", map[string]any{
			"month": 3, "year": 2025, "working_days": 20,
			"leaves": []map[string]any{{"resource_id": resourceID, "leave_days": -1}},
		}, "leaves[0].leave_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.body != nil {
				method = http.MethodPost
			}
			rec := app.do(t, u, method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}

	// Rejected writes leave the stored month untouched
	after, err := app.svc.GetPeriodView(ctx, u, march)
	require.NoError(t, err)
	assert.Equal(t, 20, after.WorkingDays)
	require.Len(t, after.Leaves, 1)
	assert.Equal(t, 5, after.Leaves[0].LeaveDays)
}

func TestMonthlyData_EmptyLeavesClearsLeave(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")
	ctx := context.Background()
	march := models.Period{Month: 3, Year: 2025}

	view, err := app.svc.GetPeriodView(ctx, u, march)
	require.NoError(t, err)
	require.NoError(t, app.svc.SetPeriodData(ctx, u, march, 20, []models.LeaveInput{
		{ResourceID: view.Resources[0].ID, LeaveDays: 5},
	}))

	rec := app.do(t, u, http.MethodPost, "/api/monthly-data", map[string]any{
		"month": 3, "year": 2025, "working_days": 18, "leaves": []any{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, err := app.svc.GetPeriodView(ctx, u, march)
	require.NoError(t, err)
	assert.Equal(t, 18, after.WorkingDays)
	assert.Empty(t, after.Leaves)
}

func TestResources(t *testing.T) {
	app := newTestApp(t)
	alice := app.member(t, "alice")
	bob := app.member(t, "bob")

	// Listing a period provisions the default resource
	rec := app.do(t, alice, http.MethodGet, "/api/resources?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Resource](t, rec), 1)

	rec = app.do(t, alice, http.MethodPost, "/api/resources", map[string]any{"name": "Second", "month": 3, "year": 2025})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Resource](t, rec)
	assert.Equal(t, "Second", created.Name)

	rec = app.do(t, alice, http.MethodPost, "/api/resources", map[string]any{"name": "  ", "month": 3, "year": 2025})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, alice, http.MethodGet, "/api/resources?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Resource](t, rec), 2)

	rec = app.do(t, alice, http.MethodGet, "/api/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Resource](t, rec), 2)

	rec = app.do(t, bob, http.MethodDelete, "/api/resources/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, alice, http.MethodDelete, "/api/resources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, alice, http.MethodDelete, "/api/resources/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	app := newTestApp(t)
	u := app.member(t, "alice")

	for _, path := range []string{
		"/api/admin/users",
		"/api/admin/all-resources",
		"/api/admin/monthly-data?month=3&year=2025",
		"/api/admin/monthly-data/csv?month=3&year=2025",
	} {
		rec := app.do(t, u, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	rec := app.do(t, nil, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUserManagement(t *testing.T) {
	app := newTestApp(t)
	admin := app.admin(t)

	rec := app.do(t, admin, http.MethodPost, "/api/admin/create-user", map[string]string{"username": "carol", "password": "carol-pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	carol := decode[models.User](t, rec)
	assert.Empty(t, carol.PasswordHash)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = app.do(t, admin, http.MethodPost, "/api/admin/create-user", map[string]string{"username": "carol", "password": "carol-pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, admin, http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]models.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Username)

	rec = app.do(t, admin, http.MethodDelete, "/api/admin/delete-user/"+itoa(admin.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, admin, http.MethodDelete, "/api/admin/delete-user/"+itoa(carol.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, admin, http.MethodDelete, "/api/admin/delete-user/"+itoa(carol.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminReport(t *testing.T) {
	app := newTestApp(t)
	admin := app.admin(t)
	alice := app.member(t, "alice")
	ctx := context.Background()
	march := models.Period{Month: 3, Year: 2025}

	view, err := app.svc.GetPeriodView(ctx, alice, march)
	require.NoError(t, err)
	require.NoError(t, app.svc.SetPeriodData(ctx, alice, march, 20, []models.LeaveInput{
		{ResourceID: view.Resources[0].ID, LeaveDays: 5},
	}))

	rec := app.do(t, admin, http.MethodGet, "/api/admin/monthly-data?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[consolidatedResponse](t, rec)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "alice", report.Rows[0].Username)
	assert.Equal(t, 15, report.Rows[0].BillableDays)
	assert.Equal(t, 15, report.Totals.BillableDays)

	rec = app.do(t, admin, http.MethodGet, "/api/admin/monthly-data/csv?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "billable_2025_03.csv")
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"alice", "20", "1", "5", "15"}, records[1])
	assert.Equal(t, "TOTAL", records[2][0])

	rec = app.do(t, admin, http.MethodGet, "/api/admin/user-details/"+itoa(alice.ID)+"?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[tracker.UserDetail](t, rec)
	assert.Equal(t, 20, detail.WorkingDays)
	assert.Len(t, detail.Resources, 1)

	rec = app.do(t, admin, http.MethodGet, "/api/admin/user-details/9999?month=3&year=2025", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, admin, http.MethodGet, "/api/admin/all-resources?month=3&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]models.ResourceWithOwner](t, rec)
	require.Len(t, all, 1)
	assert.Equal(t, "alice", all[0].Username)

	rec = app.do(t, admin, http.MethodGet, "/api/admin/monthly-data?month=0&year=2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    flexInt
		wantErr bool
	}{
		{`3`, flexInt{Value: 3, Set: true}, false},
		{`"12"`, flexInt{Value: 12, Set: true}, false},
		{`" 7 "`, flexInt{Value: 7, Set: true}, false},
		{`""`, flexInt{}, false},
		{`null`, flexInt{}, false},
		{`"march"`, flexInt{}, true},
		{`3.5`, flexInt{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got flexInt
			err := got.UnmarshalJSON([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

type failingWriter struct {
	header http.Header
	status int
}

func (f *failingWriter) Header() http.Header       { return f.header }
func (f *failingWriter) WriteHeader(status int)    { f.status = status }
func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestExportCSV_LogsWriteFailure(t *testing.T) {
	app := newTestApp(t)
	alice := app.member(t, "alice")
	ctx := context.Background()
	march := models.Period{Month: 3, Year: 2025}
	view, err := app.svc.GetPeriodView(ctx, alice, march)
	require.NoError(t, err)
	require.NoError(t, app.svc.SetPeriodData(ctx, alice, march, 20, []models.LeaveInput{
		{ResourceID: view.Resources[0].ID, LeaveDays: 1},
	}))

	var logs bytes.Buffer
	h := NewAdminHandler(app.svc, slog.New(slog.NewTextHandler(&logs, nil)))

	w := &failingWriter{header: http.Header{}}
	h.ExportCSV(w, httptest.NewRequest(http.MethodGet, "/api/admin/monthly-data/csv?month=3&year=2025", nil))

	assert.Contains(t, logs.String(), "csv export failed")
	assert.Contains(t, logs.String(), "connection reset")
}
