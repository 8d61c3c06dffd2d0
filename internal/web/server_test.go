package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablesched/internal/auth"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/notify"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
	"github.com/example/tablesched/internal/store"
)

const password = "correct horse"

type fakeUsers map[string]auth.User

func (f fakeUsers) Authenticate(ctx context.Context, username, pw string) (auth.User, error) {
	u, ok := f[username]
	if !ok || pw != password {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	return u, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testServer struct {
	handler http.Handler
	clock   *clock
	tables  []int64
}

func newTestServer(t *testing.T, capacities ...int) *testServer {
	t.Helper()
	ms := store.NewMemoryStore()
	var ids []int64
	for i, c := range capacities {
		ids = append(ids, ms.AddTable(reservation.Table{Label: fmt.Sprintf("T%d", i+1), Capacity: c, Active: true}))
	}
	clk := &clock{t: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
	catalog := slots.Catalog{Windows: slots.DefaultWindows(), Interval: 30 * time.Minute, Location: time.UTC}
	svc := engine.NewService(catalog, ms, ms, engine.NewPolicyHolder(engine.DefaultPolicy()),
		engine.WithClock(clk.Now), engine.WithNotifier(notify.Discard{}))

	srv := &Server{
		Service: svc,
		Users: fakeUsers{
			"ada":   {ID: 7, Username: "ada", Role: auth.RoleCustomer},
			"grace": {ID: 8, Username: "grace", Role: auth.RoleCustomer},
			"host":  {ID: 1, Username: "host", Role: auth.RoleStaff},
		},
		Sessions: auth.NewSessions(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)),
	}
	return &testServer{handler: srv.Routes(), clock: clk, tables: ids}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/login", loginRequest{Username: username, Password: password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func booking(clock string, guests int) bookRequest {
	return bookRequest{
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "+44 20 7946 0000",
		Date:          "2026-03-03",
		Time:          clock,
		Guests:        guests,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAvailability(t *testing.T) {
	ts := newTestServer(t, 2, 4, 6)

	rec := ts.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-03&guests=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[availabilityResponse](t, rec)
	assert.Equal(t, "2026-03-03", resp.Date)
	require.Len(t, resp.Slots, 16)
	assert.Equal(t, slotDTO{Time: "11:30", Available: true, AvailableTables: 1, TotalCapacity: 6}, resp.Slots[0])

	rec = ts.do(t, http.MethodGet, "/api/v1/availability?date=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-03&guests=0x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook(t *testing.T) {
	ts := newTestServer(t, 4)

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", booking("19:00", 4), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[bookResponse](t, rec)
	assert.Equal(t, ts.tables[0], resp.AssignedTable)
	assert.Equal(t, "20:45", resp.ReservationEndTime)
	assert.Equal(t, 105, resp.DurationMinutes)
	assert.Equal(t, 15, resp.GracePeriodMinutes)
	assert.Equal(t, 120, resp.MaxSittingMinutes)
	assert.Equal(t, "confirmed", resp.Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations", booking("19:30", 2), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_table_available", decode[ErrorResponse](t, rec).Code)
}

func TestBook_Errors(t *testing.T) {
	ts := newTestServer(t, 4)

	bad := booking("19:00", 2)
	bad.CustomerEmail = ""
	bad.Guests = 0
	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", bad, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)

	past := booking("19:00", 2)
	past.Date = "2026-03-01"
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations", past, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "past_reservation", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations", booking("7pm", 2), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerCancelFlow(t *testing.T) {
	ts := newTestServer(t, 4)
	ada := ts.login(t, "ada")

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", booking("19:00", 2), ada)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[bookResponse](t, rec).ID

	rec = ts.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil, ada)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[reservationDTO](t, rec)
	assert.Equal(t, int64(7), *got.UserID)
	assert.Equal(t, "19:00", got.Time)

	grace := ts.login(t, "grace")
	rec = ts.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil, grace)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil, grace)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil, ada)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, statusResponse{ID: id, Status: "cancelled"}, decode[statusResponse](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil, ada)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Code)
}

func TestCancelTooLate(t *testing.T) {
	ts := newTestServer(t, 4)
	ada := ts.login(t, "ada")

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", booking("19:00", 2), ada)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[bookResponse](t, rec).ID

	ts.clock.Set(time.Date(2026, time.March, 3, 18, 0, 0, 0, time.UTC))
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil, ada)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "too_late_to_cancel", decode[ErrorResponse](t, rec).Code)
}

func TestStaffEndpoints(t *testing.T) {
	ts := newTestServer(t, 2, 4)
	ada := ts.login(t, "ada")
	host := ts.login(t, "host")

	rec := ts.do(t, http.MethodPost, "/api/v1/reservations", booking("19:00", 2), ada)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[bookResponse](t, rec).ID

	rec = ts.do(t, http.MethodGet, "/api/v1/reservations?date=2026-03-03", nil, ada)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/seat", nil, ada)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/reservations?date=2026-03-03", nil, host)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]reservationDTO](t, rec), 1)

	newTime, guests := "20:10", 3
	rec = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, updateRequest{Time: &newTime, Guests: &guests, TableID: &ts.tables[1]}, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[reservationDTO](t, rec)
	assert.Equal(t, "20:10", moved.Time)
	assert.Equal(t, "21:55", moved.ReservationEndTime)
	assert.Equal(t, ts.tables[1], *moved.TableID)

	// date alone keeps the stored clock time
	nextDay := "2026-03-04"
	rec = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, updateRequest{Date: &nextDay}, host)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved = decode[reservationDTO](t, rec)
	assert.Equal(t, "2026-03-04", moved.Date)
	assert.Equal(t, "20:10", moved.Time)

	// a rejected status change leaves the time change unsaved
	later, completed := "21:00", "completed"
	rec = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, updateRequest{Time: &later, Status: &completed}, host)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil, host)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20:10", decode[reservationDTO](t, rec).Time)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/seat", nil, host)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seated", decode[statusResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/no-show", nil, host)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/complete", nil, host)
	assert.Equal(t, http.StatusOK, rec.Code)

	bogus := "teleported"
	rec = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, updateRequest{Status: &bogus}, host)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/reservations/not-a-uuid", nil, host)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginLogout(t *testing.T) {
	ts := newTestServer(t, 4)

	rec := ts.do(t, http.MethodPost, "/api/v1/login", loginRequest{Username: "ada", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := ts.login(t, "host")
	assert.Equal(t, "staff", decode[loginResponse](t, ts.do(t, http.MethodPost, "/api/v1/login", loginRequest{Username: "host", Password: password}, nil)).Role)

	rec = ts.do(t, http.MethodPost, "/api/v1/logout", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv := &Server{Ping: func(context.Context) error { return errors.New("db down") }, Sessions: auth.NewSessions(securecookie.GenerateRandomKey(32), nil)}
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", reservation.ErrValidation), http.StatusBadRequest, "validation_error"},
		{reservation.ErrTooLateToCancel, http.StatusUnprocessableEntity, "too_late_to_cancel"},
		{reservation.ErrPolicyViolation, http.StatusUnprocessableEntity, "policy_violation"},
		{reservation.ErrSchedulingConflict, http.StatusConflict, "scheduling_conflict"},
		{reservation.ErrNoTableAvailable, http.StatusConflict, "no_table_available"},
		{reservation.ErrForbidden, http.StatusForbidden, "forbidden"},
		{reservation.ErrNotFound, http.StatusNotFound, "not_found"},
		{reservation.ErrTransactionFailure, http.StatusServiceUnavailable, "transaction_failure"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code)
	}

	rec := httptest.NewRecorder()
	handleError(rec, reservation.ErrTransactionFailure)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
