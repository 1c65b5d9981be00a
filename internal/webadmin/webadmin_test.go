// ABOUTME: Tests for the web UI and JSON API handlers.
// ABOUTME: Validates login gating, PIN submissions, grants, user CRUD, and API auth.

package webadmin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/latch-gateway/internal/auth"
	"github.com/2389/latch-gateway/internal/controller"
	"github.com/2389/latch-gateway/internal/conversation"
	"github.com/2389/latch-gateway/internal/directory"
	"github.com/2389/latch-gateway/internal/door"
	"github.com/2389/latch-gateway/internal/enroll"
	"github.com/2389/latch-gateway/internal/history"
	"github.com/2389/latch-gateway/internal/periph"
)

const testPassword = "opensesame"

type memFile struct{ lines []string }

func (m *memFile) ReadLines() ([]string, error) { return m.lines, nil }
func (m *memFile) AppendLine(line string) error {
	m.lines = append(m.lines, line)
	return nil
}
func (m *memFile) Rewrite(lines []string) error {
	m.lines = append([]string(nil), lines...)
	return nil
}

type fixture struct {
	server *httptest.Server
	dir    *directory.Directory
	hist   *history.Log
	ctrl   *controller.Controller
	reader *periph.SimTagReader
	sensor *periph.SimDoorSensor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := directory.New(&memFile{}, nil)
	_, err := dir.Add("Alice", "1234", "AA BB CC DD")
	require.NoError(t, err)

	hist := history.New(&memFile{}, nil)
	state := &door.State{}
	reader := &periph.SimTagReader{}
	sensor := &periph.SimDoorSensor{}

	ctrl := controller.New(controller.Deps{
		Directory: dir,
		History:   hist,
		State:     state,
		Indicator: door.NewIndicator(&periph.SimIndicator{}, nil),
		Enroll:    enroll.New(dir, nil),
		Reader:    reader,
		Sensor:    sensor,
		Relay:     &periph.SimRelay{},
		Clock:     &periph.FixedClock{Value: "2024-01-01 12:00:00"},
	}, controller.Config{GrantDuration: 10 * time.Second, EnrollTimeout: 30 * time.Second})
	ctrl.AttachConversation(conversation.New(dir, ctrl.StatusText, time.Minute, nil))

	sessions, err := auth.NewSessions([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	admin := New(dir, hist, ctrl, sessions, hash)
	admin.EnableSimInjection(reader, sensor)
	mux := http.NewServeMux()
	admin.RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, dir: dir, hist: hist, ctrl: ctrl, reader: reader, sensor: sensor}
}

// noRedirectClient returns a client that surfaces redirects instead of
// following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (fx *fixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	resp, err := noRedirectClient().PostForm(fx.server.URL+"/login", url.Values{"password": {testPassword}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestDashboard_Public(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/login", url.Values{"password": {"wrong"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestUsers_RequiresSession(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().Get(fx.server.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestUsers_WithSession(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	req, _ := http.NewRequest(http.MethodGet, fx.server.URL+"/users", nil)
	req.AddCookie(cookie)
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPin_GrantsOnCorrectPin(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/pin", url.Values{"pin": {"1234"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	assert.True(t, fx.ctrl.Snapshot().RelayEnergized)
	events := fx.hist.Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, history.OutcomeGranted, events[0].Outcome)
}

func TestPin_MalformedRejectedWithoutEvent(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/pin", url.Values{"pin": {"12"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, fx.hist.Len())
}

func TestGrant_ValidDuration(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/grant", url.Values{"seconds": {"60"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, fx.ctrl.Snapshot().RelayEnergized)
}

func TestGrant_OutOfRange(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/grant", url.Values{"seconds": {"4000"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, fx.ctrl.Snapshot().RelayEnergized)
}

func TestErrorPages_ServedAsHTML(t *testing.T) {
	fx := newFixture(t)

	resp, err := noRedirectClient().PostForm(fx.server.URL+"/grant", url.Values{"seconds": {"4000"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, err = noRedirectClient().PostForm(fx.server.URL+"/login", url.Values{"password": {"wrong"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestAddUser_PinOnly(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	form := url.Values{"name": {"Bob"}, "use_pin": {"1"}, "pin": {"5678"}}
	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/users/add", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	rec, found := fx.dir.FindByName("Bob")
	require.True(t, found)
	assert.Equal(t, "5678", rec.PIN)
}

func TestAddUser_WithTagStartsEnrollment(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	form := url.Values{"name": {"Carol"}, "use_tag": {"1"}}
	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/users/add", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Carol is not on the roster until the tag scan arrives
	_, found := fx.dir.FindByName("Carol")
	assert.False(t, found)
	fx.ctrl.PresentTag("11 22 33 44", time.Now())
	rec, found := fx.dir.FindByName("Carol")
	require.True(t, found)
	assert.Equal(t, "11 22 33 44", rec.UID)
}

func TestDeleteUser(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/users/0/delete", nil)
	req.AddCookie(cookie)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 0, fx.dir.Len())
}

func TestEditUser_PreservesStoredUID(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	form := url.Values{"name": {"Alice"}, "use_pin": {"1"}, "pin": {"9999"}, "use_tag": {"1"}}
	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/users/0/edit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	rec, err := fx.dir.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "9999", rec.PIN)
	assert.Equal(t, "AA BB CC DD", rec.UID)
}

func TestEditUser_UncheckedTagClearsUID(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.login(t)

	form := url.Values{"name": {"Alice"}, "use_pin": {"1"}, "pin": {"1234"}}
	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/users/0/edit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	rec, err := fx.dir.Get(0)
	require.NoError(t, err)
	assert.Empty(t, rec.UID)
}

func TestAPI_RequiresBasicAuth(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_Status(t *testing.T) {
	fx := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, fx.server.URL+"/api/status", nil)
	req.SetBasicAuth("admin", testPassword)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.DoorOpen)
	assert.False(t, st.RelayEnergized)
}

func TestAPI_Grant(t *testing.T) {
	fx := newFixture(t)

	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+"/api/grant", strings.NewReader(`{"seconds":30}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("admin", testPassword)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, fx.ctrl.Snapshot().RelayEnergized)
}

func TestAPI_Users(t *testing.T) {
	fx := newFixture(t)

	req, _ := http.NewRequest(http.MethodGet, fx.server.URL+"/api/users", nil)
	req.SetBasicAuth("admin", testPassword)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []apiUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Name)
	assert.True(t, users[0].HasPIN)
	assert.True(t, users[0].HasTag)
}

func (fx *fixture) postSim(t *testing.T, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, fx.server.URL+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("admin", testPassword)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAPISim_RequiresBasicAuth(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.server.URL+"/api/sim/tag", "application/json", strings.NewReader(`{"uid":"AA BB CC DD"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPISim_TagScanRunsThroughCoordinator(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postSim(t, "/api/sim/tag", `{"uid":"AA BB CC DD"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fx.ctrl.FastTick(time.Now())

	assert.True(t, fx.ctrl.Snapshot().RelayEnergized)
	events := fx.hist.Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, history.MethodRFID, events[0].Method)
	assert.Equal(t, history.OutcomeGranted, events[0].Outcome)
}

func TestAPISim_TagMissingUID(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postSim(t, "/api/sim/tag", `{}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPISim_DoorOpenRecordsIntrusion(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postSim(t, "/api/sim/door", `{"open":true}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fx.ctrl.FastTick(time.Now())

	assert.True(t, fx.ctrl.Snapshot().DoorOpen)
	events := fx.hist.Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, history.MethodSensor, events[0].Method)
	assert.Equal(t, history.OutcomeIntrusion, events[0].Outcome)
}

func TestAPISim_AbsentWhenNotEnabled(t *testing.T) {
	fx := newFixture(t)

	sessions, err := auth.NewSessions([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	admin := New(fx.dir, fx.hist, fx.ctrl, sessions, hash)
	mux := http.NewServeMux()
	admin.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/sim/tag", strings.NewReader(`{"uid":"AA BB CC DD"}`))
	req.SetBasicAuth("admin", testPassword)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
