// ABOUTME: Web UI for the door controller: dashboard, PIN entry, user management
// ABOUTME: bcrypt admin password with a signed session cookie gating the roster pages

package webadmin

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/latch-gateway/internal/auth"
	"github.com/2389/latch-gateway/internal/controller"
	"github.com/2389/latch-gateway/internal/directory"
	"github.com/2389/latch-gateway/internal/enroll"
	"github.com/2389/latch-gateway/internal/history"
)

// SessionCookieName is the name of the admin session cookie.
const SessionCookieName = "latch_admin_session"

// TagInjector queues a simulated tag scan for the reader to report.
type TagInjector interface {
	Present(uid string)
}

// DoorInjector forces the simulated door sensor open or closed.
type DoorInjector interface {
	SetOpen(open bool)
}

// Admin serves the presentation layer. It only reads and writes core
// state through the coordinator and directory operations.
type Admin struct {
	dir      *directory.Directory
	hist     *history.Log
	ctrl     *controller.Controller
	sessions *auth.Sessions
	pwHash   []byte
	logger   *slog.Logger

	simTag  TagInjector
	simDoor DoorInjector
}

// New creates the web handler. pwHash is the bcrypt hash of the single
// admin password.
func New(dir *directory.Directory, hist *history.Log, ctrl *controller.Controller, sessions *auth.Sessions, pwHash []byte) *Admin {
	return &Admin{
		dir:      dir,
		hist:     hist,
		ctrl:     ctrl,
		sessions: sessions,
		pwHash:   pwHash,
		logger:   slog.Default().With("component", "webadmin"),
	}
}

// EnableSimInjection exposes the peripheral injection endpoints. Call
// before RegisterRoutes.
func (a *Admin) EnableSimInjection(tag TagInjector, door DoorInjector) {
	a.simTag = tag
	a.simDoor = door
}

// RegisterRoutes registers all routes on the given mux.
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	// Public pages
	mux.HandleFunc("GET /{$}", a.handleDashboard)
	mux.HandleFunc("POST /grant", a.handleGrant)
	mux.HandleFunc("GET /pin", a.handlePinPage)
	mux.HandleFunc("POST /pin", a.handlePinSubmit)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /logout", a.handleLogout)

	// Roster management (session required)
	mux.HandleFunc("GET /users", a.requireAuth(a.handleUsersList))
	mux.HandleFunc("GET /users/add", a.requireAuth(a.handleAddUserPage))
	mux.HandleFunc("POST /users/add", a.requireAuth(a.handleAddUser))
	mux.HandleFunc("GET /users/{index}/edit", a.requireAuth(a.handleEditUserPage))
	mux.HandleFunc("POST /users/{index}/edit", a.requireAuth(a.handleEditUser))
	mux.HandleFunc("POST /users/{index}/delete", a.requireAuth(a.handleDeleteUser))

	// JSON API for latch-admin (basic auth with the admin password)
	mux.HandleFunc("GET /api/status", a.requireAPIAuth(a.handleAPIStatus))
	mux.HandleFunc("GET /api/history", a.requireAPIAuth(a.handleAPIHistory))
	mux.HandleFunc("GET /api/users", a.requireAPIAuth(a.handleAPIUsers))
	mux.HandleFunc("POST /api/grant", a.requireAPIAuth(a.handleAPIGrant))

	// Peripheral injection (opt-in via sim.inject_api)
	if a.simTag != nil && a.simDoor != nil {
		mux.HandleFunc("POST /api/sim/tag", a.requireAPIAuth(a.handleSimTag))
		mux.HandleFunc("POST /api/sim/door", a.requireAPIAuth(a.handleSimDoor))
		a.logger.Info("sim injection endpoints enabled")
	}

	a.logger.Info("web routes registered")
}

// requireAuth wraps a handler to require a valid session cookie.
func (a *Admin) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || a.sessions.Verify(cookie.Value) != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (a *Admin) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.pwHash, []byte(password)) == nil
}

func (a *Admin) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	return err == nil && a.sessions.Verify(cookie.Value) == nil
}

func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "login.html", loginData{Title: "Admin Login"})
}

func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.checkPassword(r.FormValue("password")) {
		a.logger.Warn("admin login rejected")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		a.render(w, "login.html", loginData{Title: "Admin Login", Error: "Incorrect password."})
		return
	}

	token, err := a.sessions.Issue()
	if err != nil {
		a.logger.Error("session issue failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(a.sessions.TTL()),
	})
	a.logger.Info("admin logged in")
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *Admin) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := a.ctrl.Snapshot()
	a.render(w, "dashboard.html", dashboardData{
		Title:    "Door Access Control",
		DoorOpen: snap.DoorOpen,
		RelayOn:  snap.RelayEnergized,
		Visual:   a.ctrl.Visual().String(),
		History:  a.hist.Recent(history.Window),
		LoggedIn: a.loggedIn(r),
	})
}

func (a *Admin) handleGrant(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil {
		a.renderMessage(w, http.StatusBadRequest, "Invalid duration", "The timer value must be a number of seconds.", "/")
		return
	}
	if err := a.ctrl.WebGrant(seconds, time.Now()); err != nil {
		a.renderMessage(w, http.StatusBadRequest, "Invalid duration", err.Error(), "/")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *Admin) handlePinPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "pin.html", pinData{Title: "Enter PIN"})
}

func (a *Admin) handlePinSubmit(w http.ResponseWriter, r *http.Request) {
	granted, _, err := a.ctrl.PresentPIN(r.FormValue("pin"), time.Now())
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		a.render(w, "pin.html", pinData{Title: "Enter PIN", Error: "PIN must be exactly 4 digits."})
		return
	}
	if !granted {
		a.render(w, "pin.html", pinData{Title: "Enter PIN", Error: "Incorrect PIN. Access denied."})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *Admin) handleUsersList(w http.ResponseWriter, r *http.Request) {
	a.render(w, "users.html", usersData{
		Title: "Users",
		Users: userRows(a.dir.List()),
		Error: r.URL.Query().Get("error"),
	})
}

func (a *Admin) handleAddUserPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, "user_form.html", userFormData{
		Title:  "Add User",
		Action: "/users/add",
		HasPIN: true,
	})
}

func (a *Admin) handleAddUser(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	usePin := r.FormValue("use_pin") != ""
	useTag := r.FormValue("use_tag") != ""
	pin := ""
	if usePin {
		pin = r.FormValue("pin")
	}

	if name == "" {
		a.renderMessage(w, http.StatusBadRequest, "Name required", "Every user needs a name.", "/users/add")
		return
	}
	if !usePin && !useTag {
		a.renderMessage(w, http.StatusBadRequest, "No credential selected", "Choose a PIN, a tag, or both.", "/users/add")
		return
	}
	if usePin && !directory.ValidPIN(pin) {
		a.renderMessage(w, http.StatusBadRequest, "Invalid PIN", "The PIN must be exactly 4 digits.", "/users/add")
		return
	}

	if useTag {
		a.startEnrollment(w, name, pin)
		return
	}

	if _, err := a.dir.Add(name, pin, ""); err != nil {
		a.rosterError(w, err, "/users/add")
		return
	}
	a.ctrl.NotifyAdmin("New user registered via web: *" + name + "*")
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (a *Admin) handleEditUserPage(w http.ResponseWriter, r *http.Request) {
	index, rec, ok := a.lookupIndex(w, r)
	if !ok {
		return
	}
	a.render(w, "user_form.html", userFormData{
		Title:   "Edit User",
		Action:  "/users/" + strconv.Itoa(index) + "/edit",
		Index:   index,
		Name:    rec.Name,
		PIN:     rec.PIN,
		UID:     rec.UID,
		HasPIN:  rec.HasPIN(),
		HasTag:  rec.HasTag(),
		Editing: true,
	})
}

func (a *Admin) handleEditUser(w http.ResponseWriter, r *http.Request) {
	index, rec, ok := a.lookupIndex(w, r)
	if !ok {
		return
	}

	name := r.FormValue("name")
	usePin := r.FormValue("use_pin") != ""
	useTag := r.FormValue("use_tag") != ""
	pin := ""
	if usePin {
		pin = r.FormValue("pin")
	}

	if name == "" {
		a.renderMessage(w, http.StatusBadRequest, "Name required", "Every user needs a name.", "/users")
		return
	}
	if !usePin && !useTag {
		a.renderMessage(w, http.StatusBadRequest, "No credential selected", "Choose a PIN, a tag, or both.", "/users")
		return
	}
	if usePin && !directory.ValidPIN(pin) {
		a.renderMessage(w, http.StatusBadRequest, "Invalid PIN", "The PIN must be exactly 4 digits.", "/users")
		return
	}

	// The checkbox is authoritative: unchecked clears the stored UID,
	// checked without one starts enrollment.
	uid := ""
	if useTag {
		uid = rec.UID
	}
	if useTag && uid == "" {
		a.startEnrollment(w, name, pin)
		return
	}

	if err := a.dir.Update(index, name, pin, uid); err != nil {
		a.rosterError(w, err, "/users")
		return
	}
	a.ctrl.NotifyAdmin("User updated via web: *" + name + "*")
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (a *Admin) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	index, rec, ok := a.lookupIndex(w, r)
	if !ok {
		return
	}
	if err := a.dir.Delete(index); err != nil {
		a.rosterError(w, err, "/users")
		return
	}
	a.ctrl.NotifyAdmin("User deleted via web: *" + rec.Name + "*")
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// startEnrollment stages the pending user and shows the scan-wait page.
func (a *Admin) startEnrollment(w http.ResponseWriter, name, pin string) {
	_, err := a.ctrl.BeginEnrollment(name, pin, time.Now())
	if errors.Is(err, enroll.ErrAlreadyActive) {
		a.renderMessage(w, http.StatusConflict, "Enrollment busy",
			"Another enrollment is already waiting for a tag scan. Try again shortly.", "/users")
		return
	}
	if err != nil {
		a.renderMessage(w, http.StatusInternalServerError, "Enrollment failed", err.Error(), "/users")
		return
	}
	a.render(w, "enroll_wait.html", enrollWaitData{
		Title:   "Scan the tag",
		Name:    name,
		Seconds: 30,
	})
}

// lookupIndex resolves the {index} path value against the roster.
func (a *Admin) lookupIndex(w http.ResponseWriter, r *http.Request) (int, directory.Record, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		a.renderMessage(w, http.StatusBadRequest, "Invalid index", "The user index must be a number.", "/users")
		return 0, directory.Record{}, false
	}
	rec, err := a.dir.Get(index)
	if err != nil {
		a.renderMessage(w, http.StatusBadRequest, "Invalid index",
			"No user at that position. The list may have changed; go back and retry.", "/users")
		return 0, directory.Record{}, false
	}
	return index, rec, true
}

func (a *Admin) rosterError(w http.ResponseWriter, err error, back string) {
	switch {
	case errors.Is(err, directory.ErrCapacityExceeded):
		a.renderMessage(w, http.StatusConflict, "Roster full",
			"The roster already holds the maximum of "+strconv.Itoa(directory.Capacity)+" users.", back)
	case errors.Is(err, directory.ErrInvalidCredential):
		a.renderMessage(w, http.StatusBadRequest, "Invalid credential",
			"A user needs a 4-digit PIN, a tag, or both; fields may not contain commas.", back)
	case errors.Is(err, directory.ErrIndexOutOfRange):
		a.renderMessage(w, http.StatusBadRequest, "Invalid index",
			"No user at that position. The list may have changed; go back and retry.", back)
	default:
		a.renderMessage(w, http.StatusInternalServerError, "Update failed", err.Error(), back)
	}
}

// requireAPIAuth gates the JSON API behind basic auth with the admin
// password. Constant-time on the username to avoid a trivial oracle.
func (a *Admin) requireAPIAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte("admin")) != 1 || !a.checkPassword(pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="latch-gateway"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
