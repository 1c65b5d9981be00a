// ABOUTME: Template data types and rendering functions for the controller web UI
// ABOUTME: Loads templates from the embedded filesystem and renders them

package webadmin

import (
	"html/template"
	"net/http"

	"github.com/2389/latch-gateway/internal/directory"
	"github.com/2389/latch-gateway/internal/history"
)

type dashboardData struct {
	Title    string
	DoorOpen bool
	RelayOn  bool
	Visual   string
	History  []history.Event
	LoggedIn bool
}

type loginData struct {
	Title string
	Error string
}

type pinData struct {
	Title string
	Error string
}

type userRow struct {
	Index int
	Name  string
	PIN   string
	UID   string
}

type usersData struct {
	Title string
	Users []userRow
	Error string
}

type userFormData struct {
	Title   string
	Action  string
	Index   int
	Name    string
	PIN     string
	UID     string
	HasPIN  bool
	HasTag  bool
	Editing bool
	Error   string
}

type enrollWaitData struct {
	Title   string
	Name    string
	Seconds int
}

type messageData struct {
	Title   string
	Heading string
	Detail  string
	Back    string
}

func (a *Admin) render(w http.ResponseWriter, page string, data any) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+page))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render page", "page", page, "error", err)
	}
}

func (a *Admin) renderMessage(w http.ResponseWriter, status int, heading, detail, back string) {
	// The Content-Type header must be set before the status is written.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	a.render(w, "message.html", messageData{
		Title:   heading,
		Heading: heading,
		Detail:  detail,
		Back:    back,
	})
}

func userRows(records []directory.Record) []userRow {
	rows := make([]userRow, 0, len(records))
	for i, r := range records {
		row := userRow{Index: i, Name: r.Name, PIN: "N/A", UID: "N/A"}
		if r.PIN != "" {
			row.PIN = r.PIN
		}
		if r.UID != "" {
			row.UID = r.UID
		}
		rows = append(rows, row)
	}
	return rows
}
