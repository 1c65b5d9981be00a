// ABOUTME: JSON API used by the latch-admin CLI
// ABOUTME: read-only status/history/users endpoints plus a remote grant

package webadmin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/2389/latch-gateway/internal/history"
)

type statusResponse struct {
	DoorOpen       bool   `json:"door_open"`
	RelayEnergized bool   `json:"relay_energized"`
	Visual         string `json:"visual"`
}

type historyEntry struct {
	Timestamp  string `json:"timestamp"`
	Method     string `json:"method"`
	Identifier string `json:"identifier"`
	Actor      string `json:"actor"`
	Outcome    string `json:"outcome"`
}

type apiUser struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	HasPIN bool   `json:"has_pin"`
	HasTag bool   `json:"has_tag"`
}

type grantRequest struct {
	Seconds int `json:"seconds"`
}

type simTagRequest struct {
	UID string `json:"uid"`
}

type simDoorRequest struct {
	Open bool `json:"open"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *Admin) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.ctrl.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		DoorOpen:       snap.DoorOpen,
		RelayEnergized: snap.RelayEnergized,
		Visual:         a.ctrl.Visual().String(),
	})
}

func (a *Admin) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	events := a.hist.Recent(history.Window)
	out := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, historyEntry{
			Timestamp:  ev.Timestamp,
			Method:     string(ev.Method),
			Identifier: ev.Identifier,
			Actor:      ev.Actor,
			Outcome:    string(ev.Outcome),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *Admin) handleAPIUsers(w http.ResponseWriter, r *http.Request) {
	records := a.dir.List()
	out := make([]apiUser, 0, len(records))
	for i, rec := range records {
		out = append(out, apiUser{
			Index:  i,
			Name:   rec.Name,
			HasPIN: rec.HasPIN(),
			HasTag: rec.HasTag(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *Admin) handleAPIGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.ctrl.WebGrant(req.Seconds, time.Now()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// handleSimTag queues a tag scan on the simulated reader. The scan is
// consumed on the coordinator's next fast tick.
func (a *Admin) handleSimTag(w http.ResponseWriter, r *http.Request) {
	var req simTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid is required"})
		return
	}
	a.simTag.Present(req.UID)
	a.logger.Info("sim tag queued", "uid", req.UID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// handleSimDoor forces the simulated door sensor to the requested state.
func (a *Admin) handleSimDoor(w http.ResponseWriter, r *http.Request) {
	var req simDoorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a.simDoor.SetOpen(req.Open)
	a.logger.Info("sim door set", "open", req.Open)
	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}
