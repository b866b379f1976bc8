// Package httpapi exposes the read-only room-listing surface used by
// dashboards and health checks. It never mutates the registry; all writes
// happen through the signaling socket.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

type participantView struct {
	UserID   wireproto.UserID `json:"userId"`
	Nickname string           `json:"nickname"`
}

type roomView struct {
	RoomID           wireproto.RoomID  `json:"roomId"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []participantView `json:"participants"`
}

type roomListView struct {
	Rooms []roomView `json:"rooms"`
	Count int        `json:"count"`
}

func toView(s registry.Snapshot) roomView {
	parts := make([]participantView, 0, len(s.Members))
	for _, m := range s.Members {
		parts = append(parts, participantView{UserID: m.UserID, Nickname: m.Nickname})
	}
	return roomView{RoomID: s.RoomID, ParticipantCount: s.ParticipantCount, Participants: parts}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.LogError("httpapi: encode response: %v", err)
	}
}

// Register mounts the room-listing routes on mux.
//
//	GET /api/rooms          -> every non-empty room
//	GET /api/rooms/{roomId} -> a single room, 404 if absent
func Register(mux *http.ServeMux, reg *registry.Registry) {
	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		snaps := reg.AllRooms()
		views := make([]roomView, 0, len(snaps))
		for _, s := range snaps {
			views = append(views, toView(s))
		}
		writeJSON(w, http.StatusOK, roomListView{Rooms: views, Count: len(views)})
	})

	mux.HandleFunc("GET /api/rooms/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		id := wireproto.RoomID(r.PathValue("roomId"))
		snap, ok := reg.RoomSnapshot(id)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toView(snap))
	})
}
