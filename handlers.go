package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/yshino/liveroom/internal/directory"
	"github.com/yshino/liveroom/internal/hub"
	"github.com/yshino/liveroom/store"
)

const (
	hasAuth = 1 << iota
	hasRoom
)

// reqCtx is the context injected into every request.
type reqCtx struct {
	app  *App
	room *hub.Room
	user store.User
}

// jsonResp is the envelope for all JSON API responses.
type jsonResp struct {
	Error *string     `json:"error"`
	Data  interface{} `json:"data"`
}

type reqUser struct {
	Name         string `json:"user_name"`
	LeaderCardID int    `json:"leader_card_id"`
}

type reqRoomCreate struct {
	SongID     int64          `json:"live_id"`
	Difficulty hub.Difficulty `json:"select_difficulty"`
}

type reqRoomList struct {
	SongID int64 `json:"live_id"`
}

type reqRoomJoin struct {
	RoomID     int64          `json:"room_id"`
	Difficulty hub.Difficulty `json:"select_difficulty"`
}

type reqRoomID struct {
	RoomID int64 `json:"room_id"`
}

// roomUser is a member entry in a wait response, shaped for the caller.
type roomUser struct {
	UserID       int64          `json:"user_id"`
	Name         string         `json:"name"`
	LeaderCardID int            `json:"leader_card_id"`
	Difficulty   hub.Difficulty `json:"select_difficulty"`
	IsMe         bool           `json:"is_me"`
	IsHost       bool           `json:"is_host"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	return true
}}

// handleIndex reports the service name and build.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)
	respondJSON(w, struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}{app.cfg.Name, buildString}, nil, http.StatusOK)
}

// handleCreateUser registers a new user and returns its access token.
func handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqUser
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}
	if len(req.Name) < 1 || len(req.Name) > 64 {
		respondJSON(w, nil, errors.New("invalid user_name (1 - 64 chars)"), http.StatusBadRequest)
		return
	}

	token, err := app.directory.CreateUser(req.Name, req.LeaderCardID)
	if err != nil {
		respondJSON(w, nil, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, struct {
		Token string `json:"user_token"`
	}{token}, nil, http.StatusOK)
}

// handleGetMe returns the authenticated user's own profile.
func handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context().Value("ctx").(*reqCtx)
	respondJSON(w, ctx.user, nil, http.StatusOK)
}

// handleUpdateUser updates the authenticated user's profile.
func handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqUser
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}
	if len(req.Name) < 1 || len(req.Name) > 64 {
		respondJSON(w, nil, errors.New("invalid user_name (1 - 64 chars)"), http.StatusBadRequest)
		return
	}

	if err := app.directory.UpdateUser(ctx.user.Token, req.Name, req.LeaderCardID); err != nil {
		app.logger.Printf("error updating user %d: %v", ctx.user.ID, err)
		respondJSON(w, nil, errors.New("error updating user"), http.StatusInternalServerError)
		return
	}
	respondJSON(w, struct{}{}, nil, http.StatusOK)
}

// handleCreateRoom creates a room with the caller seated as host.
func handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomCreate
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}
	if !req.Difficulty.Valid() {
		respondJSON(w, nil, errors.New("invalid select_difficulty"), http.StatusBadRequest)
		return
	}

	room, err := app.hub.CreateRoom(profileOf(ctx.user), req.SongID, req.Difficulty)
	if err != nil {
		switch {
		case errors.Is(err, hub.ErrUserBusy):
			respondJSON(w, nil, err, http.StatusBadRequest)
		case errors.Is(err, hub.ErrTooManyRooms):
			respondJSON(w, nil, err, http.StatusServiceUnavailable)
		default:
			respondJSON(w, nil, err, http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, struct {
		RoomID int64 `json:"room_id"`
	}{room.ID}, nil, http.StatusOK)
}

// handleListRooms lists the joinable rooms for a song.
func handleListRooms(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomList
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}

	respondJSON(w, struct {
		Rooms []hub.Summary `json:"room_info"`
	}{app.hub.ListRooms(req.SongID)}, nil, http.StatusOK)
}

// handleJoinRoom seats the caller in a room. Expected outcomes (full, not
// joinable, already seated elsewhere) come back as a typed result; only an
// unknown room id is a 404.
func handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomJoin
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}
	if !req.Difficulty.Valid() {
		respondJSON(w, nil, errors.New("invalid select_difficulty"), http.StatusBadRequest)
		return
	}

	room, err := app.hub.GetRoom(req.RoomID)
	if err != nil {
		respondJSON(w, nil, err, http.StatusNotFound)
		return
	}

	respondJSON(w, struct {
		Result hub.JoinResult `json:"join_room_result"`
	}{room.Join(profileOf(ctx.user), req.Difficulty)}, nil, http.StatusOK)
}

// handleRoomWait returns the room's status and member list for a polling
// member. Dissolved rooms keep answering with the dissolved status until the
// registry purges them.
func handleRoomWait(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomID
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}

	room, err := app.hub.GetRoom(req.RoomID)
	if err != nil {
		respondJSON(w, nil, err, http.StatusNotFound)
		return
	}

	status, members := room.Snapshot()
	out := make([]roomUser, 0, len(members))
	for _, m := range members {
		out = append(out, roomUser{
			UserID:       m.UserID,
			Name:         m.Name,
			LeaderCardID: m.LeaderCardID,
			Difficulty:   m.Difficulty,
			IsMe:         m.UserID == ctx.user.ID,
			IsHost:       m.IsHost,
		})
	}

	respondJSON(w, struct {
		Status hub.Status `json:"status"`
		Users  []roomUser `json:"room_user_list"`
	}{status, out}, nil, http.StatusOK)
}

// handleLeaveRoom removes the caller from a room.
func handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomID
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}

	room, err := app.hub.GetRoom(req.RoomID)
	if err != nil {
		respondJSON(w, nil, err, http.StatusNotFound)
		return
	}

	respondJSON(w, struct {
		Result hub.LeaveResult `json:"leave_result"`
	}{room.Leave(ctx.user.ID)}, nil, http.StatusOK)
}

// handleStartRoom starts the session. Only the room's host may start it.
func handleStartRoom(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	var req reqRoomID
	if err := readJSONReq(r, &req); err != nil {
		respondJSON(w, nil, errors.New("error parsing JSON request"), http.StatusBadRequest)
		return
	}

	room, err := app.hub.GetRoom(req.RoomID)
	if err != nil {
		respondJSON(w, nil, err, http.StatusNotFound)
		return
	}

	respondJSON(w, struct {
		Result hub.StartResult `json:"start_result"`
	}{room.Start(ctx.user.ID)}, nil, http.StatusOK)
}

// handleWS subscribes the caller to a room's status feed over a websocket.
func handleWS(w http.ResponseWriter, r *http.Request) {
	var (
		ctx  = r.Context().Value("ctx").(*reqCtx)
		app  = ctx.app
		room = ctx.room
	)

	if room == nil {
		respondJSON(w, nil, hub.ErrRoomNotFound, http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.logger.Printf("websocket upgrade failed: %s: %v", r.RemoteAddr, err)
		return
	}

	if !room.Watch(ws) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room dissolved"),
			time.Now().Add(app.cfg.WSTimeout))
		ws.Close()
	}
}

// wrap is a middleware that handles auth and room resolution for various HTTP
// handlers. It attaches the app, user, and room contexts to handlers.
func wrap(next http.HandlerFunc, app *App, opts uint8) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &reqCtx{app: app}

		// Resolve the bearer token to a user.
		if opts&hasAuth != 0 {
			user, err := app.directory.ResolveToken(bearerToken(r))
			if err != nil {
				if errors.Is(err, directory.ErrUnauthorized) {
					respondJSON(w, nil, err, http.StatusUnauthorized)
					return
				}
				app.logger.Printf("error resolving token: %v", err)
				respondJSON(w, nil, errors.New("error resolving token"), http.StatusInternalServerError)
				return
			}
			req.user = user
		}

		// Resolve the room id in the URL. If the room's not found, req.room
		// will be nil in the target handler; responding is the handler's
		// responsibility.
		if opts&hasRoom != 0 {
			if id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64); err == nil {
				if room, err := app.hub.GetRoom(id); err == nil {
					req.room = room
				}
			}
		}

		ctx := context.WithValue(r.Context(), "ctx", req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return h[len(prefix):]
	}
	return ""
}

func profileOf(u store.User) hub.Profile {
	return hub.Profile{
		UserID:       u.ID,
		Name:         u.Name,
		LeaderCardID: u.LeaderCardID,
	}
}

// respondJSON responds to an HTTP request with a generic payload or an error.
func respondJSON(w http.ResponseWriter, data interface{}, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	out := jsonResp{Data: data}
	if err != nil {
		e := err.Error()
		out.Error = &e
	}
	b, err := json.Marshal(out)
	if err != nil {
		logger.Printf("error marshalling JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

// readJSONReq reads the JSON body from a request and unmarshals it to the given target.
func readJSONReq(r *http.Request, o interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, o)
}
