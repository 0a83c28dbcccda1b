// ABOUTME: Thin net/http handlers exposing the Channel Service and subscription endpoints
// ABOUTME: Grounded on the teacher's internal/gateway/api.go sendJSONError/writeSSEEvent style

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/2389/groupchat-gateway/internal/channel"
	"github.com/2389/groupchat-gateway/internal/channelservice"
	"github.com/2389/groupchat-gateway/internal/store"
	"github.com/2389/groupchat-gateway/internal/transport"
)

func (g *Gateway) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/channels", g.handleCreateChannel)
	mux.HandleFunc("GET /api/channels", g.handleGetAllChannels)
	mux.HandleFunc("GET /api/channels/{id}", g.handleGetChannelProfile)
	mux.HandleFunc("POST /api/channels/{id}/invite", g.handleInvite)
	mux.HandleFunc("POST /api/channels/{id}/accept", g.handleAccept)
	mux.HandleFunc("POST /api/channels/{id}/remove", g.handleRemove)
	mux.HandleFunc("POST /api/channels/{id}/leave", g.handleLeave)
	mux.HandleFunc("GET /api/subscribe/sse", g.handleSubscribeSSE)
	mux.HandleFunc("GET /api/subscribe/ws", g.handleSubscribeWS)
}

// sendJSON writes v as a JSON response body with status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to encode response", "error", err)
	}
}

// sendError translates the Channel Service's error taxonomy to an HTTP
// status code and a JSON {"error": "..."} body.
func (g *Gateway) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, channelservice.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, channelservice.ErrUserDoesNotExist), errors.Is(err, channelservice.ErrChannelDoesNotExist):
		status = http.StatusNotFound
	case errors.Is(err, channel.ErrInvalidOperation):
		status = http.StatusConflict
	default:
		g.logger.Error("unexpected error", "error", err)
	}
	g.sendJSON(w, status, map[string]string{"error": err.Error()})
}

type createChannelRequest struct {
	FromUserID string `json:"fromUserId"`
	Name       string `json:"name"`
}

func (g *Gateway) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	profile, err := g.service.CreateChannel(r.Context(), req.FromUserID, req.Name)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, profile)
}

type inviteRequest struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

func (g *Gateway) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	msg, err := g.service.InviteToChannel(r.Context(), req.FromUserID, req.ToUserID, r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, msg)
}

type ofUserRequest struct {
	OfUserID string `json:"ofUserId"`
}

func (g *Gateway) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req ofUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	msg, err := g.service.AcceptInvitation(r.Context(), req.OfUserID, r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, msg)
}

type removeRequest struct {
	FromUserID   string `json:"fromUserId"`
	TargetUserID string `json:"targetUserId"`
}

func (g *Gateway) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	msg, err := g.service.RemoveFromChannel(r.Context(), req.FromUserID, req.TargetUserID, r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, msg)
}

func (g *Gateway) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req ofUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	msg, err := g.service.LeaveChannel(r.Context(), req.OfUserID, r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, msg)
}

func (g *Gateway) handleGetAllChannels(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}

	page, size := 0, 20
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "page must be an integer"})
			return
		}
		page = parsed
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "size must be an integer"})
			return
		}
		size = parsed
	}

	slice, err := g.service.GetAllChannels(r.Context(), userID, since, page, size)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, slice)
}

func (g *Gateway) handleGetChannelProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	profile, err := g.service.GetChannelProfile(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, profile)
}

// handleSubscribeSSE upgrades the request into a long-lived SSE stream and
// registers it with the Subscription Registry under userId.
func (g *Gateway) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "userId must be a valid id"})
		return
	}

	if _, err := g.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSON(w, http.StatusNotFound, map[string]string{"error": "user does not exist"})
			return
		}
		g.logger.Error("looking up user for sse subscribe", "user", userID, "error", err)
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscribe failed"})
		return
	}

	handle, err := transport.NewSSEHandle(w)
	if err != nil {
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	if err := g.registry.Subscribe(userID, handle); err != nil {
		g.logger.Error("sse subscribe failed", "user", userID, "error", err)
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscribe failed"})
		return
	}

	handle.WriteConnectEvent()

	select {
	case <-handle.Done():
	case <-r.Context().Done():
		_ = handle.Close()
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSubscribeWS upgrades the request to a websocket connection and
// registers it with the Subscription Registry under userId.
func (g *Gateway) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "userId must be a valid id"})
		return
	}

	if _, err := g.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSON(w, http.StatusNotFound, map[string]string{"error": "user does not exist"})
			return
		}
		g.logger.Error("looking up user for ws subscribe", "user", userID, "error", err)
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "subscribe failed"})
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "user", userID, "error", err)
		return
	}

	handle := transport.NewWSHandle(conn, g.logger)
	if err := g.registry.Subscribe(userID, handle); err != nil {
		g.logger.Error("ws subscribe failed", "user", userID, "error", err)
		_ = handle.Close()
		return
	}

	handle.WriteConnectEvent()
}
