package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"emberquest/server/internal/game"
	"emberquest/server/internal/generators"
	"emberquest/server/internal/models"
	"emberquest/server/internal/storage"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	svc   *game.Service
	store storage.Store
	cache *generators.SceneCache
	hub   *SceneHub
}

func NewHandlers(svc *game.Service, store storage.Store, cache *generators.SceneCache, hub *SceneHub) *Handlers {
	return &Handlers{
		svc:   svc,
		store: store,
		cache: cache,
		hub:   hub,
	}
}

// identity is the resolved caller for one request.
type identity struct {
	UserID    string
	IP        string
	Anonymous bool
}

// resolveIdentity maps the request to an opaque owner id. Authenticated
// callers carry a trusted X-User-ID header set by the auth front end;
// anonymous callers are keyed by client IP so their sessions survive within
// the quota window.
func (h *Handlers) resolveIdentity(r *http.Request) identity {
	ip := clientIP(r)
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return identity{UserID: "anon:" + ip, IP: ip, Anonymous: true}
	}
	return identity{UserID: userID, IP: ip}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "emberquest",
	})
}

// CreateAdventureRequest is the session-create payload.
type CreateAdventureRequest struct {
	Character  models.Character `json:"character"`
	ThemeSeeds []string         `json:"theme_seeds"`
}

// AdventureResponse is the common adventure view.
type AdventureResponse struct {
	Adventure        *models.Adventure `json:"adventure"`
	Inventory        []string          `json:"inventory"`
	Display          *game.TurnDisplay `json:"display,omitempty"`
	NeedsInitialTurn bool              `json:"needs_initial_turn,omitempty"`
	SceneImageURL    string            `json:"scene_image_url,omitempty"`
}

func (h *Handlers) adventureResponse(adv *models.Adventure) *AdventureResponse {
	resp := &AdventureResponse{
		Adventure: adv,
		Inventory: adv.Inventory(),
	}
	if adv.SceneImageKey != "" {
		resp.SceneImageURL = "/api/v1/images/" + adv.SceneImageKey
	}
	return resp
}

// CreateAdventure creates a new adventure for the caller.
func (h *Handlers) CreateAdventure(w http.ResponseWriter, r *http.Request) {
	var req CreateAdventureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}

	id := h.resolveIdentity(r)
	h.touchUser(r, id)

	adv, err := h.svc.Start(r.Context(), game.StartParams{
		OwnerID:    id.UserID,
		IP:         id.IP,
		Anonymous:  id.Anonymous,
		Character:  req.Character,
		ThemeSeeds: req.ThemeSeeds,
	})
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	resp := h.adventureResponse(adv)
	resp.NeedsInitialTurn = true
	writeJSON(w, http.StatusCreated, resp)
}

// ListAdventures lists the caller's adventures, most recent first.
func (h *Handlers) ListAdventures(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	advs, err := h.svc.List(r.Context(), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	resp := make([]*AdventureResponse, 0, len(advs))
	for _, adv := range advs {
		resp = append(resp, h.adventureResponse(adv))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"adventures": resp})
}

// ActiveAdventure fetches the caller's active adventure.
func (h *Handlers) ActiveAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	adv, err := h.svc.Active(r.Context(), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	h.writeWithResume(w, r, adv)
}

// GetAdventure fetches one adventure with its resume projections.
func (h *Handlers) GetAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	adv, err := h.svc.GetOwned(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	h.writeWithResume(w, r, adv)
}

// writeWithResume attaches the display projection rebuilt from stored turns,
// so a returning player sees the last scene without a generator round trip.
func (h *Handlers) writeWithResume(w http.ResponseWriter, r *http.Request, adv *models.Adventure) {
	resp := h.adventureResponse(adv)

	turns, err := h.svc.Turns(r.Context(), adv.ID, adv.OwnerID)
	if err == nil {
		if state, rerr := game.Reconstruct(adv, turns); rerr == nil {
			resp.Display = state.Display
			resp.NeedsInitialTurn = state.NeedsInitialTurn
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdvanceTurnRequest is the advance payload.
type AdvanceTurnRequest struct {
	Action   string `json:"action"`
	DiceRoll int    `json:"dice_roll,omitempty"`
}

// TurnResponse is what an applied turn returns to the player.
type TurnResponse struct {
	Adventure  *models.Adventure `json:"adventure"`
	Inventory  []string          `json:"inventory"`
	TurnNumber int               `json:"turn_number"`
	Narrative  string            `json:"narrative"`
	Options    []string          `json:"options"`
	GameOver   bool              `json:"game_over"`
	Epilogue   *EpilogueResponse `json:"epilogue,omitempty"`
}

// EpilogueResponse mirrors the narrator's closing.
type EpilogueResponse struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	EndingType string `json:"ending_type"`
	Legacy     string `json:"legacy"`
}

// AdvanceTurn applies one turn to an adventure.
func (h *Handlers) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	var req AdvanceTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}

	id := h.resolveIdentity(r)
	result, err := h.svc.Advance(r.Context(), chi.URLParam(r, "id"), id.UserID, req.Action, req.DiceRoll)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	resp := &TurnResponse{
		Adventure:  result.Adventure,
		Inventory:  result.Adventure.Inventory(),
		TurnNumber: result.Turn.TurnNumber,
		Narrative:  result.Turn.Narrative,
		Options:    result.Turn.Options(),
		GameOver:   result.Outcome.GameOver,
	}
	if result.Epilogue != nil {
		resp.Epilogue = &EpilogueResponse{
			Title:      result.Epilogue.Title,
			Text:       result.Epilogue.Text,
			EndingType: result.Epilogue.EndingType,
			Legacy:     result.Epilogue.Legacy,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RestartAdventure wipes turns and resets the same campaign.
func (h *Handlers) RestartAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	adv, err := h.svc.Restart(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	resp := h.adventureResponse(adv)
	resp.NeedsInitialTurn = true
	writeJSON(w, http.StatusOK, resp)
}

// AbandonAdventure closes an adventure on explicit player exit.
func (h *Handlers) AbandonAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	adv, err := h.svc.Abandon(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.adventureResponse(adv))
}

// DeleteAdventure hard-deletes an adventure and its turns.
func (h *Handlers) DeleteAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), id.UserID); err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// UnlockAdventure lifts the free-tier turn cap after a sign-up/upgrade.
func (h *Handlers) UnlockAdventure(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	adv, err := h.svc.LiftTurnCap(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.adventureResponse(adv))
}

// RateLimitStatus reports the caller's remaining free-play quota.
func (h *Handlers) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	id := h.resolveIdentity(r)
	status, err := h.svc.RateLimitStatus(r.Context(), id.IP)
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SceneImage serves a cached scene image.
func (h *Handlers) SceneImage(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	key := chi.URLParam(r, "key")
	data, ok := h.cache.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Image not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SceneStream upgrades to a websocket that delivers scene-ready events for
// one adventure.
func (h *Handlers) SceneStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "internal", "Scene stream not available")
		return
	}

	id := h.resolveIdentity(r)
	adventureID := chi.URLParam(r, "id")
	if _, err := h.svc.GetOwned(r.Context(), adventureID, id.UserID); err != nil {
		h.writeGameError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:          generateClientID(),
		AdventureID: adventureID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Hub:         h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

// touchUser upserts the caller's user row so premium lookups and list caps
// have something to read.
func (h *Handlers) touchUser(r *http.Request, id identity) {
	if id.Anonymous {
		return
	}
	user := &models.User{
		ID:          id.UserID,
		DisplayName: r.Header.Get("X-User-Name"),
	}
	if err := h.store.UpsertUser(r.Context(), user); err != nil {
		log.Printf("Warning: failed to upsert user %s: %v", id.UserID, err)
	}
}

// writeGameError maps the service error taxonomy to distinguishable API
// failures. Narrator failures carry a safe fallback narrative the UI can
// show while inviting a retry; nothing was persisted for them.
func (h *Handlers) writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Adventure not found")
	case errors.Is(err, game.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "You do not own this adventure")
	case errors.Is(err, game.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, game.ErrTurnLimit):
		writeError(w, http.StatusTooManyRequests, "turn_limit_reached", "This adventure has reached its free turn limit. Sign up to keep playing.")
	case errors.Is(err, game.ErrDailyLimit):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case errors.Is(err, game.ErrNotActive):
		writeError(w, http.StatusConflict, "not_active", "This adventure is no longer active")
	case errors.Is(err, game.ErrActiveExists):
		writeError(w, http.StatusConflict, "active_exists", "Finish or abandon your current adventure first")
	case errors.Is(err, game.ErrMissingCampaign):
		writeError(w, http.StatusConflict, "missing_campaign", "This adventure has no campaign data")
	case errors.Is(err, game.ErrNarrator):
		log.Printf("Narrator failure: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"code":      "narrator_unavailable",
			"error":     "The narrator is unavailable. Your adventure is unchanged; try again.",
			"narrative": game.FallbackNarrative,
			"retryable": true,
		})
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":  code,
		"error": message,
	})
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
