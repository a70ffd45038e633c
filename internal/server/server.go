package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/quantum-lotto/internal/auth"
	"github.com/example/quantum-lotto/internal/game"
	"github.com/example/quantum-lotto/internal/ledger"
	"github.com/example/quantum-lotto/internal/loot"
	"github.com/example/quantum-lotto/internal/scheduler"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WSOut struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// GameServer is the presentation layer: JSON over HTTP for commands, a
// WebSocket fan-out for collapse announcements and chaos warnings.
type GameServer struct {
	game     *game.Game
	tokens   *auth.Config
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}
}

func NewGameServer(g *game.Game, tokens *auth.Config) *GameServer {
	return &GameServer{
		game:   g,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Credits *int   `json:"credits,omitempty"`
}

func player(r *http.Request) (*auth.PlayerClaims, bool) {
	return auth.PlayerFromContext(r.Context())
}

// HandleGuestToken issues an identity token for a named guest. The id is
// client-chosen; the token just makes it stable and tamper-proof afterwards.
func (gs *GameServer) HandleGuestToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id required"})
		return
	}
	if req.Name == "" {
		req.Name = "Guest " + req.ID
	}
	token, err := gs.tokens.IssueToken(req.ID, req.Name)
	if err != nil {
		log.Printf("issue token: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "token issue failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (gs *GameServer) HandlePull(w http.ResponseWriter, r *http.Request) {
	claims, ok := player(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}

	res, err := gs.game.Pull(claims.Subject, claims.Name)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: "insufficient credits", Credits: &res.Credits})
		return
	}
	if err != nil {
		log.Printf("pull for %s: %v", claims.Subject, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "pull failed"})
		return
	}

	tier := loot.TierInfo(res.Rarity)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":        res.Item,
		"rarity":      res.Rarity.String(),
		"emoji":       tier.Emoji,
		"color":       tier.Color,
		"instability": res.Instability,
		"credits":     res.Credits,
	})
}

func (gs *GameServer) HandleStabilize(w http.ResponseWriter, r *http.Request) {
	claims, ok := player(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}

	res, err := gs.game.Stabilize(claims.Subject, claims.Name)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: "insufficient credits", Credits: &res.Credits})
		return
	}
	if err != nil {
		log.Printf("stabilize for %s: %v", claims.Subject, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "stabilize failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"before":    res.Before,
		"after":     res.After,
		"reduction": res.Reduction,
		"credits":   res.Credits,
	})
}

func (gs *GameServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := gs.game.StatusReport()
	if err != nil {
		log.Printf("status: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "status failed"})
		return
	}
	writeJSON(w, http.StatusOK, statusPayload(status))
}

func statusPayload(status game.Status) map[string]interface{} {
	probs := make(map[string]float64, len(status.Probabilities))
	for r, p := range status.Probabilities {
		probs[r.String()] = p
	}

	var lastCollapse interface{}
	if !status.Universe.LastCollapse.IsZero() {
		lastCollapse = status.Universe.LastCollapse.Format(time.RFC3339)
	}

	holders := make([]map[string]interface{}, 0, len(status.TopHolders))
	for _, h := range status.TopHolders {
		holders = append(holders, map[string]interface{}{
			"id":    h.UserID,
			"name":  h.DisplayName,
			"items": h.ItemCount,
		})
	}

	return map[string]interface{}{
		"instability":   status.Universe.Instability,
		"levelTitle":    status.LevelTitle,
		"levelDesc":     status.LevelDesc,
		"collapseCount": status.Universe.CollapseCount,
		"lastCollapse":  lastCollapse,
		"totalMessages": status.Universe.TotalMessages,
		"dropRates":     probs,
		"topHolders":    holders,
	}
}

func (gs *GameServer) HandleInventory(w http.ResponseWriter, r *http.Request) {
	claims, ok := player(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}

	view, err := gs.game.Inventory(claims.Subject, claims.Name)
	if err != nil {
		log.Printf("inventory for %s: %v", claims.Subject, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "inventory failed"})
		return
	}

	items := make([]map[string]interface{}, 0, len(view.Items))
	for _, it := range view.Items {
		items = append(items, map[string]interface{}{
			"name":       it.Name,
			"rarity":     it.Rarity.String(),
			"emoji":      loot.TierInfo(it.Rarity).Emoji,
			"acquiredAt": it.AcquiredAt.Format(time.RFC3339),
		})
	}
	counts := make(map[string]int, len(view.RarityCounts))
	for r, n := range view.RarityCounts {
		counts[r.String()] = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"credits":             view.User.Credits,
		"totalPulls":          view.User.TotalPulls,
		"totalStabilizations": view.User.TotalStabilizations,
		"totalItems":          len(view.Items),
		"rarityCounts":        counts,
		"items":               items,
	})
}

func (gs *GameServer) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	holders, err := gs.game.Ledger().TopHolders(10)
	if err != nil {
		log.Printf("leaderboard: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "leaderboard failed"})
		return
	}
	out := make([]map[string]interface{}, 0, len(holders))
	for _, h := range holders {
		out = append(out, map[string]interface{}{
			"id":    h.UserID,
			"name":  h.DisplayName,
			"items": h.ItemCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleActivity is the chat layer's per-message ping: counts the message,
// nudges instability, and sometimes returns a warning line to display.
func (gs *GameServer) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := player(r); !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}

	res, err := gs.game.NoteMessage()
	if err != nil {
		log.Printf("activity: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "activity failed"})
		return
	}
	if res.Warning != "" {
		gs.broadcast(WSOut{Type: "warning", Payload: map[string]interface{}{
			"text":        res.Warning,
			"instability": res.Instability,
		}})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instability": res.Instability,
		"warning":     res.Warning,
	})
}

// WebSocket push

func (gs *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}

	gs.clientsMu.Lock()
	gs.clients[conn] = struct{}{}
	gs.clientsMu.Unlock()

	go gs.readLoop(conn)
}

func (gs *GameServer) readLoop(conn *websocket.Conn) {
	defer func() {
		gs.clientsMu.Lock()
		delete(gs.clients, conn)
		gs.clientsMu.Unlock()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "status":
			status, err := gs.game.StatusReport()
			if err != nil {
				log.Printf("ws status: %v", err)
				continue
			}
			gs.send(conn, WSOut{Type: "status", Payload: statusPayload(status)})
		case "ping":
			gs.send(conn, WSOut{Type: "pong"})
		}
	}
}

func (gs *GameServer) send(conn *websocket.Conn, out WSOut) {
	gs.clientsMu.Lock()
	defer gs.clientsMu.Unlock()
	if err := conn.WriteJSON(out); err != nil {
		log.Printf("ws write: %v", err)
	}
}

func (gs *GameServer) broadcast(out WSOut) {
	gs.clientsMu.Lock()
	defer gs.clientsMu.Unlock()
	for conn := range gs.clients {
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("ws broadcast: %v", err)
		}
	}
}

// BroadcastCollapse is the scheduler's notification listener.
func (gs *GameServer) BroadcastCollapse(ev scheduler.CollapseEvent) {
	gs.broadcast(WSOut{Type: "collapse", Payload: ev})
}
