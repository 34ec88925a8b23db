package http

import (
	"log"
	"net/http"
	"strconv"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler streams progression updates to connected clients.
type WSHandler struct {
	service  *app.ProgressionService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ProgressionService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string                   `json:"type"`
	Payload domain.ProgressionUpdate `json:"payload"`
}

// ServeWS upgrades the request and pushes every progression update for
// the requested player until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(r.URL.Query().Get("playerId"))
	if err != nil || playerID <= 0 {
		http.Error(w, "missing or invalid playerId", http.StatusBadRequest)
		return
	}
	if _, err := h.service.GetPlayer(r.Context(), playerID); err != nil {
		http.Error(w, "unknown player", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Subscribe(playerID)
	defer cancel()

	readerDone := make(chan struct{})

	// Reader only drains control frames; its exit signals disconnect.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "progression", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
