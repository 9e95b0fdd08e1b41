package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"timeronline/backend/internal/broadcast"
	"timeronline/backend/internal/middleware"
	"timeronline/backend/internal/model"
	"timeronline/backend/internal/service"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 16
)

// LiveHandler streams every change of one timer over a WebSocket.
type LiveHandler struct {
	timerService *service.TimerService
	upgrader     websocket.Upgrader
}

type liveMessage struct {
	Type    string             `json:"type"`
	TimerID string             `json:"timerId"`
	Version int                `json:"version"`
	Timer   *service.TimerView `json:"timer,omitempty"`
}

func NewLiveHandler(timerService *service.TimerService, allowedOrigins []string) *LiveHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &LiveHandler{
		timerService: timerService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *LiveHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	timerID := c.Param("id")

	send := make(chan []byte, sendBuffer)
	enqueue := func(msg liveMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		select {
		case send <- data:
		default:
			log.Warn().Str("timer_id", timerID).Msg("live client too slow, dropping update")
		}
	}

	sub, apiErr := h.timerService.Watch(ctx, userID, timerID, func(event broadcast.Event) {
		msg := liveMessage{Type: string(event.Type), TimerID: event.TimerID, Version: event.Version}
		if event.State != nil {
			view := h.timerService.View(&model.Timer{
				ID:      event.TimerID,
				OwnerID: event.OwnerID,
				State:   *event.State,
				Version: event.Version,
			})
			msg.Timer = &view
		}
		enqueue(msg)
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	defer sub.Cancel()

	enqueue(liveMessage{Type: "snapshot", TimerID: timerID, Version: sub.Snapshot.Version, Timer: &sub.Snapshot})
	sub.Start()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("timer_id", timerID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, send, done)
}

// readPump discards client messages and keeps the read deadline fresh.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
