package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams face-detection alerts to the session that produced them.
type WSHandler struct {
	hub            *alert.Hub
	proctorService *service.ProctorSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *alert.Hub, proctorService *service.ProctorSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:            hub,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AlertStream godoc
// WS /ws/v1/student/proctor-sessions/:session_id/alerts?token=...
// Only the owner of the session may attach, and only that session's alerts are delivered.
func (h *WSHandler) AlertStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sess, err := h.proctorService.Get(c.Request.Context(), c.Param("session_id"), claims.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	// Subscribe before the upgrade so nothing published after the handshake is missed.
	alerts, unsubscribe := h.hub.Subscribe(sess.ID)
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("session_id", sess.ID).
		Logger()
	wsLog.Info().Msg("Alert stream attached")

	// gorilla allows one concurrent reader and one concurrent writer: the reader
	// goroutine only signals pings, every write happens in the loop below.
	pings := make(chan struct{}, 1)
	closed := make(chan struct{})
	ws.KeepAlive(conn)
	go func() {
		defer close(closed)
		for {
			var msg ws.ClientMessage
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	if err := ws.WriteTyped(conn, ws.ConnectedResponse{Event: ws.EventConnected, SessionID: sess.ID}); err != nil {
		return
	}

	keepAlive := time.NewTicker(ws.PingPeriod)
	defer keepAlive.Stop()

	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Alert stream closed by client")
			return
		case a, ok := <-alerts:
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, ws.AlertResponse{Event: ws.EventAlert, Alert: a}); err != nil {
				wsLog.Debug().Err(err).Msg("Alert write failed")
				return
			}
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}
