package live

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Bree-codes/SuperMartConnect/internal/config"
	"github.com/Bree-codes/SuperMartConnect/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// /ws のHTTP(S)→WebSocket昇格と、join/配送のポンプ。
type Handler struct {
	hub    *Hub
	cfg    config.Config
	logger *zap.Logger
}

func NewHandler(hub *Hub, cfg config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Handler{hub: hub, cfg: cfg, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.serve)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORSはフロント配信側で面倒を見るのでここでは許可
	CheckOrigin: func(r *http.Request) bool { return true },
}

type errorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

func (h *Handler) serve(c echo.Context) error {
	// ブラウザのWebSocketはヘッダを足せないのでtokenはクエリで受ける
	claims, err := middleware.ParseAccessToken(h.cfg, c.QueryParam("token"))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgradeが失敗レスポンスを書いている
		return nil
	}

	session := h.hub.Register(claims.Role)

	go h.writePump(conn, session)
	h.readPump(conn, session)
	return nil
}

// readPumpはjoinメッセージを処理する。読み取りエラー＝切断。
func (h *Handler) readPump(conn *websocket.Conn, s *Session) {
	defer func() {
		h.hub.Unregister(s.ID)
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var joinErr error
		switch string(msg) {
		case "join-admin":
			joinErr = h.hub.Join(s.ID, AudienceAdmin)
		case "join-customer":
			joinErr = h.hub.Join(s.ID, AudienceCustomer)
		default:
			continue
		}

		if joinErr != nil && !errors.Is(joinErr, ErrAlreadyJoined) {
			if buf, err := json.Marshal(errorPayload{Event: "error", Error: joinErr.Error()}); err == nil {
				select {
				case s.Send <- buf:
				default:
				}
			}
		}
	}
}

// writePumpはSendキューの唯一の読み手。Hubがchannelを閉じたら接続も閉じる。
func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	for buf := range s.Send {
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}
