package live

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceAdmin    Audience = "admin"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAdminOnly       = errors.New("admin only")
	ErrAlreadyJoined   = errors.New("already joined an audience")
)

// 接続直後に返すメッセージ。クライアントは自分のsession_idで
// 自分発の更新を読み飛ばす（サーバー側では抑制しない）。
type connectedPayload struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
}

type stockChangedPayload struct {
	Event    string `json:"event"`
	Branch   string `json:"branch"`
	Product  string `json:"product"`
	ItemID   int64  `json:"item_id"`
	NewStock int64  `json:"new_stock"`
	Origin   string `json:"origin,omitempty"`
}

// Sessionは1本のライブ接続。audienceに入るまでイベントは届かない。
type Session struct {
	ID   string
	Role model.Role

	// writerゴルーチンが読む送信キュー。詰まったら切断される。
	Send chan []byte

	audience Audience
}

// Hubは在庫変更イベントのファンアウト。
// membershipの変更とpublishは同じmutexで直列化する。
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Registerは接続を登録してsessionを返す。まだどのaudienceにも属さない。
func (h *Hub) Register(role model.Role) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		Role: role,
		Send: make(chan []byte, 16),
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	if buf, err := json.Marshal(connectedPayload{Event: "connected", SessionID: s.ID}); err == nil {
		s.Send <- buf
	}

	h.logger.Info("live session connected", zap.String("session_id", s.ID))
	return s
}

func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if ok {
		close(s.Send)
		h.logger.Info("live session disconnected", zap.String("session_id", sessionID))
	}
}

// Joinはaudienceへの参加。adminルームはJWTで検証済みのroleがADMINの接続だけ。
// クライアントの自己申告では入れない。
func (h *Hub) Join(sessionID string, audience Audience) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.audience != "" {
		return ErrAlreadyJoined
	}
	if audience == AudienceAdmin && s.Role != model.RoleAdmin {
		return ErrAdminOnly
	}

	s.audience = audience
	h.logger.Info("live session joined",
		zap.String("session_id", sessionID),
		zap.String("audience", string(audience)),
	)
	return nil
}

// PublishStockChangedは両audienceの参加済みセッション全員へ配る。
// 発信者にも届く（originタグ付き）。配送はbest-effortで、
// キューの詰まったセッションはスキップする。再送・永続化はしない。
func (h *Hub) PublishStockChanged(branch, product string, itemID, newStock int64, originSessionID string) {
	buf, err := json.Marshal(stockChangedPayload{
		Event:    "inventory-updated",
		Branch:   branch,
		Product:  product,
		ItemID:   itemID,
		NewStock: newStock,
		Origin:   originSessionID,
	})
	if err != nil {
		h.logger.Error("marshal stock changed event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, s := range h.sessions {
		if s.audience == "" {
			continue
		}
		select {
		case s.Send <- buf:
			delivered++
		default:
			// 遅い購読者でpublishを止めない
		}
	}

	h.logger.Info("stock change published",
		zap.String("branch", branch),
		zap.String("product", product),
		zap.Int64("item_id", itemID),
		zap.Int64("new_stock", newStock),
		zap.Int("delivered", delivered),
	)
}
