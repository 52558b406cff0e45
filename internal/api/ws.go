package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"crypto_exchange/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsMaxMessage   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ConvertStream handles GET /api/v1/ws. Each inbound text frame is a convert
// request; each reply is a conversion or an error object, in request order.
func (h *Handler) ConvertStream(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	s := &wsSession{conn: conn, handler: h, log: log}
	s.run(r.Context())
}

type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	handler *Handler
	log     *slog.Logger
}

func (s *wsSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.conn.Close()

	s.conn.SetReadLimit(wsMaxMessage)
	s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go s.pingLoop(ctx)
	s.readLoop(ctx)
}

func (s *wsSession) readLoop(ctx context.Context) {
	for {
		msgType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Websocket read error", slog.Any("error", err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.writeJSON(s.handleMessage(ctx, message)); err != nil {
			s.log.Warn("Websocket write failed", slog.Any("error", err))
			return
		}
	}
}

func (s *wsSession) handleMessage(ctx context.Context, message []byte) any {
	var req domain.ConvertRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return ErrorResponse{Error: msgInvalidBody}
	}

	conv, err := s.handler.convert(ctx, s.log, req)
	if err != nil {
		_, msg := classifyError(err)
		return ErrorResponse{Error: msg}
	}
	return conv
}

func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Websocket ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

func (s *wsSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.threadSafeWrite(websocket.TextMessage, data)
}

func (s *wsSession) threadSafeWrite(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}
