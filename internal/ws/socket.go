package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/services"
)

const routingKeySessions = "ws_events.sessions"

// MessageLedger is the subset of the ledger the socket dispatches to.
type MessageLedger interface {
	Send(ctx context.Context, in services.SendInput) (services.SendResult, error)
	MarkRead(ctx context.Context, conversationID, userID int, lastMessageID int64) (int64, error)
	Authorize(ctx context.Context, conversationID, userID int) error
}

// TypingNotifier rebroadcasts typing indicators.
type TypingNotifier interface {
	Typing(conversationID, userID int, isTyping bool, exceptSessionID string)
}

// SocketHandler authenticates websocket handshakes and dispatches client frames.
type SocketHandler struct {
	hub        *Hub
	validator  auth.TokenValidator
	ledger     MessageLedger
	typing     TypingNotifier
	events     *observability.EventBus
	strictJoin bool
}

// NewSocketHandler constructs a SocketHandler. With strictJoin, joining a
// conversation room requires membership.
func NewSocketHandler(hub *Hub, validator auth.TokenValidator, ledger MessageLedger, typing TypingNotifier, events *observability.EventBus, strictJoin bool) *SocketHandler {
	return &SocketHandler{
		hub:        hub,
		validator:  validator,
		ledger:     ledger,
		typing:     typing,
		events:     events,
		strictJoin: strictJoin,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and serves one session until it disconnects.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.validator.ValidateToken(ctx, tokenFromRequest(c))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	headers := observability.BuildHeaders(requestID, traceID)

	session := NewSession(conn, info)
	session.Start()
	h.hub.Attach(session, info)
	span.End()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishSessionEvent(ctx, "ws_connect", info, "", headers)

	closeReason := h.readLoop(ctx, conn, session, headers)

	h.hub.Detach(session.ID())
	session.Close(websocket.CloseNormalClosure, "")
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	h.publishSessionEvent(ctx, "ws_disconnect", info, closeReason, headers)
}

func (h *SocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *Session, headers map[string]string) string {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishSessionEvent(ctx, "ws_error", session.info, err.Error(), headers)
			}
			return err.Error()
		}

		var frame models.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			h.sendError(session, "bad_frame", "frame must be {\"event\", \"data\"}", nil)
			continue
		}
		observability.IncWSEvent(metricEventName(frame.Event))
		h.dispatch(ctx, session, frame, headers)
	}
}

func (h *SocketHandler) dispatch(ctx context.Context, session *Session, frame models.InboundFrame, headers map[string]string) {
	switch frame.Event {
	case models.EventJoinConversation, models.EventJoinConversationLegacy:
		h.onJoin(ctx, session, frame.Data)
	case models.EventLeaveConversation:
		conversationID, ok := parseConversationID(frame.Data)
		if !ok {
			h.sendError(session, "bad_request", "conversation_id required", nil)
			return
		}
		h.hub.Leave(session.ID(), models.ConversationRoom(conversationID))
	case models.EventTyping:
		h.onTyping(session, frame.Data)
	case models.EventSendMessage:
		h.onSend(ctx, session, frame.Data, headers)
	case models.EventMessagesRead:
		h.onRead(ctx, session, frame.Data)
	default:
		h.sendError(session, "unknown_event", "unsupported event "+frame.Event, nil)
	}
}

func (h *SocketHandler) onJoin(ctx context.Context, session *Session, data json.RawMessage) {
	conversationID, ok := parseConversationID(data)
	if !ok {
		h.sendError(session, "bad_request", "conversation_id required", nil)
		return
	}
	if h.strictJoin {
		if err := h.ledger.Authorize(ctx, conversationID, session.UserID()); err != nil {
			h.sendServiceError(session, err, nil)
			return
		}
	}
	h.hub.Join(session.ID(), models.ConversationRoom(conversationID))
}

type typingFrame struct {
	ConversationID int  `json:"conversation_id"`
	IsTyping       bool `json:"is_typing"`
}

func (h *SocketHandler) onTyping(session *Session, data json.RawMessage) {
	var in typingFrame
	if err := json.Unmarshal(data, &in); err != nil || in.ConversationID <= 0 {
		return
	}
	if !h.hub.InRoom(session.ID(), models.ConversationRoom(in.ConversationID)) {
		return
	}
	h.typing.Typing(in.ConversationID, session.UserID(), in.IsTyping, session.ID())
}

type sendFrame struct {
	ConversationID int                `json:"conversation_id"`
	Text           *string            `json:"text"`
	Attachments    models.Attachments `json:"attachments"`
	ClientMsgID    *string            `json:"client_msg_id"`
}

func (h *SocketHandler) onSend(ctx context.Context, session *Session, data json.RawMessage, headers map[string]string) {
	var in sendFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(session, "bad_request", "invalid message.send payload", nil)
		return
	}
	_, err := h.ledger.Send(ctx, services.SendInput{
		ConversationID: in.ConversationID,
		SenderID:       session.UserID(),
		Body:           in.Text,
		Attachments:    in.Attachments,
		ClientMsgID:    in.ClientMsgID,
		Origin:         services.OriginSocket,
		Headers:        headers,
	})
	if err != nil {
		h.sendServiceError(session, err, in.ClientMsgID)
	}
}

type readFrame struct {
	ConversationID int   `json:"conversation_id"`
	LastMessageID  int64 `json:"last_message_id"`
}

func (h *SocketHandler) onRead(ctx context.Context, session *Session, data json.RawMessage) {
	var in readFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(session, "bad_request", "invalid messages.read payload", nil)
		return
	}
	if _, err := h.ledger.MarkRead(ctx, in.ConversationID, session.UserID(), in.LastMessageID); err != nil {
		h.sendServiceError(session, err, nil)
	}
}

func (h *SocketHandler) sendServiceError(session *Session, err error, clientMsgID *string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		h.sendError(session, "forbidden", err.Error(), clientMsgID)
	case errors.Is(err, services.ErrNotFound):
		h.sendError(session, "not_found", err.Error(), clientMsgID)
	case errors.Is(err, services.ErrInvalidMessage):
		h.sendError(session, "invalid_message", err.Error(), clientMsgID)
	default:
		log.Printf("ws: operation failed: session=%s user_id=%d err=%v", session.ID(), session.UserID(), err)
		h.sendError(session, "internal", "internal error", clientMsgID)
	}
}

func (h *SocketHandler) sendError(session *Session, code, message string, clientMsgID *string) {
	_ = h.hub.SendTo(session.ID(), models.SocketEvent{
		Event: models.EventError,
		Data:  models.ErrorEvent{Code: code, Message: message, ClientMsgID: clientMsgID},
	})
}

// SessionEvent is published on connect, disconnect and socket errors.
type SessionEvent struct {
	Event      string          `json:"event"`
	SessionID  string          `json:"session_id"`
	DurationMS int64           `json:"duration_ms"`
	Reason     string          `json:"reason"`
	Identity   SessionIdentity `json:"identity"`
}

type SessionIdentity struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

func (h *SocketHandler) publishSessionEvent(ctx context.Context, event string, info ConnInfo, reason string, headers map[string]string) {
	_ = h.events.Publish(ctx, routingKeySessions, event, SessionEvent{
		Event:      event,
		SessionID:  info.ConnID,
		DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
		Reason:     reason,
		Identity: SessionIdentity{
			UserID:   info.UserID,
			DeviceID: info.DeviceID,
			IP:       info.IP,
		},
	}, headers)
}

// metricEventName bounds the label set to the known client events.
func metricEventName(event string) string {
	switch event {
	case models.EventJoinConversation, models.EventJoinConversationLegacy, models.EventLeaveConversation,
		models.EventTyping, models.EventSendMessage, models.EventMessagesRead:
		return event
	}
	return "unknown"
}

func tokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(c.Query("token"))
}

// parseConversationID accepts {"conversation_id": n}, a bare number or a numeric string.
func parseConversationID(data json.RawMessage) (int, bool) {
	var wrapped struct {
		ConversationID json.RawMessage `json:"conversation_id"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.ConversationID) > 0 {
		data = wrapped.ConversationID
	}

	var id int
	if err := json.Unmarshal(data, &id); err == nil && id > 0 {
		return id, true
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
