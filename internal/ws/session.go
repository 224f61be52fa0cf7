package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"collab-service/internal/identity"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
)

// Handler owns the websocket endpoint: it gates connections on a bearer
// token, then drives the per-connection event loop.
type Handler struct {
	hub       *Hub
	groups    repositories.GroupRepository
	messages  repositories.MessageRepository
	users     repositories.UserRepository
	resolver  identity.Resolver
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	routes    map[string]func(ctx context.Context, client *Client, data json.RawMessage)
}

// NewHandler constructs a Handler with its dispatch table.
func NewHandler(hub *Hub, groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository, resolver identity.Resolver, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:       hub,
		groups:    groups,
		messages:  messages,
		users:     users,
		resolver:  resolver,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
	h.routes = map[string]func(ctx context.Context, client *Client, data json.RawMessage){
		EventJoinGroup:      h.handleJoinGroup,
		EventLeaveGroup:     h.handleLeaveGroup,
		EventSendMessage:    h.handleSendMessage,
		EventEditMessage:    h.handleEditMessage,
		EventDeleteMessage:  h.handleDeleteMessage,
		EventTypingStart:    h.handleTypingStart,
		EventTypingStop:     h.handleTypingStop,
		EventAddReply:       h.handleAddReply,
		EventToggleReaction: h.handleToggleReaction,
	}
	return h
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errAccessDenied = errors.New("access denied")

// Handle authenticates the connection attempt, upgrades it, and runs the
// event loop until the peer goes away. Authentication failure is terminal
// for the attempt; no room operation is reachable without it.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("collab-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	user, err := h.resolver.ResolveToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.users.UpsertUser(ctx, user); err != nil {
		h.logger.Warn("user directory upsert failed", zap.Int("user_id", user.ID), zap.Error(err))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	client := NewClient(conn, user, ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	})

	h.logger.Info("websocket connected",
		zap.String("conn_id", client.info.ConnID),
		zap.Int("user_id", user.ID),
		zap.String("ip", client.info.IP))
	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	h.publishLifecycle(ctx, client, "ws_connect", "")

	var closeReason string
	defer func() {
		h.hub.RemoveFromAll(client)
		observability.DecWSActive(wsKind)
		observability.IncWSEvent(wsKind, "ws_disconnect")
		h.publishLifecycle(ctx, client, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(wsKind, "ws_error")
			}
			return
		}
		h.dispatch(ctx, client, raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.sendError(client, "malformed payload")
		return
	}
	handler, ok := h.routes[env.Event]
	if !ok {
		h.sendError(client, "unknown event: "+env.Event)
		return
	}
	observability.IncWSEvent(wsKind, env.Event)
	handler(ctx, client, env.Data)
}

func (h *Handler) handleJoinGroup(ctx context.Context, client *Client, data json.RawMessage) {
	var payload joinGroupPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.GroupID <= 0 {
		h.sendError(client, "invalid group id")
		return
	}

	if _, err := h.groups.GetGroup(ctx, payload.GroupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			h.sendError(client, "group not found")
			return
		}
		h.sendError(client, "internal error")
		return
	}

	allowed, err := h.canAccess(ctx, payload.GroupID, client.user.ID)
	if err != nil {
		h.sendError(client, "internal error")
		return
	}
	if !allowed {
		h.sendError(client, "access denied")
		return
	}

	h.hub.AddClient(payload.GroupID, client)
	_ = client.Send(EventJoinedGroup, joinedGroupPayload{GroupID: payload.GroupID, Message: "joined group"})
}

func (h *Handler) handleLeaveGroup(ctx context.Context, client *Client, data json.RawMessage) {
	var payload joinGroupPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.GroupID <= 0 {
		h.sendError(client, "invalid group id")
		return
	}
	// Leaving is always safe; no authorization check, idempotent.
	h.hub.RemoveClient(payload.GroupID, client)
	_ = client.Send(EventLeftGroup, joinedGroupPayload{GroupID: payload.GroupID, Message: "left group"})
}

func (h *Handler) handleSendMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.GroupID <= 0 {
		h.sendError(client, "invalid message payload")
		return
	}

	content := strings.TrimSpace(h.sanitizer.Sanitize(payload.Content))
	if content == "" {
		h.sendError(client, "message content is required")
		return
	}

	messageType := payload.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	switch messageType {
	case models.MessageTypeText, models.MessageTypeFile, models.MessageTypeSystem:
	default:
		h.sendError(client, "invalid message type")
		return
	}
	if (messageType == models.MessageTypeFile) != (payload.File != nil) {
		h.sendError(client, "file metadata is required for file messages only")
		return
	}

	if !h.hub.InRoom(payload.GroupID, client) {
		h.sendError(client, "join the group before sending messages")
		return
	}
	allowed, err := h.canAccess(ctx, payload.GroupID, client.user.ID)
	if err != nil {
		h.sendError(client, "internal error")
		return
	}
	if !allowed {
		h.sendError(client, "access denied")
		return
	}

	msg, err := h.messages.CreateMessage(ctx, payload.GroupID, client.user.ID, content, messageType, payload.File)
	if err != nil {
		h.logger.Error("message create failed", zap.Int("group_id", payload.GroupID), zap.Error(err))
		h.sendError(client, "failed to store message")
		return
	}

	h.hub.Broadcast(payload.GroupID, EventNewMessage, msg, nil)
}

func (h *Handler) handleEditMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var payload editMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID <= 0 {
		h.sendError(client, "invalid message payload")
		return
	}
	content := strings.TrimSpace(h.sanitizer.Sanitize(payload.NewContent))
	if content == "" {
		h.sendError(client, "message content is required")
		return
	}

	msg, err := h.loadJoined(ctx, client, payload.MessageID)
	if err != nil {
		return
	}
	// Editing is never permitted for faculty or admins, only the author.
	if msg.SenderID != client.user.ID {
		h.sendError(client, "only the author may edit a message")
		return
	}

	if err := h.messages.UpdateContent(ctx, payload.MessageID, content); err != nil {
		h.sendError(client, "failed to update message")
		return
	}
	updated, err := h.messages.GetMessage(ctx, payload.MessageID)
	if err != nil {
		h.sendError(client, "failed to load message")
		return
	}

	h.hub.Broadcast(msg.GroupID, EventMessageEdited, updated, nil)
}

func (h *Handler) handleDeleteMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var payload deleteMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID <= 0 {
		h.sendError(client, "invalid message payload")
		return
	}

	msg, err := h.loadJoined(ctx, client, payload.MessageID)
	if err != nil {
		return
	}
	if msg.SenderID != client.user.ID && !client.user.IsStaff() {
		h.sendError(client, "not allowed to delete this message")
		return
	}

	if err := h.messages.DeleteMessage(ctx, payload.MessageID); err != nil {
		h.sendError(client, "failed to delete message")
		return
	}

	h.hub.Broadcast(msg.GroupID, EventMessageDeleted, deletionPayload{MessageID: payload.MessageID}, nil)
}

func (h *Handler) handleTypingStart(ctx context.Context, client *Client, data json.RawMessage) {
	h.relayTyping(client, data, EventUserTyping)
}

func (h *Handler) handleTypingStop(ctx context.Context, client *Client, data json.RawMessage) {
	h.relayTyping(client, data, EventUserStopTyping)
}

// relayTyping is stateless and best-effort: malformed input and unjoined
// rooms are silently ignored, nothing is persisted.
func (h *Handler) relayTyping(client *Client, data json.RawMessage, event string) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.GroupID <= 0 {
		return
	}
	if !h.hub.InRoom(payload.GroupID, client) {
		return
	}
	h.hub.Broadcast(payload.GroupID, event, typingNotice{
		UserID:   client.user.ID,
		UserName: client.user.Name,
		GroupID:  payload.GroupID,
	}, client)
}

func (h *Handler) handleAddReply(ctx context.Context, client *Client, data json.RawMessage) {
	var payload addReplyPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID <= 0 {
		h.sendError(client, "invalid reply payload")
		return
	}
	content := strings.TrimSpace(h.sanitizer.Sanitize(payload.Content))
	if content == "" {
		h.sendError(client, "reply content is required")
		return
	}

	msg, err := h.loadAuthorized(ctx, client, payload.MessageID)
	if err != nil {
		return
	}

	if err := h.messages.AddReply(ctx, payload.MessageID, client.user.ID, content); err != nil {
		h.sendError(client, "failed to store reply")
		return
	}
	h.broadcastUpdated(ctx, client, msg.GroupID, payload.MessageID)
}

func (h *Handler) handleToggleReaction(ctx context.Context, client *Client, data json.RawMessage) {
	var payload toggleReactionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID <= 0 || payload.Emoji == "" {
		h.sendError(client, "invalid reaction payload")
		return
	}

	msg, err := h.loadAuthorized(ctx, client, payload.MessageID)
	if err != nil {
		return
	}

	if err := h.messages.ToggleReaction(ctx, payload.MessageID, client.user.ID, payload.Emoji); err != nil {
		h.sendError(client, "failed to store reaction")
		return
	}
	h.broadcastUpdated(ctx, client, msg.GroupID, payload.MessageID)
}

// loadMessage fetches a message, reporting not-found to the caller only.
func (h *Handler) loadMessage(ctx context.Context, client *Client, messageID int) (models.Message, error) {
	msg, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			h.sendError(client, "message not found")
		} else {
			h.sendError(client, "internal error")
		}
		return models.Message{}, err
	}
	return msg, nil
}

// loadJoined gates mutations the way the send path does: the connection must
// have joined the message's room, and directory membership is re-checked.
func (h *Handler) loadJoined(ctx context.Context, client *Client, messageID int) (models.Message, error) {
	msg, err := h.loadMessage(ctx, client, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !h.hub.InRoom(msg.GroupID, client) {
		h.sendError(client, "join the group first")
		return models.Message{}, errAccessDenied
	}
	allowed, err := h.canAccess(ctx, msg.GroupID, client.user.ID)
	if err != nil {
		h.sendError(client, "internal error")
		return models.Message{}, err
	}
	if !allowed {
		h.sendError(client, "access denied")
		return models.Message{}, errAccessDenied
	}
	return msg, nil
}

// loadAuthorized additionally requires the caller to be a member or faculty
// of the message's owning group.
func (h *Handler) loadAuthorized(ctx context.Context, client *Client, messageID int) (models.Message, error) {
	msg, err := h.loadMessage(ctx, client, messageID)
	if err != nil {
		return models.Message{}, err
	}
	allowed, err := h.canAccess(ctx, msg.GroupID, client.user.ID)
	if err != nil {
		h.sendError(client, "internal error")
		return models.Message{}, err
	}
	if !allowed {
		h.sendError(client, "access denied")
		return models.Message{}, errAccessDenied
	}
	return msg, nil
}

func (h *Handler) broadcastUpdated(ctx context.Context, client *Client, groupID, messageID int) {
	updated, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		h.sendError(client, "failed to load message")
		return
	}
	h.hub.Broadcast(groupID, EventMessageUpdated, updated, nil)
}

// canAccess computes the room authorization rule: member OR faculty. It is
// re-checked on every join so revocation takes effect without session
// invalidation.
func (h *Handler) canAccess(ctx context.Context, groupID, userID int) (bool, error) {
	member, err := h.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if member {
		return true, nil
	}
	return h.groups.IsFaculty(ctx, groupID, userID)
}

func (h *Handler) sendError(client *Client, message string) {
	_ = client.Send(EventError, errorPayload{Message: message})
}

func (h *Handler) publishLifecycle(ctx context.Context, client *Client, event, reason string) {
	info := client.info
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        wsKind,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   client.user.ID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
