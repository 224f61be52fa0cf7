package ws

import (
	"encoding/json"

	"collab-service/internal/models"
)

// Client-to-server events.
const (
	EventJoinGroup      = "join-group"
	EventLeaveGroup     = "leave-group"
	EventSendMessage    = "send-message"
	EventEditMessage    = "edit-message"
	EventDeleteMessage  = "delete-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventAddReply       = "add-reply"
	EventToggleReaction = "toggle-reaction"
)

// Server-to-client events.
const (
	EventJoinedGroup    = "joined-group"
	EventLeftGroup      = "left-group"
	EventNewMessage     = "new-message"
	EventMessageEdited  = "message-edited"
	EventMessageUpdated = "message-updated"
	EventMessageDeleted = "message-deleted"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventError          = "error"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinGroupPayload struct {
	GroupID int `json:"group_id"`
}

type sendMessagePayload struct {
	GroupID     int              `json:"group_id"`
	Content     string           `json:"content"`
	MessageType string           `json:"message_type"`
	File        *models.FileMeta `json:"file,omitempty"`
}

type editMessagePayload struct {
	MessageID  int    `json:"message_id"`
	NewContent string `json:"new_content"`
}

type deleteMessagePayload struct {
	MessageID int `json:"message_id"`
}

type typingPayload struct {
	GroupID int `json:"group_id"`
}

type addReplyPayload struct {
	MessageID int    `json:"message_id"`
	Content   string `json:"content"`
}

type toggleReactionPayload struct {
	MessageID int    `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type joinedGroupPayload struct {
	GroupID int    `json:"group_id"`
	Message string `json:"message"`
}

type deletionPayload struct {
	MessageID int `json:"message_id"`
}

type typingNotice struct {
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name"`
	GroupID  int    `json:"group_id"`
}

type errorPayload struct {
	Message string `json:"message"`
}
