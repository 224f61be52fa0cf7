package models

import "time"

// Message type tags.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// FileMeta describes the file a file-typed message points at. Storage itself
// lives outside this service; only the metadata travels with the message.
type FileMeta struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
}

// Reply is an inline reply attached to a message.
type Reply struct {
	ID        int       `db:"id" json:"id"`
	MessageID int       `db:"message_id" json:"message_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Name      string    `db:"name" json:"sender_name"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reaction is one emoji with the set of users who reacted with it.
type Reaction struct {
	Emoji   string `json:"emoji"`
	UserIDs []int  `json:"user_ids"`
}

// Message represents a chat message in a group. File metadata is present iff
// the type tag is "file". Sender display fields are resolved from the user
// directory when the message is loaded.
type Message struct {
	ID         int        `json:"id"`
	GroupID    int        `json:"group_id"`
	SenderID   int        `json:"sender_id"`
	SenderName string     `json:"sender_name"`
	SenderRole string     `json:"sender_role"`
	Content    string     `json:"content"`
	Type       string     `json:"message_type"`
	File       *FileMeta  `json:"file,omitempty"`
	IsEdited   bool       `json:"is_edited"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Replies    []Reply    `json:"replies"`
	Reactions  []Reaction `json:"reactions"`
}
