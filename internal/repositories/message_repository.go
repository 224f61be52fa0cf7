package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for group chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, groupID int, senderID int, content, messageType string, file *models.FileMeta) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, groupID int, limit, offset int) ([]models.Message, int, error)
	SearchMessages(ctx context.Context, groupID int, query string) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int, content string) error
	DeleteMessage(ctx context.Context, messageID int) error
	AddReply(ctx context.Context, messageID int, senderID int, content string) error
	ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) error
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageRow is the flat scan target; nullable file and edit columns are
// folded into the model afterwards.
type messageRow struct {
	ID               int        `db:"id"`
	GroupID          int        `db:"group_id"`
	SenderID         int        `db:"sender_id"`
	SenderName       string     `db:"sender_name"`
	SenderRole       string     `db:"sender_role"`
	Content          string     `db:"content"`
	MessageType      string     `db:"message_type"`
	FileName         *string    `db:"file_name"`
	FileOriginalName *string    `db:"file_original_name"`
	FileSize         *int64     `db:"file_size"`
	FileMimeType     *string    `db:"file_mime_type"`
	IsEdited         bool       `db:"is_edited"`
	EditedAt         *time.Time `db:"edited_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	msg := models.Message{
		ID:         r.ID,
		GroupID:    r.GroupID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		SenderRole: r.SenderRole,
		Content:    r.Content,
		Type:       r.MessageType,
		IsEdited:   r.IsEdited,
		EditedAt:   r.EditedAt,
		CreatedAt:  r.CreatedAt,
		Replies:    []models.Reply{},
		Reactions:  []models.Reaction{},
	}
	if r.FileName != nil {
		msg.File = &models.FileMeta{Filename: *r.FileName}
		if r.FileOriginalName != nil {
			msg.File.OriginalName = *r.FileOriginalName
		}
		if r.FileSize != nil {
			msg.File.Size = *r.FileSize
		}
		if r.FileMimeType != nil {
			msg.File.MimeType = *r.FileMimeType
		}
	}
	return msg
}

const messageSelect = `SELECT m.id, m.group_id, m.sender_id, u.name AS sender_name, u.role AS sender_role,
    m.content, m.message_type, m.file_name, m.file_original_name, m.file_size, m.file_mime_type,
    m.is_edited, m.edited_at, m.created_at
    FROM messages m INNER JOIN users u ON u.id = m.sender_id`

// CreateMessage persists a message and returns it with sender display fields
// resolved.
func (r *MessageRepo) CreateMessage(ctx context.Context, groupID int, senderID int, content, messageType string, file *models.FileMeta) (models.Message, error) {
	var fileName, fileOriginal, fileMime *string
	var fileSize *int64
	if file != nil {
		fileName, fileOriginal, fileMime = &file.Filename, &file.OriginalName, &file.MimeType
		fileSize = &file.Size
	}

	var id int
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (group_id, sender_id, content, message_type, file_name, file_original_name, file_size, file_mime_type)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		groupID, senderID, content, messageType, fileName, fileOriginal, fileSize, fileMime).Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage fetches a single message with replies and reactions attached.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, messageSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	msg := row.toModel()
	if err := r.attachExtras(ctx, []*models.Message{&msg}); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns one page of a group's messages in chronological order
// together with the total count.
func (r *MessageRepo) ListMessages(ctx context.Context, groupID int, limit, offset int) ([]models.Message, int, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows,
		messageSelect+` WHERE m.group_id=$1 ORDER BY m.created_at ASC, m.id ASC LIMIT $2 OFFSET $3`,
		groupID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE group_id=$1`, groupID); err != nil {
		return nil, 0, err
	}

	msgs, err := r.collect(ctx, rows)
	return msgs, total, err
}

// SearchMessages returns up to 50 messages whose content matches the query,
// case-insensitively, newest first.
func (r *MessageRepo) SearchMessages(ctx context.Context, groupID int, query string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows,
		messageSelect+` WHERE m.group_id=$1 AND m.content ILIKE '%' || $2 || '%' ORDER BY m.created_at DESC LIMIT 50`,
		groupID, query)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// UpdateContent replaces the message body and stamps the edit.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, content string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$2, is_edited=TRUE, edited_at=NOW() WHERE id=$1`, messageID, content)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage removes the record outright; replies and reactions cascade.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// AddReply appends an inline reply to the message.
func (r *MessageRepo) AddReply(ctx context.Context, messageID int, senderID int, content string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_replies (message_id, sender_id, content) VALUES ($1, $2, $3)`,
		messageID, senderID, content)
	return err
}

// ToggleReaction adds the user to the emoji's reacting set, or removes them
// when already present.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id=$1 AND emoji=$2 AND user_id=$3`, messageID, emoji, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO message_reactions (message_id, emoji, user_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, emoji, userID)
	return err
}

func (r *MessageRepo) collect(ctx context.Context, rows []messageRow) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(rows))
	refs := make([]*models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
		refs = append(refs, &msgs[len(msgs)-1])
	}
	if err := r.attachExtras(ctx, refs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) attachExtras(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(msgs))
	byID := make(map[int]*models.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	query, args, err := sqlx.In(
		`SELECT r.id, r.message_id, r.sender_id, u.name, r.content, r.created_at
         FROM message_replies r INNER JOIN users u ON u.id = r.sender_id
         WHERE r.message_id IN (?) ORDER BY r.created_at ASC, r.id ASC`, ids)
	if err != nil {
		return err
	}
	var replies []models.Reply
	if err := r.db.SelectContext(ctx, &replies, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, reply := range replies {
		msg := byID[reply.MessageID]
		msg.Replies = append(msg.Replies, reply)
	}

	query, args, err = sqlx.In(
		`SELECT message_id, emoji, user_id FROM message_reactions WHERE message_id IN (?) ORDER BY emoji ASC, user_id ASC`, ids)
	if err != nil {
		return err
	}
	var reactions []struct {
		MessageID int    `db:"message_id"`
		Emoji     string `db:"emoji"`
		UserID    int    `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &reactions, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, reaction := range reactions {
		msg := byID[reaction.MessageID]
		n := len(msg.Reactions)
		if n > 0 && msg.Reactions[n-1].Emoji == reaction.Emoji {
			msg.Reactions[n-1].UserIDs = append(msg.Reactions[n-1].UserIDs, reaction.UserID)
			continue
		}
		msg.Reactions = append(msg.Reactions, models.Reaction{Emoji: reaction.Emoji, UserIDs: []int{reaction.UserID}})
	}
	return nil
}
