package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collab-service/internal/middleware"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
)

// MessageHandler serves message history and search. Creation, edits and
// deletes travel over the websocket layer.
type MessageHandler struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(groups repositories.GroupRepository, messages repositories.MessageRepository, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{groups: groups, messages: messages, audit: audit}
}

// GetGroupMessages returns one page of a group's history in chronological
// order.
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := h.authorizedGroup(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	msgs, total, err := h.messages.ListMessages(c.Request.Context(), groupID, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"messages":     msgs,
		"total_pages":  totalPages,
		"current_page": page,
		"total":        total,
	})
}

// SearchMessages returns messages in the group matching the query.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	groupID, ok := h.authorizedGroup(c)
	if !ok {
		return
	}

	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "search query is required"})
		return
	}

	msgs, err := h.messages.SearchMessages(c.Request.Context(), groupID, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// authorizedGroup parses the group id and enforces member-or-faculty access.
func (h *MessageHandler) authorizedGroup(c *gin.Context) (int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}

	user, _ := middleware.UserFromContext(c)
	member, err := h.groups.IsMember(c.Request.Context(), groupID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return 0, false
	}
	if !member {
		faculty, err := h.groups.IsFaculty(c.Request.Context(), groupID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return 0, false
		}
		if !faculty {
			if h.audit != nil {
				h.audit.Emit(c.Request.Context(), "ERROR", "no access to group", requestIDFromContext(c), userIDFromContext(c))
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this group"})
			return 0, false
		}
	}
	return groupID, true
}
