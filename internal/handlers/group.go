package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collab-service/internal/middleware"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
)

// GroupHandler manages the group directory endpoints.
type GroupHandler struct {
	groups repositories.GroupRepository
	users  repositories.UserRepository
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, users: users, audit: audit}
}

// CreateGroup handles POST /groups. The creator becomes an admin member and
// receives the group's invite code.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), user.ID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"group": group, "invite_code": group.InviteCode})
}

// ListGroups returns groups that are public or include the caller.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	groups, err := h.groups.ListGroupsForUser(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns a single group with member and faculty sets resolved.
// Private groups are visible to members and faculty only.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	user, _ := middleware.UserFromContext(c)
	if !group.IsPublic {
		allowed, err := h.hasAccess(c, groupID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !allowed {
			h.emitAudit(c, "ERROR", "access denied")
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	members, err := h.groups.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	faculty, err := h.groups.ListFaculty(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load faculty"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": models.GroupDetail{Group: group, Members: members, Faculty: faculty}})
}

// JoinGroup handles POST /groups/join/:invite_code, the self-service join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)

	group, err := h.groups.GetGroupByInviteCode(c.Request.Context(), c.Param("invite_code"))
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid invite code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	if err := h.groups.AddMember(c.Request.Context(), group.ID, user.ID, models.GroupRoleMember); err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "already a member of this group"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		return
	}

	h.emitAudit(c, "INFO", "Group joined")
	c.JSON(http.StatusOK, gin.H{"message": "joined group successfully", "group": group})
}

// AddFaculty handles POST /groups/:group_id/faculty. Only group admins may
// attach faculty, and the target must hold the faculty role.
func (h *GroupHandler) AddFaculty(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		FacultyEmail string `json:"faculty_email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.groups.GetGroup(c.Request.Context(), groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	user, _ := middleware.UserFromContext(c)
	isAdmin, err := h.groups.IsGroupAdmin(c.Request.Context(), groupID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !isAdmin {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "only group admins can add faculty"})
		return
	}

	facultyUser, err := h.users.GetUserByEmail(c.Request.Context(), req.FacultyEmail)
	if err != nil || facultyUser.Role != models.RoleFaculty {
		c.JSON(http.StatusNotFound, gin.H{"error": "faculty user not found"})
		return
	}

	if err := h.groups.AddFaculty(c.Request.Context(), groupID, facultyUser.ID); err != nil {
		if errors.Is(err, repositories.ErrFacultyPresent) {
			c.JSON(http.StatusConflict, gin.H{"error": "faculty already added to group"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add faculty"})
		return
	}

	h.emitAudit(c, "INFO", "Faculty added to group")
	c.JSON(http.StatusOK, gin.H{"message": "faculty added successfully"})
}

func (h *GroupHandler) hasAccess(c *gin.Context, groupID, userID int) (bool, error) {
	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		return false, err
	}
	if member {
		return true, nil
	}
	return h.groups.IsFaculty(c.Request.Context(), groupID, userID)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
