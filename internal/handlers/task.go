package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collab-service/internal/middleware"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
)

// TaskHandler manages task assignment and grading endpoints.
type TaskHandler struct {
	tasks  repositories.TaskRepository
	groups repositories.GroupRepository
	users  repositories.UserRepository
	audit  *telemetry.AuditEmitter
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(tasks repositories.TaskRepository, groups repositories.GroupRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *TaskHandler {
	return &TaskHandler{tasks: tasks, groups: groups, users: users, audit: audit}
}

// CreateTask handles POST /tasks. Faculty and admins only; the assignee must
// be a student member of the target group.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	if !user.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "faculty or admin role required"})
		return
	}

	var req struct {
		Title       string    `json:"title" binding:"required"`
		Description string    `json:"description"`
		AssignedTo  int       `json:"assigned_to" binding:"required"`
		GroupID     int       `json:"group_id" binding:"required"`
		Deadline    time.Time `json:"deadline" binding:"required"`
		Priority    string    `json:"priority"`
		Tags        []string  `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}
	switch priority {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}

	if user.Role != models.RoleAdmin {
		faculty, err := h.groups.IsFaculty(c.Request.Context(), req.GroupID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !faculty {
			h.emitAudit(c, "ERROR", "no access to group")
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this group"})
			return
		}
	}

	student, err := h.users.GetUser(c.Request.Context(), req.AssignedTo)
	if err != nil || student.Role != models.RoleStudent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student assignment"})
		return
	}
	inGroup, err := h.groups.IsMember(c.Request.Context(), req.GroupID, req.AssignedTo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !inGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student is not in this group"})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), models.Task{
		Title:       req.Title,
		Description: req.Description,
		AssignedBy:  user.ID,
		AssignedTo:  req.AssignedTo,
		GroupID:     req.GroupID,
		Deadline:    req.Deadline,
		Priority:    priority,
		Tags:        req.Tags,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create task"})
		return
	}

	h.emitAudit(c, "INFO", "Task assigned")
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// MyTasks returns the caller's assignments, optionally filtered by status.
func (h *TaskHandler) MyTasks(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	tasks, total, err := h.tasks.ListTasksForUser(c.Request.Context(), user.ID, c.Query("status"), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tasks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":        tasks,
		"total_pages":  (total + limit - 1) / limit,
		"current_page": page,
		"total":        total,
	})
}

// GroupTasks returns a group's tasks ordered by deadline.
func (h *TaskHandler) GroupTasks(c *gin.Context) {
	groupID, ok := h.authorizedGroup(c)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListTasksForGroup(c.Request.Context(), groupID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// UpdateStatus handles PATCH /tasks/:task_id/status, the student-side
// lifecycle. Submitting stamps the submission text and time.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req struct {
		Status         string `json:"status" binding:"required"`
		SubmissionText string `json:"submission_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}

	user, _ := middleware.UserFromContext(c)
	if task.AssignedTo != user.ID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to update this task"})
		return
	}

	switch req.Status {
	case models.TaskStatusSubmitted:
		now := time.Now()
		text := req.SubmissionText
		err = h.tasks.UpdateStatus(c.Request.Context(), taskID, models.TaskStatusSubmitted, &text, &now)
	case models.TaskStatusPending, models.TaskStatusInProgress:
		err = h.tasks.UpdateStatus(c.Request.Context(), taskID, req.Status, nil, nil)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status update"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update task"})
		return
	}

	updated, err := h.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}
	h.emitAudit(c, "INFO", "Task status updated")
	c.JSON(http.StatusOK, gin.H{"task": updated})
}

// SubmitFeedback handles PATCH /tasks/:task_id/feedback, the faculty review.
func (h *TaskHandler) SubmitFeedback(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	if !user.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "faculty or admin role required"})
		return
	}

	taskID, err := strconv.Atoi(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req struct {
		Feedback *string `json:"feedback"`
		Grade    *int    `json:"grade"`
		Status   *string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Grade != nil && (*req.Grade < 0 || *req.Grade > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grade must be between 0 and 100"})
		return
	}
	if req.Status != nil && *req.Status != models.TaskStatusCompleted && *req.Status != models.TaskStatusRejected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be completed or rejected"})
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}

	if user.Role != models.RoleAdmin {
		faculty, err := h.groups.IsFaculty(c.Request.Context(), task.GroupID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !faculty {
			h.emitAudit(c, "ERROR", "no access to task")
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this task"})
			return
		}
	}

	if err := h.tasks.UpdateFeedback(c.Request.Context(), taskID, req.Feedback, req.Grade, req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update task"})
		return
	}

	updated, err := h.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}
	h.emitAudit(c, "INFO", "Task feedback submitted")
	c.JSON(http.StatusOK, gin.H{"task": updated})
}

// Stats handles GET /tasks/stats/:group_id.
func (h *TaskHandler) Stats(c *gin.Context) {
	groupID, ok := h.authorizedGroup(c)
	if !ok {
		return
	}

	stats, err := h.tasks.Stats(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// authorizedGroup parses the group id and requires member, faculty, or
// platform-admin access.
func (h *TaskHandler) authorizedGroup(c *gin.Context) (int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}

	user, _ := middleware.UserFromContext(c)
	if user.Role == models.RoleAdmin {
		return groupID, true
	}

	member, err := h.groups.IsMember(c.Request.Context(), groupID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return 0, false
	}
	if member {
		return groupID, true
	}
	faculty, err := h.groups.IsFaculty(c.Request.Context(), groupID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return 0, false
	}
	if !faculty {
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to this group"})
		return 0, false
	}
	return groupID, true
}

func (h *TaskHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
