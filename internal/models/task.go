package models

import (
	"time"

	"github.com/lib/pq"
)

// Task statuses. Students move pending -> in-progress -> submitted; faculty
// close a submitted task as completed or rejected.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in-progress"
	TaskStatusSubmitted  = "submitted"
	TaskStatusCompleted  = "completed"
	TaskStatusRejected   = "rejected"
)

// Task priorities.
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is an assignment from faculty to a student within a group. Submission
// fields stay nil until the assignee submits; feedback and grade until
// faculty reviews.
type Task struct {
	ID             int            `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	AssignedBy     int            `db:"assigned_by" json:"assigned_by"`
	AssignedTo     int            `db:"assigned_to" json:"assigned_to"`
	GroupID        int            `db:"group_id" json:"group_id"`
	Status         string         `db:"status" json:"status"`
	Deadline       time.Time      `db:"deadline" json:"deadline"`
	Priority       string         `db:"priority" json:"priority"`
	Tags           pq.StringArray `db:"tags" json:"tags"`
	SubmissionText *string        `db:"submission_text" json:"submission_text,omitempty"`
	SubmissionFile *string        `db:"submission_file" json:"submission_file,omitempty"`
	SubmittedAt    *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	Feedback       *string        `db:"feedback" json:"feedback,omitempty"`
	Grade          *int           `db:"grade" json:"grade,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TaskStats summarizes task progress within a group.
type TaskStats struct {
	StatusCounts   map[string]int `json:"status_distribution"`
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	CompletionRate float64        `json:"completion_rate"`
}
