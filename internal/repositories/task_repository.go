package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRepository defines interactions for assigned tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, task models.Task) (models.Task, error)
	GetTask(ctx context.Context, taskID int) (models.Task, error)
	ListTasksForUser(ctx context.Context, userID int, status string, limit, offset int) ([]models.Task, int, error)
	ListTasksForGroup(ctx context.Context, groupID int, status string) ([]models.Task, error)
	UpdateStatus(ctx context.Context, taskID int, status string, submissionText *string, submittedAt *time.Time) error
	UpdateFeedback(ctx context.Context, taskID int, feedback *string, grade *int, status *string) error
	Stats(ctx context.Context, groupID int) (models.TaskStats, error)
}

// TaskRepo is a sqlx implementation of TaskRepository.
type TaskRepo struct {
	db *sqlx.DB
}

// NewTaskRepo constructs a TaskRepo.
func NewTaskRepo(db *sqlx.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `id, title, description, assigned_by, assigned_to, group_id, status, deadline, priority, tags,
    submission_text, submission_file, submitted_at, feedback, grade, created_at, updated_at`

// CreateTask persists a new assignment.
func (r *TaskRepo) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	var created models.Task
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO tasks (title, description, assigned_by, assigned_to, group_id, deadline, priority, tags)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+taskColumns,
		task.Title, task.Description, task.AssignedBy, task.AssignedTo, task.GroupID,
		task.Deadline, task.Priority, task.Tags).StructScan(&created)
	return created, err
}

// GetTask fetches a single task.
func (r *TaskRepo) GetTask(ctx context.Context, taskID int) (models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrTaskNotFound
	}
	return task, err
}

// ListTasksForUser returns one page of the user's assignments, newest first,
// optionally filtered by status, with the total count.
func (r *TaskRepo) ListTasksForUser(ctx context.Context, userID int, status string, limit, offset int) ([]models.Task, int, error) {
	var tasks []models.Task
	var total int
	if status != "" {
		if err := r.db.SelectContext(ctx, &tasks,
			`SELECT `+taskColumns+` FROM tasks WHERE assigned_to=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			userID, status, limit, offset); err != nil {
			return nil, 0, err
		}
		err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks WHERE assigned_to=$1 AND status=$2`, userID, status)
		return tasks, total, err
	}
	if err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE assigned_to=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset); err != nil {
		return nil, 0, err
	}
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks WHERE assigned_to=$1`, userID)
	return tasks, total, err
}

// ListTasksForGroup returns the group's tasks ordered by deadline.
func (r *TaskRepo) ListTasksForGroup(ctx context.Context, groupID int, status string) ([]models.Task, error) {
	var tasks []models.Task
	if status != "" {
		err := r.db.SelectContext(ctx, &tasks,
			`SELECT `+taskColumns+` FROM tasks WHERE group_id=$1 AND status=$2 ORDER BY deadline ASC`, groupID, status)
		return tasks, err
	}
	err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE group_id=$1 ORDER BY deadline ASC`, groupID)
	return tasks, err
}

// UpdateStatus moves the task through the student-side lifecycle; a
// submission stamps text and time.
func (r *TaskRepo) UpdateStatus(ctx context.Context, taskID int, status string, submissionText *string, submittedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status=$2,
            submission_text=COALESCE($3, submission_text),
            submitted_at=COALESCE($4, submitted_at),
            updated_at=NOW()
         WHERE id=$1`, taskID, status, submissionText, submittedAt)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// UpdateFeedback records faculty review; nil fields are left untouched.
func (r *TaskRepo) UpdateFeedback(ctx context.Context, taskID int, feedback *string, grade *int, status *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET feedback=COALESCE($2, feedback),
            grade=COALESCE($3, grade),
            status=COALESCE($4, status),
            updated_at=NOW()
         WHERE id=$1`, taskID, feedback, grade, status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Stats aggregates the group's task status distribution.
func (r *TaskRepo) Stats(ctx context.Context, groupID int) (models.TaskStats, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) AS count FROM tasks WHERE group_id=$1 GROUP BY status`, groupID)
	if err != nil {
		return models.TaskStats{}, err
	}
	defer rows.Close()

	stats := models.TaskStats{StatusCounts: map[string]int{}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.TaskStats{}, err
		}
		stats.StatusCounts[status] = count
		stats.TotalTasks += count
	}
	if err := rows.Err(); err != nil {
		return models.TaskStats{}, err
	}

	stats.CompletedTasks = stats.StatusCounts[models.TaskStatusCompleted]
	if stats.TotalTasks > 0 {
		stats.CompletionRate = float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100
	}
	return stats, nil
}
