package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date, tags, created_at, updated_at`

// priorityRank orders priorities semantically instead of lexically.
const priorityRank = `CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so a search for "50%" only
// matches the literal text.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.Tags, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts a task. The insertion sequence assigned by the store
// breaks ordering ties in listings.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	const query = `INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, task.ID, task.OwnerID, task.Title, task.Description, task.Status, task.Priority, task.DueDate, task.Tags, task.CreatedAt, task.UpdatedAt)
	return err
}

// GetTask fetches a task matching both id and owner.
func (r *Repository) GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	return scanTask(r.pool.QueryRow(ctx, query, id, ownerID))
}

// ListTasks returns one page of the owner's tasks plus the total match count.
func (r *Repository) ListTasks(ctx context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, int, error) {
	where := []string{"user_id = $1"}
	args := []any{ownerID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(title ILIKE $%d OR description ILIKE $%d OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $%d))",
			n, n, n))
	}
	condition := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM tasks WHERE `+condition, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + condition +
		` ORDER BY ` + orderClause(filter) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, filter.PageSize)
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.Tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

func orderClause(filter domain.TaskFilter) string {
	var column string
	switch filter.SortBy {
	case domain.SortByDueDate:
		column = "due_date"
	case domain.SortByPriority:
		column = priorityRank
	case domain.SortByTitle:
		column = "title"
	default:
		column = "created_at"
	}
	direction := "DESC"
	if filter.Order == domain.SortAsc {
		direction = "ASC"
	}
	// seq preserves insertion order for ties.
	return column + " " + direction + ", seq ASC"
}

// UpdateTask applies a partial update and ownership check in a single
// statement so no check-then-act window exists.
func (r *Repository) UpdateTask(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error) {
	if patch.Empty() {
		return r.GetTask(ctx, ownerID, id)
	}

	sets := []string{"updated_at = now()"}
	args := []any{id, ownerID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.Tags != nil {
		add("tags", *patch.Tags)
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND user_id = $2 RETURNING ` + taskColumns
	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

// DeleteTask permanently removes a task matching id and owner.
func (r *Repository) DeleteTask(ctx context.Context, ownerID, id string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TaskStats groups the owner's tasks by status and priority. Buckets with no
// tasks report zero.
func (r *Repository) TaskStats(ctx context.Context, ownerID string) (*domain.TaskStats, error) {
	stats := &domain.TaskStats{}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(1) FROM tasks WHERE user_id = $1 GROUP BY status`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case domain.TaskStatusTodo:
			stats.Status.Todo = count
		case domain.TaskStatusInProgress:
			stats.Status.InProgress = count
		case domain.TaskStatusDone:
			stats.Status.Done = count
		}
		stats.Status.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.pool.Query(ctx, `SELECT priority, COUNT(1) FROM tasks WHERE user_id = $1 GROUP BY priority`, ownerID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var priority domain.TaskPriority
		var count int
		if err := prows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		switch priority {
		case domain.TaskPriorityLow:
			stats.Priority.Low = count
		case domain.TaskPriorityMedium:
			stats.Priority.Medium = count
		case domain.TaskPriorityHigh:
			stats.Priority.High = count
		}
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
