package domain

import (
	"strings"
	"time"
)

// TaskStatus enumerates task progress states.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority enumerates task urgency levels.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid reports whether the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// MaxTaskTags caps the number of tags a task may carry.
const MaxTaskTags = 5

// Task is a unit of work owned by exactly one user. OwnerID is immutable
// after creation and every access path filters on it.
type Task struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Tags        []string     `json:"tags"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SortField names a task list ordering column.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByDueDate   SortField = "dueDate"
	SortByPriority  SortField = "priority"
	SortByTitle     SortField = "title"
)

// SortDirection names an ordering direction.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// TaskFilter narrows and pages a task listing. Zero-valued Status/Priority/
// Search mean "no constraint".
type TaskFilter struct {
	Status   TaskStatus
	Priority TaskPriority
	Search   string
	Page     int
	PageSize int
	SortBy   SortField
	Order    SortDirection
}

// Normalize clamps paging values and fills ordering defaults.
func (f *TaskFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	switch f.SortBy {
	case SortByCreatedAt, SortByDueDate, SortByPriority, SortByTitle:
	default:
		f.SortBy = SortByCreatedAt
	}
	switch f.Order {
	case SortAsc, SortDesc:
	default:
		f.Order = SortDesc
	}
	f.Search = strings.TrimSpace(f.Search)
}

// Offset returns the row offset implied by the page and page size.
func (f TaskFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// TaskPatch carries a partial task update. Nil fields retain prior values.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	DueDate     *time.Time
	Tags        *[]string
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.Tags == nil
}

// TaskPage is one page of a filtered listing plus pagination metadata.
type TaskPage struct {
	Tasks    []Task `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	Pages    int    `json:"pages"`
	PageSize int    `json:"page_size"`
}

// StatusCounts breaks task totals down per status. Empty buckets report zero.
type StatusCounts struct {
	Todo       int `json:"todo"`
	InProgress int `json:"in-progress"`
	Done       int `json:"done"`
	Total      int `json:"total"`
}

// PriorityCounts breaks task totals down per priority.
type PriorityCounts struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// TaskStats aggregates an owner's tasks by status and priority.
type TaskStats struct {
	Status   StatusCounts   `json:"status"`
	Priority PriorityCounts `json:"priority"`
}

// NormalizeTags trims, drops empties and deduplicates while preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
