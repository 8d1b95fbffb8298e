package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/internal/ws"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
)

// Event types broadcast on the owner's websocket stream.
const (
	EventCreated = "task.created"
	EventUpdated = "task.updated"
	EventDeleted = "task.deleted"
)

// Service implements task CRUD, filtered listing and aggregation. The owner
// id on every call comes from the authenticated identity, never from input.
type Service struct {
	tasks  repository.TaskRepository
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a Service. hub may be nil when event streaming is disabled.
func New(tasks repository.TaskRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{tasks: tasks, hub: hub, logger: logger}
}

// CreateInput is the task creation payload.
type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"dueDate"`
	Tags        []string `json:"tags"`

	dueAt *time.Time
}

// Validate collects all field problems in one pass and normalizes tags.
func (in *CreateInput) Validate() error {
	var fields []domain.FieldError
	fields = append(fields, validateTitle(in.Title, true)...)
	fields = append(fields, validateDescription(in.Description)...)
	if in.Status != "" && !domain.TaskStatus(in.Status).Valid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "status must be one of todo, in-progress, done"})
	}
	if in.Priority != "" && !domain.TaskPriority(in.Priority).Valid() {
		fields = append(fields, domain.FieldError{Field: "priority", Message: "priority must be one of low, medium, high"})
	}
	if in.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, in.DueDate)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "dueDate", Message: "due date must be an ISO-8601 timestamp"})
		} else {
			utc := parsed.UTC()
			in.dueAt = &utc
		}
	}
	in.Tags = domain.NormalizeTags(in.Tags)
	fields = append(fields, validateTags(in.Tags)...)
	return domain.NewValidationError(fields)
}

// UpdateInput is a partial task update; nil fields are untouched.
type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	DueDate     *string   `json:"dueDate"`
	Tags        *[]string `json:"tags"`

	dueAt *time.Time
}

// Validate checks supplied fields only.
func (in *UpdateInput) Validate() error {
	var fields []domain.FieldError
	if in.Title != nil {
		fields = append(fields, validateTitle(*in.Title, true)...)
	}
	if in.Description != nil {
		fields = append(fields, validateDescription(*in.Description)...)
	}
	if in.Status != nil && !domain.TaskStatus(*in.Status).Valid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "status must be one of todo, in-progress, done"})
	}
	if in.Priority != nil && !domain.TaskPriority(*in.Priority).Valid() {
		fields = append(fields, domain.FieldError{Field: "priority", Message: "priority must be one of low, medium, high"})
	}
	if in.DueDate != nil {
		parsed, err := time.Parse(time.RFC3339, *in.DueDate)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "dueDate", Message: "due date must be an ISO-8601 timestamp"})
		} else {
			utc := parsed.UTC()
			in.dueAt = &utc
		}
	}
	if in.Tags != nil {
		normalized := domain.NormalizeTags(*in.Tags)
		*in.Tags = normalized
		fields = append(fields, validateTags(normalized)...)
	}
	return domain.NewValidationError(fields)
}

func validateTitle(title string, required bool) []domain.FieldError {
	if title == "" {
		if required {
			return []domain.FieldError{{Field: "title", Message: "title is required"}}
		}
		return nil
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return []domain.FieldError{{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", maxTitleLength)}}
	}
	return nil
}

func validateDescription(description string) []domain.FieldError {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return []domain.FieldError{{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", maxDescriptionLength)}}
	}
	return nil
}

func validateTags(tags []string) []domain.FieldError {
	if len(tags) > domain.MaxTaskTags {
		return []domain.FieldError{{Field: "tags", Message: fmt.Sprintf("at most %d tags allowed", domain.MaxTaskTags)}}
	}
	return nil
}

// Create persists a new task for the owner, applying defaults for omitted
// status and priority.
func (s Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	status := domain.TaskStatus(in.Status)
	if status == "" {
		status = domain.TaskStatusTodo
	}
	priority := domain.TaskPriority(in.Priority)
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}
	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     in.dueAt,
		Tags:        in.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("task created", "user_id", ownerID, "task_id", task.ID)
	s.publish(ownerID, EventCreated, task)
	return task, nil
}

// List returns one page of the owner's tasks matching the filter.
func (s Service) List(ctx context.Context, ownerID string, filter domain.TaskFilter) (*domain.TaskPage, error) {
	filter.Normalize()
	tasks, total, err := s.tasks.ListTasks(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	pages := (total + filter.PageSize - 1) / filter.PageSize
	return &domain.TaskPage{
		Tasks:    tasks,
		Total:    total,
		Page:     filter.Page,
		Pages:    pages,
		PageSize: filter.PageSize,
	}, nil
}

// Get fetches a single task owned by the caller.
func (s Service) Get(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	return s.tasks.GetTask(ctx, ownerID, id)
}

// Update applies a partial update under the ownership-or-NotFound rule.
func (s Service) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*domain.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	patch := domain.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.dueAt,
		Tags:        in.Tags,
	}
	if in.Status != nil {
		status := domain.TaskStatus(*in.Status)
		patch.Status = &status
	}
	if in.Priority != nil {
		priority := domain.TaskPriority(*in.Priority)
		patch.Priority = &priority
	}
	task, err := s.tasks.UpdateTask(ctx, ownerID, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task updated", "user_id", ownerID, "task_id", id)
	s.publish(ownerID, EventUpdated, task)
	return task, nil
}

// Delete permanently removes a task. Deleting an absent or foreign task
// reports NotFound.
func (s Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.tasks.DeleteTask(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "user_id", ownerID, "task_id", id)
	s.publish(ownerID, EventDeleted, &domain.Task{ID: id, OwnerID: ownerID})
	return nil
}

// Stats aggregates the owner's tasks by status and priority.
func (s Service) Stats(ctx context.Context, ownerID string) (*domain.TaskStats, error) {
	return s.tasks.TaskStats(ctx, ownerID)
}

// Hub exposes the event hub for the websocket transport.
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) publish(ownerID, event string, task *domain.Task) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": event, "task": task})
	if err != nil {
		s.logger.Error("marshal task event", "error", err)
		return
	}
	s.hub.Broadcast(ownerID, payload)
}
