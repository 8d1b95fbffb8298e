package repository

import (
	"context"

	"github.com/mohitnawani/taskdeck/internal/domain"
)

// UserRepository persists accounts and credentials.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, id string, name, bio *string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, id string, hash []byte) error
}

// TaskRepository persists tasks scoped to an owning user. Every query and
// mutation carries the owner id in its match condition; a task owned by
// someone else is indistinguishable from one that does not exist.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, int, error)
	// UpdateTask applies the patch as a single conditional update: the
	// ownership match and the mutation are one atomic statement.
	UpdateTask(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
	TaskStats(ctx context.Context, ownerID string) (*domain.TaskStats, error)
}
