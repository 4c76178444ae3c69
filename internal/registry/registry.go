package registry

import (
	"context"
	"errors"

	"github.com/autotab/api/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// Store persists users and trained model metadata.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	InsertModel(ctx context.Context, m *models.ModelRecord) error
	// ListModels returns the owner's models, newest first.
	ListModels(ctx context.Context, owner uuid.UUID) ([]models.ModelRecord, error)
	// ModelByID returns ErrNotFound when the model does not exist or belongs
	// to another owner.
	ModelByID(ctx context.Context, id, owner uuid.UUID) (*models.ModelRecord, error)

	Ping(ctx context.Context) error
}

const modelColumns = `id, owner_id, name, problem_type, algorithm, metric, score, tuned,
	train_rows, test_rows, artifact_path, manifest_path, predictions_path, importance_path, trained_at`

const userColumns = `id, username, password_hash, role, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}
