package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autotab/api/internal/database"
	"github.com/autotab/api/internal/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLite is the Store used when no Postgres URL is configured. Schema is
// managed by database.RunSQLiteMigrations.
type SQLite struct {
	db *database.SQLite
}

func NewSQLite(db *database.SQLite) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.DB().ExecContext(ctx, query, u.ID.String(), u.Username, u.PasswordHash, string(u.Role), now, now)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return scanUser(s.db.DB().QueryRowContext(ctx, query, username))
}

func (s *SQLite) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.DB().QueryRowContext(ctx, query, id.String()))
}

func (s *SQLite) InsertModel(ctx context.Context, m *models.ModelRecord) error {
	query := `INSERT INTO models (` + modelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.DB().ExecContext(ctx, query,
		m.ID.String(), m.OwnerID.String(), m.Name, m.ProblemType, m.Algorithm, m.Metric, m.Score, m.Tuned,
		m.TrainRows, m.TestRows, m.ArtifactPath, m.ManifestPath, m.PredictionsPath, m.ImportancePath,
		m.TrainedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (s *SQLite) ListModels(ctx context.Context, owner uuid.UUID) ([]models.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE owner_id = ? ORDER BY trained_at DESC`
	rows, err := s.db.DB().QueryContext(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := []models.ModelRecord{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLite) ModelByID(ctx context.Context, id, owner uuid.UUID) (*models.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE id = ? AND owner_id = ?`
	return scanModel(s.db.DB().QueryRowContext(ctx, query, id.String(), owner.String()))
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
