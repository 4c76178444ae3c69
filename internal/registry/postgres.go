package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autotab/api/internal/database"
	"github.com/autotab/api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Postgres is the Store backed by the shared pgx pool.
type Postgres struct {
	db *database.Postgres
}

func NewPostgres(db *database.Postgres) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := s.db.Pool().QueryRow(ctx, query, u.ID, u.Username, u.PasswordHash, string(u.Role)).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.db.Pool().QueryRow(ctx, query, username))
}

func (s *Postgres) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.Pool().QueryRow(ctx, query, id))
}

func (s *Postgres) InsertModel(ctx context.Context, m *models.ModelRecord) error {
	query := `
		INSERT INTO models (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.Pool().Exec(ctx, query,
		m.ID, m.OwnerID, m.Name, m.ProblemType, m.Algorithm, m.Metric, m.Score, m.Tuned,
		m.TrainRows, m.TestRows, m.ArtifactPath, m.ManifestPath, m.PredictionsPath, m.ImportancePath,
		m.TrainedAt,
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (s *Postgres) ListModels(ctx context.Context, owner uuid.UUID) ([]models.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE owner_id = $1 ORDER BY trained_at DESC`
	rows, err := s.db.Pool().Query(ctx, query, owner)
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

func (s *Postgres) ModelByID(ctx context.Context, id, owner uuid.UUID) (*models.ModelRecord, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE id = $1 AND owner_id = $2`
	return scanModel(s.db.Pool().QueryRow(ctx, query, id, owner))
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func scanModel(row scanner) (*models.ModelRecord, error) {
	var m models.ModelRecord
	err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.ProblemType, &m.Algorithm, &m.Metric, &m.Score, &m.Tuned,
		&m.TrainRows, &m.TestRows, &m.ArtifactPath, &m.ManifestPath, &m.PredictionsPath, &m.ImportancePath,
		&m.TrainedAt)
	if err != nil {
		return nil, notFound(err)
	}
	m.HasImportance = m.ImportancePath != ""
	return &m, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
