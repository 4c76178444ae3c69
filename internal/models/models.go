package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's access level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account that can upload datasets
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ModelRecord is the registry row written after every successful training
// run.
type ModelRecord struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Name            string    `json:"name"`
	ProblemType     string    `json:"problem_type"`
	Algorithm       string    `json:"algorithm"`
	Metric          string    `json:"metric"`
	Score           float64   `json:"score"`
	Tuned           bool      `json:"tuned"`
	TrainRows       int       `json:"train_rows"`
	TestRows        int       `json:"test_rows"`
	ArtifactPath    string    `json:"-"`
	ManifestPath    string    `json:"-"`
	PredictionsPath string    `json:"-"`
	ImportancePath  string    `json:"-"`
	HasImportance   bool      `json:"has_importance"`
	TrainedAt       time.Time `json:"trained_at"`
}

// Manifest is the signed description of a stored model file. The hash chain
// binds the model id, file digest, algorithm and timestamp; the signature is
// an HMAC over the chain.
type Manifest struct {
	ID          uuid.UUID    `json:"id"`
	ModelID     uuid.UUID    `json:"model_id"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	Algorithm   string       `json:"algorithm"`
	ProblemType string       `json:"problem_type"`
	Metric      string       `json:"metric"`
	Score       float64      `json:"score"`
	Timestamp   time.Time    `json:"timestamp"`
	ModelFile   string       `json:"model_file"`
	ModelHash   string       `json:"model_hash"`
	Files       []FileDigest `json:"files"`
	HashChain   string       `json:"hash_chain"`
	Signature   string       `json:"signature"`
}

// FileDigest is the signed digest of one report written next to a model.
type FileDigest struct {
	Name      string `json:"name"`
	SHA256    string `json:"sha256"`
	Signature string `json:"signature"`
}

// TrainedEvent is published on the event bus after a model is registered.
type TrainedEvent struct {
	ModelID     uuid.UUID `json:"model_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	ProblemType string    `json:"problem_type"`
	Algorithm   string    `json:"algorithm"`
	Metric      string    `json:"metric"`
	Score       float64   `json:"score"`
	TrainedAt   time.Time `json:"trained_at"`
}
