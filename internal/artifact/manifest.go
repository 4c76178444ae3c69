package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/autotab/api/internal/models"
	"github.com/google/uuid"
)

// Signer creates and checks signed model manifests.
type Signer struct {
	signingKey []byte
}

// NewSigner creates a signer using an HMAC key.
func NewSigner(signingKey string) *Signer {
	return &Signer{signingKey: []byte(signingKey)}
}

// ManifestInput describes the run being signed.
type ManifestInput struct {
	ModelID     uuid.UUID
	OwnerID     uuid.UUID
	Algorithm   string
	ProblemType string
	Metric      string
	Score       float64
	ModelPath   string
	// Reports are additional files (predictions, importance) to digest.
	Reports []string
}

// Sign digests the model file and reports and signs the result.
func (s *Signer) Sign(in ManifestInput) (*models.Manifest, error) {
	modelHash, err := fileHash(in.ModelPath)
	if err != nil {
		return nil, err
	}

	files := make([]models.FileDigest, 0, len(in.Reports))
	for _, p := range in.Reports {
		h, err := fileHash(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		files = append(files, models.FileDigest{
			Name:      name,
			SHA256:    h,
			Signature: s.sign(name + ":" + h),
		})
	}

	m := &models.Manifest{
		ID:          uuid.New(),
		ModelID:     in.ModelID,
		OwnerID:     in.OwnerID,
		Algorithm:   in.Algorithm,
		ProblemType: in.ProblemType,
		Metric:      in.Metric,
		Score:       in.Score,
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		ModelFile:   filepath.Base(in.ModelPath),
		ModelHash:   modelHash,
		Files:       files,
	}
	m.HashChain = s.computeHashChain(m)
	m.Signature = s.sign(m.HashChain)
	return m, nil
}

// Verify recomputes every digest from the files next to the manifest (in
// dir) and checks the signatures.
func (s *Signer) Verify(m *models.Manifest, dir string) error {
	if !hmac.Equal([]byte(m.HashChain), []byte(s.computeHashChain(m))) {
		return fmt.Errorf("%w: hash chain mismatch", ErrTampered)
	}
	if !hmac.Equal([]byte(m.Signature), []byte(s.sign(m.HashChain))) {
		return fmt.Errorf("%w: bad signature", ErrTampered)
	}
	h, err := fileHash(filepath.Join(dir, m.ModelFile))
	if err != nil {
		return err
	}
	if h != m.ModelHash {
		return fmt.Errorf("%w: %s changed", ErrTampered, m.ModelFile)
	}
	for _, f := range m.Files {
		if !hmac.Equal([]byte(f.Signature), []byte(s.sign(f.Name+":"+f.SHA256))) {
			return fmt.Errorf("%w: bad signature for %s", ErrTampered, f.Name)
		}
		h, err := fileHash(filepath.Join(dir, f.Name))
		if err != nil {
			return err
		}
		if h != f.SHA256 {
			return fmt.Errorf("%w: %s changed", ErrTampered, f.Name)
		}
	}
	return nil
}

// VerifyFile loads a manifest from disk and verifies it against its siblings.
func (s *Signer) VerifyFile(path string) (*models.Manifest, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m, s.Verify(m, filepath.Dir(path))
}

// WriteManifest encodes m as indented JSON.
func WriteManifest(w io.Writer, m *models.Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*models.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sign creates an HMAC-SHA256 signature
func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// computeHashChain computes the integrity hash of the manifest
func (s *Signer) computeHashChain(m *models.Manifest) string {
	// Concatenate critical fields to ensure integrity
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%g:%s",
		m.ModelID.String(),
		m.OwnerID.String(),
		m.ModelHash,
		m.Algorithm,
		m.ProblemType,
		m.Metric,
		m.Score,
		m.Timestamp.Format(time.RFC3339),
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
