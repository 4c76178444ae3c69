package automl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// codecVersion is bumped whenever the serialized layout changes.
const codecVersion = 1

type estimatorEnvelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

type pipelineEnvelope struct {
	Version int `json:"version"`
	*pipelineAlias
	Estimator estimatorEnvelope `json:"estimator"`
}

type pipelineAlias Pipeline

// MarshalJSON writes the pipeline with a kind-tagged estimator.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	if p.Estimator == nil {
		return nil, ErrNotFitted
	}
	raw, err := json.Marshal(p.Estimator)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Estimator.Kind(), err)
	}
	return json.Marshal(pipelineEnvelope{
		Version:       codecVersion,
		pipelineAlias: (*pipelineAlias)(p),
		Estimator:     estimatorEnvelope{Kind: p.Estimator.Kind(), Model: raw},
	})
}

// UnmarshalJSON restores a pipeline written by MarshalJSON.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	env := pipelineEnvelope{pipelineAlias: (*pipelineAlias)(p)}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Version != codecVersion {
		return fmt.Errorf("unsupported model version %d", env.Version)
	}
	est, err := decodeEstimator(env.Estimator)
	if err != nil {
		return err
	}
	p.Estimator = est
	if p.Pre == nil || p.Target == nil {
		return fmt.Errorf("model file is missing its preprocessing state")
	}
	return nil
}

func decodeEstimator(env estimatorEnvelope) (Estimator, error) {
	var est Estimator
	switch env.Kind {
	case "logistic_regression":
		est = &LogisticRegression{}
	case "linear_regression", "ridge":
		est = &LinearRegression{}
	case "knn":
		est = &KNN{}
	case "naive_bayes":
		est = &GaussianNB{}
	case "decision_tree":
		est = &DecisionTree{}
	case "random_forest":
		est = &RandomForest{}
	case "dummy":
		est = &Dummy{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEstimator, env.Kind)
	}
	if err := json.Unmarshal(env.Model, est); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return est, nil
}

// WritePipeline encodes p as JSON to w.
func WritePipeline(w io.Writer, p *Pipeline) error {
	enc := json.NewEncoder(w)
	return enc.Encode(p)
}

// ReadPipeline decodes a pipeline from r.
func ReadPipeline(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPipeline reads a pipeline file from disk.
func LoadPipeline(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := ReadPipeline(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return p, nil
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
