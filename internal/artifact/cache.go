package artifact

import (
	"fmt"

	"github.com/autotab/api/internal/automl"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of decoded pipelines kept in memory.
const DefaultCacheSize = 32

// ModelCache keeps recently used pipelines decoded, keyed by artifact path.
// Artifacts are immutable once written so entries never go stale.
type ModelCache struct {
	cache *lru.Cache[string, *automl.Pipeline]
	load  func(path string) (*automl.Pipeline, error)
}

func NewModelCache(size int) (*ModelCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *automl.Pipeline](size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return &ModelCache{cache: c, load: automl.LoadPipeline}, nil
}

// Get returns the pipeline stored at path, decoding it on a miss.
func (m *ModelCache) Get(path string) (*automl.Pipeline, error) {
	if p, ok := m.cache.Get(path); ok {
		return p, nil
	}
	p, err := m.load(path)
	if err != nil {
		return nil, err
	}
	m.cache.Add(path, p)
	return p, nil
}

// Put seeds the cache with a pipeline that was just written.
func (m *ModelCache) Put(path string, p *automl.Pipeline) {
	m.cache.Add(path, p)
}

func (m *ModelCache) Len() int { return m.cache.Len() }
