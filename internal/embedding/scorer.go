package embedding

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"goalline/internal/resolve"
	"goalline/internal/staging"
)

// Scorer rates keys by cosine similarity of their embeddings. Vectors are cached
// per normalized key. When the embedder fails the Fallback scorer answers.
type Scorer struct {
	Embedder Embedder
	Fallback resolve.Scorer
	Timeout  time.Duration
	Log      logrus.FieldLogger

	mu    sync.Mutex
	cache map[string]Vector
}

func NewScorer(e Embedder, log logrus.FieldLogger) *Scorer {
	return &Scorer{Embedder: e, Fallback: resolve.HeuristicScorer{}, Timeout: 10 * time.Second, Log: log}
}

func (s *Scorer) Score(a, b string) float64 {
	ka, kb := staging.NormalizeKey(a), staging.NormalizeKey(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}
	va, err := s.vector(ka)
	if err == nil {
		var vb Vector
		if vb, err = s.vector(kb); err == nil {
			return math.Max(0, math.Min(1, CosineSimilarity(va, vb)))
		}
	}
	if s.Log != nil {
		s.Log.WithError(err).Warn("embedding unavailable, using fallback scorer")
	}
	if s.Fallback == nil {
		return 0
	}
	return s.Fallback.Score(a, b)
}

func (s *Scorer) vector(key string) (Vector, error) {
	s.mu.Lock()
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	v, err := s.Embedder.Embed(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cache == nil {
		s.cache = map[string]Vector{}
	}
	s.cache[key] = v
	s.mu.Unlock()
	return v, nil
}
