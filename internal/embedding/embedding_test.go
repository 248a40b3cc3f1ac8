package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalline/internal/config"
	"goalline/internal/logging"
	"goalline/internal/resolve"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0},
		{"opposite", Vector{1, 0}, Vector{-1, 0}, -1.0},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0},
		{"empty", Vector{}, Vector{}, 0.0},
		{"zero vector", Vector{0, 0}, Vector{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

type fakeEmbedder struct {
	vectors map[string]Vector
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	f.calls++
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("no vector")
	}
	return v, nil
}

func TestScorerUsesCachedVectors(t *testing.T) {
	f := &fakeEmbedder{vectors: map[string]Vector{
		"health":   {1, 1, 0},
		"wellness": {1, 0.9, 0.1},
		"career":   {-1, 0, 1},
	}}
	s := NewScorer(f, logging.Discard())

	near := s.Score("Health", "Wellness")
	far := s.Score("health", "career")
	assert.Greater(t, near, 0.9)
	assert.Equal(t, 0.0, far, "negative similarity clamps to zero")
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, 1.0, s.Score("Health", "health"))
	assert.Equal(t, 3, f.calls)
}

func TestScorerFallsBackWhenEmbedderFails(t *testing.T) {
	s := NewScorer(&fakeEmbedder{}, logging.Discard())
	want := resolve.HeuristicScorer{}.Score("Health", "Health & Vitality")
	assert.InDelta(t, want, s.Score("Health", "Health & Vitality"), 1e-9)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.6, 0.8}})
	}))
	defer srv.Close()

	v, err := NewOllamaEmbedder(srv.URL, "all-minilm").Embed(context.Background(), "health")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, math.Sqrt(float64(v[0]*v[0]+v[1]*v[1])), 1e-6)
}

func TestOpenAIEmbedderAgainstCompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	v, err := NewOpenAIEmbedder(srv.URL, "sk-test", "").Embed(context.Background(), "health")
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = "ollama"
	e, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKeyEnv = "GOALLINE_TEST_MISSING_KEY"
	t.Setenv("GOALLINE_TEST_MISSING_KEY", "")
	_, err = New(cfg)
	require.Error(t, err)

	cfg.Embedding.Provider = "carrier-pigeon"
	_, err = New(cfg)
	require.Error(t, err)
}
