package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLinear(t *testing.T, dir, name string, f linearFile) string {
	t.Helper()
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLinearArgmax(t *testing.T) {
	p, err := NewLinear("q", 2, [][]float64{
		{1, 0},
		{0, 1},
		{0.5, 0.5},
	}, []float64{0, 0, 0.1})
	require.NoError(t, err)

	tests := []struct {
		state []float64
		want  int
	}{
		{[]float64{1, 0}, 0},
		{[]float64{0, 1}, 1},
		{[]float64{1, 1}, 2},
		{[]float64{0, 0}, 2},
	}
	for _, tt := range tests {
		got, err := p.Predict(context.Background(), tt.state)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "state %v", tt.state)
	}

	_, err = p.Predict(context.Background(), []float64{1})
	require.Error(t, err)
}

func TestArgmaxTiesGoLow(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float64{0, 3, 3, 1}))
	assert.Equal(t, 0, Argmax(nil))
}

func TestNewLinearValidates(t *testing.T) {
	_, err := NewLinear("bad", 2, [][]float64{{1, 2}, {1}}, nil)
	require.Error(t, err)
	_, err = NewLinear("bad", 2, [][]float64{{1, 2}}, []float64{1, 2})
	require.Error(t, err)
	_, err = NewLinear("empty", 2, nil, nil)
	require.Error(t, err)
}

func TestLoaderCachesAndResolvesRoot(t *testing.T) {
	dir := t.TempDir()
	writeLinear(t, dir, "model_0.json", linearFile{InputSize: 3, Weights: [][]float64{{1, 0, 0}, {0, 1, 0}}})

	l := NewLoader(Config{Root: dir}, nil)
	p1, err := l.Load(context.Background(), "model_0.json")
	require.NoError(t, err)
	p2, err := l.Load(context.Background(), "model_0.json")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 3, p1.InputSize())
	require.NoError(t, l.Close())
}

func TestLoaderRejectsUnknownScheme(t *testing.T) {
	_, err := NewLoader(Config{}, nil).Load(context.Background(), "model.pt")
	require.Error(t, err)

	_, err = NewLoader(Config{}, nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRemoteProvider(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata":
			_ = json.NewEncoder(w).Encode(map[string]int{"input_size": 2})
		case "/predict":
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			action := 0
			if req.State[0] > req.State[1] {
				action = 3
			}
			_ = json.NewEncoder(w).Encode(predictResponse{Action: action})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(Config{RemoteRetries: 3}, nil)
	p, err := l.Load(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 2, p.InputSize())
	assert.Equal(t, srv.URL, p.ID())

	got, err := p.Predict(context.Background(), []float64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRemoteProviderClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metadata" {
			_ = json.NewEncoder(w).Encode(map[string]int{"input_size": 1})
			return
		}
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad state", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(context.Background(), srv.URL, Config{RemoteRetries: 5})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
