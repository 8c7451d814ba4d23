package models

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClassDictionary(t *testing.T) {
	path := writeFile(t, "class_dictionary.json",
		`{"lionel_messi": 0, "maria_sharapova": 1, "roger_federer": 2, "serena_williams": 3, "virat_kohli": 4}`)

	d, err := LoadClassDictionary(path)
	require.NoError(t, err)

	assert.Equal(t, 5, d.Len())
	assert.Equal(t, []string{"lionel_messi", "maria_sharapova", "roger_federer", "serena_williams", "virat_kohli"}, d.Names())

	name, ok := d.Name(2)
	assert.True(t, ok)
	assert.Equal(t, "roger_federer", name)

	_, ok = d.Name(5)
	assert.False(t, ok)
	_, ok = d.Name(-1)
	assert.False(t, ok)

	idx, ok := d.Index("virat_kohli")
	assert.True(t, ok)
	assert.Equal(t, 4, idx)

	assert.Equal(t, 3, d.Map()["serena_williams"])
}

func TestLoadClassDictionaryErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", `{"a": 0`},
		{"empty", `{}`},
		{"gap", `{"a": 0, "b": 2}`},
		{"duplicate index", `{"a": 0, "b": 0}`},
		{"negative", `{"a": -1}`},
		{"not an object", `["a", "b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClassDictionary(writeFile(t, "dict.json", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadClassDictionary(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	d, err := NewClassDictionary(map[string]int{"a": 0, "b": 1})
	require.NoError(t, err)

	name, err := d.Resolve(Prediction{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	_, err = d.Resolve(Prediction{Index: 7})
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestNewClassDictionaryCopiesInput(t *testing.T) {
	m := map[string]int{"a": 0}
	d, err := NewClassDictionary(m)
	require.NoError(t, err)

	m["b"] = 1
	assert.Equal(t, 1, d.Len())
	_, ok := d.Index("b")
	assert.False(t, ok)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, 0, ArgMax([]float64{0.5}))
	assert.Equal(t, 2, ArgMax([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, ArgMax([]float64{0.4, 0.4, 0.2}), "ties keep the first index")
}

func TestDefaultConfigSessionPool(t *testing.T) {
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, cfg.Runtime.SessionPoolSize, 1)
	assert.Equal(t, max(1, runtime.NumCPU()/2), cfg.Runtime.SessionPoolSize)
	assert.Equal(t, "cpu", cfg.Runtime.ExecutionProvider)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "no backend", mutate: func(c *Config) { c.Backend = "" }, wantErr: true},
		{name: "no path", mutate: func(c *Config) { c.Path = "" }, wantErr: true},
		{name: "no feature length", mutate: func(c *Config) { c.FeatureLength = 0 }, wantErr: true},
		{name: "no sessions", mutate: func(c *Config) { c.Runtime.SessionPoolSize = 0 }, wantErr: true},
		{name: "no input name", mutate: func(c *Config) { c.Runtime.InputName = "" }, wantErr: true},
		{
			name: "linear ignores runtime",
			mutate: func(c *Config) {
				c.Backend = BackendLinear
				c.Runtime = RuntimeConfig{}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

type constantClassifier struct {
	prediction Prediction
}

func (c *constantClassifier) Predict(context.Context, []float32) (Prediction, error) {
	return c.prediction, nil
}

func (c *constantClassifier) Close() error { return nil }

func TestRegistry(t *testing.T) {
	const backend Backend = "constant-test"
	Register(backend, func(cfg Config, numClasses int) (Classifier, error) {
		return &constantClassifier{prediction: Prediction{Index: numClasses - 1}}, nil
	})

	assert.Contains(t, Backends(), string(backend))
	assert.Panics(t, func() {
		Register(backend, func(Config, int) (Classifier, error) { return nil, nil })
	})

	cfg := DefaultConfig()
	cfg.Backend = backend
	c, err := NewClassifier(cfg, 3)
	require.NoError(t, err)
	defer c.Close()

	p, err := c.Predict(context.Background(), make([]float32, 4096))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Index)

	_, err = NewClassifier(cfg, 0)
	assert.Error(t, err)

	cfg.Backend = "does-not-exist"
	_, err = NewClassifier(cfg, 3)
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
}

func TestNewClassifierWrapsFactoryErrors(t *testing.T) {
	const backend Backend = "failing-test"
	Register(backend, func(Config, int) (Classifier, error) {
		return nil, errors.New("boom")
	})

	cfg := DefaultConfig()
	cfg.Backend = backend
	_, err := NewClassifier(cfg, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), cfg.Path)
}
