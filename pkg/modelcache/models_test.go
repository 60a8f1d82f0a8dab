// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modelcache

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/aggstate/pkg/util"
)

const configText = `
[[models]]
name = "price"
type = "linear"
path = "price.yaml"

[[models]]
name = "risk"
path = "models/risk.toml"
`

const priceYaml = `
bias: 1.5
weights:
  rooms: 2
  area: 0.5
`

const riskToml = `
bias = -1.0

[weights]
age = 0.25
`

func writeFile(t *testing.T, path, text string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

// touch moves the modification time of path forward by d.
func touch(t *testing.T, path string, d time.Duration) {
	info, err := os.Stat(path)
	require.NoError(t, err)
	mt := info.ModTime().Add(d)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func setup(t *testing.T) (string, util.ModelsOptions) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "models.toml"), configText)
	writeFile(t, filepath.Join(dir, "price.yaml"), priceYaml)
	writeFile(t, filepath.Join(dir, "models", "risk.toml"), riskToml)
	return dir, util.ModelsOptions{
		ConfigPath:   filepath.Join(dir, "models.toml"),
		ReloadPeriod: 20 * time.Millisecond,
	}
}

func evaluate(t *testing.T, models *Models, name string, features map[string]float64) float64 {
	m, err := models.Get(name)
	require.NoError(t, err)
	v, err := m.Evaluate(features)
	require.NoError(t, err)
	return v
}

func Test_get(t *testing.T) {
	_, opts := setup(t)
	models, err := New(opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "risk"}, models.Names())

	assert.Equal(t, 1.5+2*3+0.5*100, evaluate(t, models, "price", map[string]float64{"rooms": 3, "area": 100}))
	assert.Equal(t, -1.0+0.25*40, evaluate(t, models, "risk", map[string]float64{"age": 40}))

	m, err := models.Get("price")
	require.NoError(t, err)
	assert.Equal(t, []string{"area", "rooms"}, m.Features())
	assert.Equal(t, "linear", m.Type())
	_, err = m.Evaluate(map[string]float64{"rooms": 1})
	assert.Error(t, err)

	_, err = models.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownModel))
	assert.True(t, errors.Is(models.Reload("nope"), ErrUnknownModel))
}

func Test_reloadKeepsLastGood(t *testing.T) {
	dir, opts := setup(t)
	models, err := New(opts)
	require.NoError(t, err)
	path := filepath.Join(dir, "price.yaml")

	writeFile(t, path, "bias: 10\nweights:\n  rooms: 1\n")
	require.NoError(t, models.Reload("price"))
	assert.Equal(t, 12.0, evaluate(t, models, "price", map[string]float64{"rooms": 2}))

	writeFile(t, path, "bias: [")
	assert.Error(t, models.Reload("price"))
	assert.Error(t, models.LastError("price"))
	assert.Equal(t, 12.0, evaluate(t, models, "price", map[string]float64{"rooms": 2}))
}

func Test_throwOnError(t *testing.T) {
	dir, opts := setup(t)
	writeFile(t, filepath.Join(dir, "price.yaml"), "weights: {}")

	models, err := New(opts)
	require.NoError(t, err)
	_, err = models.Get("price")
	assert.Error(t, err)
	assert.Equal(t, -1.0, evaluate(t, models, "risk", map[string]float64{"age": 0}))

	opts.ThrowOnError = true
	_, err = New(opts)
	assert.Error(t, err)
}

func Test_config(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.toml")
	writeFile(t, path, "[[models]]\nname = \"a\"\npath = \"a.yaml\"\n[[models]]\nname = \"a\"\npath = \"b.yaml\"\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)

	writeFile(t, path, "[[models]]\nname = \"a\"\n")
	_, err = LoadConfig(path)
	assert.Error(t, err)

	writeFile(t, path, "[[models]]\nname = \"a\"\npath = \"/abs/a.yaml\"\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/abs/a.yaml", cfg.Models[0].Path)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func Test_backgroundRefresh(t *testing.T) {
	dir, opts := setup(t)
	models, err := New(opts)
	require.NoError(t, err)
	models.Start(context.Background())
	defer models.Stop()

	path := filepath.Join(dir, "models", "risk.toml")
	writeFile(t, path, "bias = 5.0\n[weights]\nage = 1.0\n")
	touch(t, path, time.Second)
	require.Eventually(t, func() bool {
		m, err := models.Get("risk")
		if err != nil {
			return false
		}
		v, err := m.Evaluate(map[string]float64{"age": 1})
		return err == nil && v == 6.0
	}, 5*time.Second, 10*time.Millisecond)

	models.Stop()
	models.Stop()
}

func Test_concurrentGet(t *testing.T) {
	_, opts := setup(t)
	models, err := New(opts)
	require.NoError(t, err)

	grp := errgroup.Group{}
	for i := 0; i < 16; i++ {
		grp.Go(func() error {
			if i%4 == 0 {
				return models.Reload("price")
			}
			_, err := models.Get("price")
			return err
		})
	}
	require.NoError(t, grp.Wait())
}

func Test_loadFault(t *testing.T) {
	_, opts := setup(t)
	util.Open(util.FAULTS_SCOPE_MODELS)
	defer util.Close(util.FAULTS_SCOPE_MODELS)
	var calls atomic.Int32
	util.Register(util.FAULTS_SCOPE_MODELS, "modelcache.load", nil, func([]string) error {
		calls.Add(1)
		return errors.New("disk gone")
	})

	models, err := New(opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	_, err = models.Get("risk")
	assert.Error(t, err)

	util.Close(util.FAULTS_SCOPE_MODELS)
	assert.Equal(t, -1.0+0.25*4, evaluate(t, models, "risk", map[string]float64{"age": 4}))
}

func Test_getDuringRefresh(t *testing.T) {
	dir, opts := setup(t)
	models, err := New(opts)
	require.NoError(t, err)
	path := filepath.Join(dir, "price.yaml")

	grp := errgroup.Group{}
	grp.Go(func() error {
		mt := time.Now()
		for i := 0; i < 50; i++ {
			mt = mt.Add(time.Second)
			if err := os.Chtimes(path, mt, mt); err != nil {
				return err
			}
			models.refresh()
			if err := models.Reload("price"); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 4; i++ {
		grp.Go(func() error {
			for j := 0; j < 200; j++ {
				m, err := models.Get("price")
				if err != nil {
					return err
				}
				if _, err = m.Evaluate(map[string]float64{"rooms": 1, "area": 1}); err != nil {
					return err
				}
				_ = models.LastError("price")
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())
	assert.NoError(t, models.LastError("price"))
}
