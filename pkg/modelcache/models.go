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
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/daviszhen/aggstate/pkg/util"
)

var ErrUnknownModel = errors.New("unknown model")

type ModelConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Path string `toml:"path"`
}

type Config struct {
	Models []ModelConfig `toml:"models"`
}

// LoadConfig reads the model list. Relative model paths are resolved
// against the directory of path.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "modelcache: load config %s", path)
	}
	dir := filepath.Dir(path)
	seen := make(map[string]bool)
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if m.Name == "" || m.Path == "" {
			return nil, errors.Newf("modelcache: model %d needs a name and a path", i)
		}
		if seen[m.Name] {
			return nil, errors.Newf("modelcache: duplicate model %s", m.Name)
		}
		seen[m.Name] = true
		if !filepath.IsAbs(m.Path) {
			m.Path = filepath.Join(dir, m.Path)
		}
	}
	return cfg, nil
}

// entry is immutable once stored in Models._entries.
type entry struct {
	model   Model
	modTime time.Time
	err     error
}

// Models caches the models of a configuration. A model that fails to
// reload keeps its previous version.
type Models struct {
	lock     sync.RWMutex
	_configs map[string]ModelConfig
	_entries map[string]*entry
	_group   singleflight.Group
	_period  time.Duration
	_cancel  context.CancelFunc
	_done    chan struct{}
}

// New loads every model of the configuration at opts.ConfigPath. Load
// errors are logged, with opts.ThrowOnError the first one is returned.
func New(opts util.ModelsOptions) (*Models, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts)
}

func NewFromConfig(cfg *Config, opts util.ModelsOptions) (*Models, error) {
	models := &Models{
		_configs: make(map[string]ModelConfig),
		_entries: make(map[string]*entry),
		_period:  opts.ReloadPeriod,
	}
	if models._period <= 0 {
		models._period = util.DefaultReloadPeriod
	}
	for _, m := range cfg.Models {
		models._configs[m.Name] = m
	}
	for _, name := range models.Names() {
		_, err := models.load(name, true)
		if err != nil && opts.ThrowOnError {
			return nil, err
		}
	}
	return models, nil
}

func (models *Models) Names() []string {
	models.lock.RLock()
	defer models.lock.RUnlock()
	names := make([]string, 0, len(models._configs))
	for name := range models._configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the model name, loading it if no version is cached.
func (models *Models) Get(name string) (Model, error) {
	models.lock.RLock()
	e, has := models._entries[name]
	_, known := models._configs[name]
	models.lock.RUnlock()
	if !known {
		return nil, errors.Mark(errors.Newf("model %s is not configured", name), ErrUnknownModel)
	}
	if has && e.model != nil {
		return e.model, nil
	}
	return models.load(name, false)
}

// Reload reads the file of name again whether or not it changed.
func (models *Models) Reload(name string) error {
	models.lock.RLock()
	_, known := models._configs[name]
	models.lock.RUnlock()
	if !known {
		return errors.Mark(errors.Newf("model %s is not configured", name), ErrUnknownModel)
	}
	_, err := models.load(name, true)
	return err
}

// LastError is the error of the last load of name, nil after a success.
func (models *Models) LastError(name string) error {
	models.lock.RLock()
	defer models.lock.RUnlock()
	if e, has := models._entries[name]; has {
		return e.err
	}
	return nil
}

// load reads the model file. Concurrent loads of one name share the
// same read. Unless force is set a cached model is returned as is.
func (models *Models) load(name string, force bool) (Model, error) {
	v, err, _ := models._group.Do(name, func() (any, error) {
		models.lock.RLock()
		cfg := models._configs[name]
		old := models._entries[name]
		models.lock.RUnlock()
		if !force && old != nil && old.model != nil {
			return old.model, nil
		}

		m, modTime, err := readModel(cfg)
		models.lock.Lock()
		defer models.lock.Unlock()
		// entries are never changed in place, readers keep the one
		// they fetched under the lock.
		next := &entry{err: err}
		if prev := models._entries[name]; prev != nil {
			next.model, next.modTime = prev.model, prev.modTime
		}
		if err != nil {
			models._entries[name] = next
			util.Error("load model failed",
				zap.String("name", name),
				zap.String("path", cfg.Path),
				zap.Error(err))
			return nil, err
		}
		next.model, next.modTime = m, modTime
		models._entries[name] = next
		util.Info("model loaded",
			zap.String("name", name),
			zap.String("path", cfg.Path),
			zap.Time("modTime", modTime))
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Model), nil
}

func readModel(cfg ModelConfig) (Model, time.Time, error) {
	err := util.Trigger(util.FAULTS_SCOPE_MODELS, "modelcache.load")
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "model %s", cfg.Name)
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "model %s", cfg.Name)
	}
	m, err := parseModel(cfg, cfg.Path, data)
	if err != nil {
		return nil, time.Time{}, err
	}
	return m, info.ModTime(), nil
}

// refresh reloads the models whose file changed since their last
// successful load.
func (models *Models) refresh() {
	for _, name := range models.Names() {
		models.lock.RLock()
		cfg := models._configs[name]
		e := models._entries[name]
		models.lock.RUnlock()
		info, err := os.Stat(cfg.Path)
		if err != nil {
			util.Warn("stat model failed", zap.String("name", name), zap.Error(err))
			continue
		}
		if e != nil && e.model != nil && info.ModTime().Equal(e.modTime) {
			continue
		}
		_, _ = models.load(name, true)
	}
}

// Start refreshes the models every reload period until Stop or ctx ends.
func (models *Models) Start(ctx context.Context) {
	models.lock.Lock()
	if models._cancel != nil {
		models.lock.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	models._cancel = cancel
	done := make(chan struct{})
	models._done = done
	period := models._period
	models.lock.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				models.refresh()
			}
		}
	}()
}

func (models *Models) Stop() {
	models.lock.Lock()
	cancel, done := models._cancel, models._done
	models._cancel, models._done = nil, nil
	models.lock.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
