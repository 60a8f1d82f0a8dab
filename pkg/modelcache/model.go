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
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"sigs.k8s.io/yaml"
)

// Model evaluates named numeric features.
type Model interface {
	Name() string
	Type() string
	Features() []string
	Evaluate(features map[string]float64) (float64, error)
}

type modelFile struct {
	Bias    float64            `json:"bias" toml:"bias"`
	Weights map[string]float64 `json:"weights" toml:"weights"`
}

// LinearModel is bias + sum of weight * feature.
type LinearModel struct {
	_name     string
	_bias     float64
	_weights  map[string]float64
	_features []string
}

func (m *LinearModel) Name() string {
	return m._name
}

func (m *LinearModel) Type() string {
	return "linear"
}

func (m *LinearModel) Features() []string {
	return append([]string{}, m._features...)
}

func (m *LinearModel) Evaluate(features map[string]float64) (float64, error) {
	ret := m._bias
	for _, name := range m._features {
		x, ok := features[name]
		if !ok {
			return 0, errors.Newf("model %s: missing feature %s", m._name, name)
		}
		ret += m._weights[name] * x
	}
	return ret, nil
}

// parseModel decodes a model file, YAML or TOML by the extension of path.
func parseModel(cfg ModelConfig, path string, data []byte) (Model, error) {
	typ := cfg.Type
	if typ == "" {
		typ = "linear"
	}
	if typ != "linear" {
		return nil, errors.Newf("model %s: unsupported type %s", cfg.Name, typ)
	}
	var file modelFile
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(data, &file)
	default:
		return nil, errors.Newf("model %s: unknown file format %s", cfg.Name, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "model %s: parse %s", cfg.Name, path)
	}
	if len(file.Weights) == 0 {
		return nil, errors.Newf("model %s: no weights in %s", cfg.Name, path)
	}
	m := &LinearModel{
		_name:    cfg.Name,
		_bias:    file.Bias,
		_weights: file.Weights,
	}
	for name := range file.Weights {
		m._features = append(m._features, name)
	}
	sort.Strings(m._features)
	return m, nil
}
