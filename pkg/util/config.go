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

package util

import "time"

type AggregateOptions struct {
	DebugChecks    bool `tag:"debugChecks"`
	AlignStates    bool `tag:"alignStates"`
	ArenaChunkSize int  `tag:"arenaChunkSize"`
}

type PartialOptions struct {
	Codec string `tag:"codec"`
}

type ModelsOptions struct {
	ConfigPath   string        `tag:"configPath"`
	ReloadPeriod time.Duration `tag:"reloadPeriod"`
	ThrowOnError bool          `tag:"throwOnError"`
}

type RunOptions struct {
	DataPath   string `tag:"dataPath"`
	DataFormat string `tag:"dataFormat"`
	//logical types of the input columns
	Types []string `tag:"types"`
	//input columns forming the group key
	GroupBy []int `tag:"groupBy"`
	//name(params)(columns), e.g. sum(1) or uniq(16)(0,2)
	Aggregates []string `tag:"aggregates"`
	Shards     int      `tag:"shards"`
	ResultPath string   `tag:"resultPath"`
}

type LogOptions struct {
	Level string `tag:"level"`
}

type Config struct {
	Aggregate AggregateOptions `tag:"aggregate"`
	Partial   PartialOptions   `tag:"partial"`
	Models    ModelsOptions    `tag:"models"`
	Run       RunOptions       `tag:"run"`
	Log       LogOptions       `tag:"log"`
}

const (
	DefaultArenaChunkSize = 64 * 1024
	DefaultReloadPeriod   = 5 * time.Minute
)

func DefaultConfig() *Config {
	return &Config{
		Aggregate: AggregateOptions{
			AlignStates:    true,
			ArenaChunkSize: DefaultArenaChunkSize,
		},
		Partial: PartialOptions{
			Codec: "zstd",
		},
		Models: ModelsOptions{
			ReloadPeriod: DefaultReloadPeriod,
		},
		Run: RunOptions{
			DataFormat: "csv",
			Shards:     1,
		},
		Log: LogOptions{
			Level: "info",
		},
	}
}
